package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")
	AttrLLMSchema   = attribute.Key("llm.schema")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")

	AttrTurnUser      = attribute.Key("turn.user")
	AttrTurnStatus    = attribute.Key("turn.status")
	AttrTurnRoute     = attribute.Key("turn.route")
	AttrTurnNode      = attribute.Key("turn.failed_node")
	AttrTurnCommitted = attribute.Key("turn.memory_committed")
	AttrTurnCards     = attribute.Key("turn.cards")
)
