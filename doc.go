// Package seer answers a user's message with a tarot reading, an astrology
// reading, or a short direct reply, and remembers the exchange.
//
// A turn runs through a small state machine:
//
//	take_context → router → taro ⇄ taro_tool → img → add_memory → end
//	                      → astro ⇄ astro_tool → add_memory → end
//	                      → add_memory → end
//
// take_context pulls the user's prior context from the [MemoryStore], the
// router picks a branch, the tarot and astrology agents call their tools
// until they have an answer, img extracts the drawn cards and spread from
// the tarot reply, and add_memory commits a summary of the exchange.
//
// # Quick Start
//
//	llm := openaicompat.New(apiKey, model, openaicompat.WithBaseURL(baseURL))
//	x, _ := seer.NewExtractor(llm)
//	router, _ := seer.NewRouter(x)
//
//	memory := zep.New(zepKey)
//	search := seer.NewMemorySearchTool(memory)
//	tarot, _ := seer.NewTarotAgent(llm, seer.WithTools(tarotTools, search))
//	astro, _ := seer.NewAstroAgent(llm, seer.WithTools(astroTools, search))
//
//	wf, _ := seer.NewWorkflow(router, tarot, astro, x, seer.NewMemoryGateway(memory, x))
//
//	ch := make(chan seer.Update, 16)
//	go wf.Run(ctx, seer.TurnInput{Message: "Do a three card reading", UserID: "u1"}, ch)
//	var snap seer.Snapshot
//	for u := range ch {
//		snap.Apply(u)
//	}
//
// # Core Interfaces
//
//   - [Provider]: chat model backend (tool calls and JSON-schema output)
//   - [Tool]: capability bound to an agent; [MCPTools] adapts an MCP server
//   - [MemoryStore]: long-term memory keyed by thread
//   - [TurnRunner]: runs one turn and streams [Update] values
//
// # Included Implementations
//
// Providers: provider/openaicompat. Memory: memory/zep, store/postgres,
// store/sqlite. Tools: the tarot MCP server in package tarot. Observability:
// observer (OpenTelemetry).
package seer
