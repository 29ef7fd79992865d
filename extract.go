package seer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nevindra/seer/tarot"
)

// Default token budgets for the turn summary.
const (
	DefaultUserSummaryTokens      = 50
	DefaultAssistantSummaryTokens = 200
)

// RouteDecision is the router's choice. Message is set only when Next is
// NodeAddMemory (the router answers the user itself).
type RouteDecision struct {
	Next    Node
	Message string
}

// TarotArtifact is what card extraction pulls out of a tarot reply. Card
// names are canonical tokens; Spread is a display name from the closed set.
type TarotArtifact struct {
	Cards  []TarotCard
	Spread string
}

// Summary is a turn compressed for long-term memory.
type Summary struct {
	User      string
	Assistant string
}

// Extractor turns free model output into validated structures. Every mode
// asks the model for JSON against a schema, validates the result, and on a
// violation retries once with a corrective message before giving up with a
// *MalformedError.
type Extractor struct {
	provider Provider
	router   Provider
	counter  TokenCounter
	deck     *tarot.Deck

	userBudget      int
	assistantBudget int

	logger *slog.Logger
	tracer Tracer
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithRouteProvider uses p for route mode instead of the default provider.
func WithRouteProvider(p Provider) ExtractorOption {
	return func(e *Extractor) { e.router = p }
}

// WithTokenCounter replaces the cl100k counter.
func WithTokenCounter(c TokenCounter) ExtractorOption {
	return func(e *Extractor) { e.counter = c }
}

// WithSummaryBudgets sets the user and assistant summary token budgets.
func WithSummaryBudgets(user, assistant int) ExtractorOption {
	return func(e *Extractor) {
		if user > 0 {
			e.userBudget = user
		}
		if assistant > 0 {
			e.assistantBudget = assistant
		}
	}
}

// WithDeck replaces the standard deck used to normalize card names.
func WithDeck(d *tarot.Deck) ExtractorOption {
	return func(e *Extractor) { e.deck = d }
}

// WithExtractorLogger sets the logger for retried extractions.
func WithExtractorLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithExtractorTracer traces each extraction.
func WithExtractorTracer(t Tracer) ExtractorOption {
	return func(e *Extractor) { e.tracer = t }
}

// NewExtractor creates an Extractor calling p.
func NewExtractor(p Provider, opts ...ExtractorOption) (*Extractor, error) {
	e := &Extractor{
		provider:        p,
		userBudget:      DefaultUserSummaryTokens,
		assistantBudget: DefaultAssistantSummaryTokens,
		logger:          nopLogger,
	}
	for _, o := range opts {
		o(e)
	}
	if e.router == nil {
		e.router = p
	}
	if e.deck == nil {
		e.deck = tarot.NewDeck()
	}
	if e.counter == nil {
		c, err := NewTokenCounter()
		if err != nil {
			return nil, err
		}
		e.counter = c
	}
	return e, nil
}

// --- route mode ---

var routeSchema = &ResponseSchema{
	Name: "route",
	Schema: json.RawMessage(`{"type":"object","properties":{` +
		`"next_node":{"type":"string","enum":["taro","astro","add_memory"],"description":"Which node answers the user"},` +
		`"message":{"type":"string","description":"Direct answer, required when next_node is add_memory"}},` +
		`"required":["next_node"],"additionalProperties":false}`),
}

// Route asks the router model where the turn goes. The destination must be
// taro, astro or add_memory, and add_memory must come with a message.
func (e *Extractor) Route(ctx context.Context, st *TurnState, prompt PromptFunc) (RouteDecision, error) {
	if prompt == nil {
		prompt = RouterPrompt
	}
	msgs := make([]ChatMessage, 0, len(st.History)+1)
	msgs = append(msgs, SystemMessage(prompt(st)))
	msgs = append(msgs, st.History...)

	var dec RouteDecision
	err := e.extract(ctx, e.router, "route", msgs, routeSchema, func(raw string) *MalformedError {
		var out struct {
			NextNode string `json:"next_node"`
			Message  string `json:"message"`
		}
		if err := decodeJSON(raw, &out); err != nil {
			return &MalformedError{Mode: "route", Raw: raw, Reason: err.Error()}
		}
		next := Node(strings.TrimSpace(out.NextNode))
		switch next {
		case NodeTaro, NodeAstro:
		case NodeAddMemory:
			if strings.TrimSpace(out.Message) == "" {
				return &MalformedError{Mode: "route", Raw: raw, Reason: "add_memory needs a message"}
			}
		default:
			return &MalformedError{Mode: "route", Raw: raw,
				Reason: fmt.Sprintf("destination %q is not taro, astro or add_memory", out.NextNode),
				Err:    ErrUnknownNode}
		}
		dec = RouteDecision{Next: next, Message: out.Message}
		if next != NodeAddMemory {
			dec.Message = ""
		}
		return nil
	})
	return dec, err
}

// --- card mode ---

func cardsSchema() *ResponseSchema {
	names, _ := json.Marshal(tarot.SpreadNames())
	return &ResponseSchema{
		Name: "tarot_cards",
		Schema: json.RawMessage(`{"type":"object","properties":{` +
			`"taro_cards":{"type":"array","items":{"type":"object","properties":{` +
			`"name":{"type":"string"},"reversed":{"type":"boolean"}},"required":["name","reversed"]}},` +
			`"unlock_name":{"type":"string","enum":` + string(names) + `}},` +
			`"required":["taro_cards","unlock_name"],"additionalProperties":false}`),
	}
}

// Cards extracts the drawn cards and spread from a tarot reply. The number of
// cards must equal the spread's card count; a mismatch is malformed output,
// never truncated or padded.
func (e *Extractor) Cards(ctx context.Context, reply string) (TarotArtifact, error) {
	text, headings := plainText(reply)
	var b strings.Builder
	b.WriteString("Reading:\n")
	b.WriteString(text)
	if len(headings) > 0 {
		b.WriteString("\n\nSection titles:\n- ")
		b.WriteString(strings.Join(headings, "\n- "))
	}
	system := strings.Replace(cardsPrompt, "{spreads}", strings.Join(tarot.SpreadNames(), "\n"), 1)
	msgs := []ChatMessage{SystemMessage(system), UserMessage(b.String())}

	var art TarotArtifact
	err := e.extract(ctx, e.provider, "cards", msgs, cardsSchema(), func(raw string) *MalformedError {
		var out struct {
			Cards []struct {
				Name     string `json:"name"`
				Reversed bool   `json:"reversed"`
			} `json:"taro_cards"`
			Spread string `json:"unlock_name"`
		}
		if err := decodeJSON(raw, &out); err != nil {
			return &MalformedError{Mode: "cards", Raw: raw, Reason: err.Error()}
		}
		spread, err := tarot.LookupSpread(out.Spread)
		if err != nil {
			return &MalformedError{Mode: "cards", Raw: raw, Reason: err.Error()}
		}
		cards := make([]TarotCard, 0, len(out.Cards))
		for _, c := range out.Cards {
			card, ok := e.deck.Lookup(c.Name)
			if !ok {
				return &MalformedError{Mode: "cards", Raw: raw, Reason: fmt.Sprintf("unknown card %q", c.Name)}
			}
			cards = append(cards, TarotCard{Name: card.ID, Reversed: c.Reversed})
		}
		if len(cards) != spread.CardCount() {
			return &MalformedError{Mode: "cards", Raw: raw,
				Reason: fmt.Sprintf("%s needs %d cards, got %d", spread.Name, spread.CardCount(), len(cards))}
		}
		art = TarotArtifact{Cards: cards, Spread: spread.Name}
		return nil
	})
	return art, err
}

// --- summary mode ---

var summarySchema = &ResponseSchema{
	Name: "summary",
	Schema: json.RawMessage(`{"type":"object","properties":{` +
		`"user_message":{"type":"string"},"message_to_user":{"type":"string"}},` +
		`"required":["user_message","message_to_user"],"additionalProperties":false}`),
}

// Summarize compresses one exchange for memory. A user message already within
// the user budget is returned unchanged. If the model overshoots a budget
// twice, the summary is cut at the budget instead of failing the turn.
func (e *Extractor) Summarize(ctx context.Context, user, assistant string) (Summary, error) {
	userFits := e.counter.Count(user) <= e.userBudget
	system := strings.NewReplacer(
		"{user_budget}", strconv.Itoa(e.userBudget),
		"{assistant_budget}", strconv.Itoa(e.assistantBudget),
	).Replace(summaryPrompt)
	msgs := []ChatMessage{
		SystemMessage(system),
		UserMessage("User_message: " + user + "\nAi_message: " + assistant),
	}

	var sum Summary
	var overBudget *Summary
	err := e.extract(ctx, e.provider, "summary", msgs, summarySchema, func(raw string) *MalformedError {
		overBudget = nil
		var out struct {
			User      string `json:"user_message"`
			Assistant string `json:"message_to_user"`
		}
		if err := decodeJSON(raw, &out); err != nil {
			return &MalformedError{Mode: "summary", Raw: raw, Reason: err.Error()}
		}
		cand := Summary{User: strings.TrimSpace(out.User), Assistant: strings.TrimSpace(out.Assistant)}
		if userFits {
			cand.User = user
		} else if cand.User == "" {
			return &MalformedError{Mode: "summary", Raw: raw, Reason: "empty user summary"}
		}
		if cand.Assistant == "" && strings.TrimSpace(assistant) != "" {
			return &MalformedError{Mode: "summary", Raw: raw, Reason: "empty assistant summary"}
		}

		var reasons []string
		if !userFits {
			if n := e.counter.Count(cand.User); n > e.userBudget {
				reasons = append(reasons, fmt.Sprintf("user summary is %d tokens, budget %d", n, e.userBudget))
			}
		}
		if n := e.counter.Count(cand.Assistant); n > e.assistantBudget {
			reasons = append(reasons, fmt.Sprintf("assistant summary is %d tokens, budget %d", n, e.assistantBudget))
		}
		if len(reasons) > 0 {
			overBudget = &cand
			return &MalformedError{Mode: "summary", Raw: raw, Reason: strings.Join(reasons, "; ")}
		}
		sum = cand
		return nil
	})
	if errors.Is(err, ErrMalformedOutput) && overBudget != nil {
		// The last answer was well-formed, only too long.
		cut := *overBudget
		if !userFits {
			cut.User = e.counter.Truncate(cut.User, e.userBudget)
		}
		cut.Assistant = e.counter.Truncate(cut.Assistant, e.assistantBudget)
		e.logger.Warn("summary over budget, truncated", "user_tokens", e.counter.Count(cut.User), "assistant_tokens", e.counter.Count(cut.Assistant))
		return cut, nil
	}
	return sum, err
}

// --- shared ---

// extract runs one extraction with a single corrective retry. parse returns
// nil when raw is acceptable. Provider errors are returned as they are.
func (e *Extractor) extract(ctx context.Context, p Provider, mode string, msgs []ChatMessage, schema *ResponseSchema, parse func(raw string) *MalformedError) error {
	ctx, span := startSpan(ctx, e.tracer, "extract."+mode)
	defer span.End()

	msgs = append([]ChatMessage(nil), msgs...)
	var last *MalformedError
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := p.Chat(ctx, ChatRequest{Messages: msgs, ResponseSchema: schema})
		if err != nil {
			span.Error(err)
			return fmt.Errorf("%s extraction: %w", mode, err)
		}
		last = parse(resp.Content)
		if last == nil {
			span.SetAttr(IntAttr("extract.attempts", attempt))
			return nil
		}
		if attempt == 1 {
			e.logger.Warn("extraction malformed, retrying", "mode", mode, "reason", last.Reason)
			msgs = append(msgs,
				AssistantMessage(resp.Content),
				UserMessage("That output was invalid: "+last.Reason+". Reply again with only a JSON object that matches the schema."))
		}
	}
	span.Error(last)
	return last
}

// decodeJSON parses the JSON object in raw, tolerating code fences and
// surrounding prose.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return errors.New("no JSON object in output")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
