package tarot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/seer/mcp"
)

// ServerName and ServerVersion identify the tarot tool server over MCP.
const (
	ServerName    = "tarot"
	ServerVersion = "1.0.0"
)

// Register exposes the reader's deck and spreads as MCP tools on srv, plus a
// markdown resource listing the spreads.
func Register(srv *mcp.Server, r *Reader) {
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "perform_reading",
			Description: "Perform a tarot card reading using a specific spread",
			InputSchema: json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{`+
				`"spreadType":{"type":"string","enum":%s,"description":"The type of tarot spread to perform"},`+
				`"question":{"type":"string","description":"The question or focus for the reading"}},`+
				`"required":["spreadType","question"]}`, spreadIDsJSON())),
		},
		Execute: r.performReading,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "list_available_spreads",
			Description: "List all available tarot spreads with their card counts and positions",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Execute: func(context.Context, json.RawMessage) mcp.ToolCallResult {
			return mcp.TextResult(formatSpreads())
		},
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "get_card_info",
			Description: "Get detailed information about a specific tarot card from the Rider-Waite deck",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"cardName":{"type":"string","description":"The name of the tarot card (e.g., 'The Fool', 'Two of Cups')"},` +
				`"orientation":{"type":"string","enum":["upright","reversed"],"description":"The orientation of the card"}},` +
				`"required":["cardName"]}`),
		},
		Execute: r.cardInfo,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "list_all_cards",
			Description: "List all available tarot cards in the Rider-Waite deck",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"category":{"type":"string","enum":["all","major_arcana","minor_arcana","wands","cups","swords","pentacles"],"description":"Filter cards by category"}}}`),
		},
		Execute: r.listCards,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "search_cards",
			Description: "Search tarot cards by keyword in their names and meanings",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"keyword":{"type":"string","description":"Search keyword"}},"required":["keyword"]}`),
		},
		Execute: r.searchCards,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "find_similar_cards",
			Description: "Find tarot cards that share suit, element, rank or keywords with a given card",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"cardName":{"type":"string","description":"The card to compare against"},` +
				`"limit":{"type":"integer","minimum":1,"description":"Maximum number of similar cards to return (default: 5)"}},` +
				`"required":["cardName"]}`),
		},
		Execute: r.similarCards,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "get_database_analytics",
			Description: "Summarise the card database: arcana, suit and element distribution, keyword coverage and data quality",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"includeRecommendations":{"type":"boolean","description":"Include recommendations for improving the data (default: true)"}}}`),
		},
		Execute: r.analytics,
	})
	srv.AddTool(mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        "get_random_cards",
			Description: "Pick random tarot cards for browsing, optionally filtered by suit, arcana or element",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"count":{"type":"integer","minimum":1,"maximum":78,"description":"Number of cards (default: 1)"},` +
				`"suit":{"type":"string","enum":["wands","cups","swords","pentacles"]},` +
				`"arcana":{"type":"string","enum":["major","minor"]},` +
				`"element":{"type":"string","enum":["fire","water","air","earth"]}}}`),
		},
		Execute: r.randomCards,
	})
	srv.AddResource(mcp.Resource{
		URI:         "tarot://spreads",
		Name:        "Spreads",
		Description: "Available tarot spreads",
		MimeType:    "text/markdown",
		Read:        formatSpreads,
	})
}

func spreadIDsJSON() string {
	ids := make([]string, len(spreads))
	for i, s := range spreads {
		ids[i] = s.ID
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func (r *Reader) performReading(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		SpreadType string `json:"spreadType"`
		Question   string `json:"question"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return mcp.ErrorResult("invalid arguments: " + err.Error())
	}
	if p.SpreadType == "" {
		return mcp.ErrorResult("spreadType is required")
	}
	reading, err := r.Draw(p.SpreadType, p.Question)
	if err != nil {
		return mcp.ErrorResult(err.Error())
	}
	return mcp.TextResult(reading.Format())
}

func (r *Reader) cardInfo(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		CardName    string `json:"cardName"`
		Orientation string `json:"orientation"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return mcp.ErrorResult("invalid arguments: " + err.Error())
	}
	card, ok := r.deck.Lookup(p.CardName)
	if !ok {
		return mcp.ErrorResult(fmt.Sprintf("card %q not found", p.CardName))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", card.Name)
	fmt.Fprintf(&b, "Arcana: %s\n", card.Arcana)
	if card.Suit != "" {
		fmt.Fprintf(&b, "Suit: %s\n", card.Suit)
	}
	if card.Element != "" {
		fmt.Fprintf(&b, "Element: %s\n", card.Element)
	}
	switch p.Orientation {
	case "upright":
		fmt.Fprintf(&b, "\nUpright: %s\n%s\n", strings.Join(card.Upright, ", "), card.Meaning(false))
	case "reversed":
		fmt.Fprintf(&b, "\nReversed: %s\n%s\n", strings.Join(card.Reversed, ", "), card.Meaning(true))
	default:
		fmt.Fprintf(&b, "\nUpright: %s\nReversed: %s\n", strings.Join(card.Upright, ", "), strings.Join(card.Reversed, ", "))
	}
	return mcp.TextResult(b.String())
}

func (r *Reader) listCards(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return mcp.ErrorResult("invalid arguments: " + err.Error())
	}
	cards, err := r.deck.Filter(p.Category)
	if err != nil {
		return mcp.ErrorResult(err.Error())
	}
	return mcp.TextResult(cardList(cards))
}

func (r *Reader) searchCards(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		Keyword string `json:"keyword"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return mcp.ErrorResult("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(p.Keyword) == "" {
		return mcp.ErrorResult("keyword is required")
	}
	cards := r.deck.Search(p.Keyword)
	if len(cards) == 0 {
		return mcp.TextResult(fmt.Sprintf("No cards match %q.", p.Keyword))
	}
	return mcp.TextResult(cardList(cards))
}

func (r *Reader) similarCards(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		CardName string `json:"cardName"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return mcp.ErrorResult("invalid arguments: " + err.Error())
	}
	ref, similar, err := r.deck.Similar(p.CardName, p.Limit)
	if err != nil {
		return mcp.ErrorResult(err.Error())
	}
	if len(similar) == 0 {
		return mcp.TextResult(fmt.Sprintf("No cards resemble %s.", ref.Name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cards similar to %s:\n", ref.Name)
	for _, s := range similar {
		fmt.Fprintf(&b, "- %s (score %d): %s\n", s.Card.Name, s.Score, strings.Join(s.Card.Upright, ", "))
	}
	return mcp.TextResult(b.String())
}

func (r *Reader) analytics(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	p := struct {
		IncludeRecommendations *bool `json:"includeRecommendations"`
	}{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return mcp.ErrorResult("invalid arguments: " + err.Error())
		}
	}
	withRecs := p.IncludeRecommendations == nil || *p.IncludeRecommendations
	return mcp.TextResult(r.deck.Stats().Format(withRecs))
}

func (r *Reader) randomCards(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
	var p struct {
		Count   *int   `json:"count"`
		Suit    string `json:"suit"`
		Arcana  string `json:"arcana"`
		Element string `json:"element"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return mcp.ErrorResult("invalid arguments: " + err.Error())
		}
	}
	count := 1
	if p.Count != nil {
		count = *p.Count
	}
	cards, err := r.Random(count, CardFilter{Suit: p.Suit, Arcana: Arcana(p.Arcana), Element: p.Element})
	if err != nil {
		return mcp.ErrorResult(err.Error())
	}
	if len(cards) == 0 {
		return mcp.TextResult("No cards match those filters.")
	}
	return mcp.TextResult(cardList(cards))
}

func cardList(cards []Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d cards:\n", len(cards))
	for _, c := range cards {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, strings.Join(c.Upright, ", "))
	}
	return b.String()
}

func formatSpreads() string {
	var b strings.Builder
	b.WriteString("# Tarot spreads\n")
	for _, s := range spreads {
		fmt.Fprintf(&b, "\n## %s (`%s`, %d cards)\n%s\n", s.Name, s.ID, s.CardCount(), s.Description)
		for i, p := range s.Positions {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, p.Name, p.Meaning)
		}
	}
	return b.String()
}
