package tarot

import (
	"fmt"
	"sort"
	"strings"
)

// Similarity is a card scored against a reference card.
type Similarity struct {
	Card  Card
	Score int
}

// Similar ranks every other card by how much it shares with the named card:
// suit and element (3 each), arcana (2), a rank within one step (2) or two
// steps (1), and 2 per keyword they have in common. Cards sharing nothing
// are left out. limit <= 0 means 5.
func (d *Deck) Similar(name string, limit int) (Card, []Similarity, error) {
	ref, ok := d.Lookup(name)
	if !ok {
		return Card{}, nil, fmt.Errorf("card %q not found", name)
	}
	if limit <= 0 {
		limit = 5
	}
	var out []Similarity
	for _, c := range d.cards {
		if c.ID == ref.ID {
			continue
		}
		if s := similarity(ref, c); s > 0 {
			out = append(out, Similarity{Card: c, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Card.Name < out[j].Card.Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return ref, out, nil
}

func similarity(a, b Card) int {
	score := 0
	if a.Suit != "" && a.Suit == b.Suit {
		score += 3
	}
	if a.Arcana == b.Arcana {
		score += 2
	}
	if a.Element != "" && a.Element == b.Element {
		score += 3
	}
	switch diff := a.Number - b.Number; {
	case diff >= -1 && diff <= 1:
		score += 2
	case diff >= -2 && diff <= 2:
		score++
	}
	for _, ka := range allKeywords(a) {
		for _, kb := range allKeywords(b) {
			if strings.EqualFold(ka, kb) {
				score += 2
			}
		}
	}
	return score
}

func allKeywords(c Card) []string {
	out := make([]string, 0, len(c.Upright)+len(c.Reversed))
	out = append(out, c.Upright...)
	return append(out, c.Reversed...)
}

// KeywordCount is how often a keyword appears across the deck.
type KeywordCount struct {
	Keyword string
	Count   int
}

// Stats summarises the deck's composition and data quality.
type Stats struct {
	Total       int
	Arcana      map[Arcana]int
	Suits       map[string]int
	Elements    map[string]int
	Complete    int
	Incomplete  []string
	AvgKeywords float64
	TopKeywords []KeywordCount
}

// Stats walks the deck once. A card is complete when it has an element and
// keywords for both orientations.
func (d *Deck) Stats() Stats {
	st := Stats{
		Total:    len(d.cards),
		Arcana:   map[Arcana]int{},
		Suits:    map[string]int{},
		Elements: map[string]int{},
	}
	counts := map[string]int{}
	keywords := 0
	for _, c := range d.cards {
		st.Arcana[c.Arcana]++
		if c.Suit != "" {
			st.Suits[c.Suit]++
		}
		if c.Element != "" {
			st.Elements[c.Element]++
		}
		if c.Element == "" || len(c.Upright) == 0 || len(c.Reversed) == 0 {
			st.Incomplete = append(st.Incomplete, c.Name)
		} else {
			st.Complete++
		}
		for _, k := range allKeywords(c) {
			counts[strings.ToLower(k)]++
			keywords++
		}
	}
	if st.Total > 0 {
		st.AvgKeywords = float64(keywords) / float64(st.Total)
	}
	for k, n := range counts {
		st.TopKeywords = append(st.TopKeywords, KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(st.TopKeywords, func(i, j int) bool {
		if st.TopKeywords[i].Count != st.TopKeywords[j].Count {
			return st.TopKeywords[i].Count > st.TopKeywords[j].Count
		}
		return st.TopKeywords[i].Keyword < st.TopKeywords[j].Keyword
	})
	if len(st.TopKeywords) > 10 {
		st.TopKeywords = st.TopKeywords[:10]
	}
	return st
}

// Recommendations lists follow-ups for gaps in the deck data.
func (st Stats) Recommendations() []string {
	var out []string
	if st.Total != 78 {
		out = append(out, fmt.Sprintf("The deck has %d cards; a full Rider-Waite deck has 78.", st.Total))
	}
	if len(st.Incomplete) > 0 {
		out = append(out, fmt.Sprintf("Fill in missing elements or keywords for %d cards: %s.", len(st.Incomplete), strings.Join(st.Incomplete, ", ")))
	}
	if st.AvgKeywords < 4 {
		out = append(out, fmt.Sprintf("Cards average %.1f keywords; aim for at least 4 for richer searches.", st.AvgKeywords))
	}
	if len(out) == 0 {
		out = append(out, "The deck data is complete.")
	}
	return out
}

// Format renders the stats as Markdown.
func (st Stats) Format(withRecommendations bool) string {
	var b strings.Builder
	b.WriteString("# Deck analytics\n\n")
	fmt.Fprintf(&b, "Total cards: %d\n", st.Total)
	fmt.Fprintf(&b, "Complete cards: %d of %d\n", st.Complete, st.Total)
	fmt.Fprintf(&b, "Average keywords per card: %.1f\n", st.AvgKeywords)

	b.WriteString("\n## Arcana\n")
	for _, a := range []Arcana{Major, Minor} {
		fmt.Fprintf(&b, "- %s: %d\n", a, st.Arcana[a])
	}
	writeCounts(&b, "Suits", st.Suits)
	writeCounts(&b, "Elements", st.Elements)

	if len(st.TopKeywords) > 0 {
		b.WriteString("\n## Most common keywords\n")
		for _, kc := range st.TopKeywords {
			fmt.Fprintf(&b, "- %s: %d\n", kc.Keyword, kc.Count)
		}
	}
	if withRecommendations {
		b.WriteString("\n## Recommendations\n")
		for _, r := range st.Recommendations() {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func writeCounts(b *strings.Builder, title string, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n## %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, m[k])
	}
}

// CardFilter narrows a random draw. Empty fields match every card.
type CardFilter struct {
	Suit    string
	Arcana  Arcana
	Element string
}

func (f CardFilter) validate() error {
	switch f.Suit {
	case "", "wands", "cups", "swords", "pentacles":
	default:
		return fmt.Errorf("unknown suit %q", f.Suit)
	}
	switch f.Arcana {
	case "", Major, Minor:
	default:
		return fmt.Errorf("unknown arcana %q", f.Arcana)
	}
	switch f.Element {
	case "", "fire", "water", "air", "earth":
	default:
		return fmt.Errorf("unknown element %q", f.Element)
	}
	return nil
}

func (f CardFilter) match(c Card) bool {
	return (f.Suit == "" || c.Suit == f.Suit) &&
		(f.Arcana == "" || c.Arcana == f.Arcana) &&
		(f.Element == "" || c.Element == f.Element)
}

// Random returns up to count distinct cards matching f, in shuffled order.
// These cards are a browsing aid and never form a reading.
func (r *Reader) Random(count int, f CardFilter) ([]Card, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	var pool []Card
	for _, c := range r.deck.cards {
		if f.match(c) {
			pool = append(pool, c)
		}
	}
	order, err := r.perm(len(pool))
	if err != nil {
		return nil, fmt.Errorf("tarot: shuffle: %w", err)
	}
	if count > len(pool) {
		count = len(pool)
	}
	out := make([]Card, count)
	for i := range out {
		out[i] = pool[order[i]]
	}
	return out, nil
}
