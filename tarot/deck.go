// Package tarot holds the Rider-Waite deck, the closed set of named spreads,
// card-name normalisation, and the reading generator behind the tarot tool
// server.
package tarot

import (
	"fmt"
	"sort"
	"strings"
)

// Arcana is the deck half a card belongs to.
type Arcana string

const (
	Major Arcana = "major"
	Minor Arcana = "minor"
)

// Card is one of the 78 cards. ID is the canonical token produced by
// Normalize(Name), e.g. "thelovers" or "aceofcups".
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Arcana   Arcana   `json:"arcana"`
	Suit     string   `json:"suit,omitempty"`
	Number   int      `json:"number"`
	Element  string   `json:"element,omitempty"`
	Upright  []string `json:"upright"`
	Reversed []string `json:"reversed"`
}

// Keywords returns the keyword list for the given orientation.
func (c Card) Keywords(reversed bool) []string {
	if reversed {
		return c.Reversed
	}
	return c.Upright
}

// Meaning renders a one-line interpretation for the given orientation.
func (c Card) Meaning(reversed bool) string {
	if reversed {
		return fmt.Sprintf("%s reversed points to %s.", c.Name, strings.Join(c.Reversed, ", "))
	}
	return fmt.Sprintf("%s upright speaks of %s.", c.Name, strings.Join(c.Upright, ", "))
}

type majorSpec struct {
	name     string
	element  string
	upright  []string
	reversed []string
}

var majors = []majorSpec{
	{"The Fool", "air", []string{"beginnings", "innocence", "spontaneity"}, []string{"recklessness", "hesitation", "naivety"}},
	{"The Magician", "air", []string{"willpower", "skill", "manifestation"}, []string{"manipulation", "untapped talent", "trickery"}},
	{"The High Priestess", "water", []string{"intuition", "mystery", "inner voice"}, []string{"secrets", "withdrawal", "ignored intuition"}},
	{"The Empress", "earth", []string{"abundance", "nurturing", "fertility"}, []string{"dependence", "creative block", "smothering"}},
	{"The Emperor", "fire", []string{"authority", "structure", "stability"}, []string{"rigidity", "domination", "lack of discipline"}},
	{"The Hierophant", "earth", []string{"tradition", "guidance", "belief"}, []string{"rebellion", "dogma", "unconventionality"}},
	{"The Lovers", "air", []string{"love", "harmony", "choice"}, []string{"disharmony", "imbalance", "misaligned values"}},
	{"The Chariot", "water", []string{"determination", "control", "victory"}, []string{"lack of direction", "aggression", "scattered energy"}},
	{"Strength", "fire", []string{"courage", "compassion", "patience"}, []string{"self-doubt", "weakness", "raw emotion"}},
	{"The Hermit", "earth", []string{"introspection", "solitude", "wisdom"}, []string{"isolation", "loneliness", "withdrawal"}},
	{"Wheel of Fortune", "fire", []string{"cycles", "destiny", "turning point"}, []string{"bad luck", "resistance to change", "broken cycles"}},
	{"Justice", "air", []string{"fairness", "truth", "cause and effect"}, []string{"dishonesty", "unaccountability", "unfairness"}},
	{"The Hanged Man", "water", []string{"surrender", "new perspective", "pause"}, []string{"stalling", "needless sacrifice", "indecision"}},
	{"Death", "water", []string{"endings", "transformation", "transition"}, []string{"resistance to change", "stagnation", "lingering"}},
	{"Temperance", "fire", []string{"balance", "moderation", "purpose"}, []string{"excess", "imbalance", "realignment"}},
	{"The Devil", "earth", []string{"attachment", "temptation", "shadow self"}, []string{"release", "breaking free", "reclaiming power"}},
	{"The Tower", "fire", []string{"upheaval", "revelation", "sudden change"}, []string{"averted disaster", "fear of change", "delayed collapse"}},
	{"The Star", "air", []string{"hope", "renewal", "inspiration"}, []string{"despair", "disconnection", "lost faith"}},
	{"The Moon", "water", []string{"illusion", "dreams", "subconscious"}, []string{"clarity", "released fear", "confusion lifting"}},
	{"The Sun", "fire", []string{"joy", "success", "vitality"}, []string{"temporary sadness", "overconfidence", "dimmed light"}},
	{"Judgement", "fire", []string{"awakening", "reckoning", "renewal"}, []string{"self-doubt", "harsh judgement", "ignored calling"}},
	{"The World", "earth", []string{"completion", "wholeness", "accomplishment"}, []string{"loose ends", "delays", "lack of closure"}},
}

type suitSpec struct {
	name     string
	element  string
	upright  string
	reversed string
}

var suits = []suitSpec{
	{"Wands", "fire", "passion", "burnout"},
	{"Cups", "water", "emotion", "emotional blockage"},
	{"Swords", "air", "clarity of mind", "mental conflict"},
	{"Pentacles", "earth", "material growth", "financial strain"},
}

type rankSpec struct {
	name     string
	upright  []string
	reversed []string
}

var ranks = []rankSpec{
	{"Ace", []string{"new potential", "opportunity"}, []string{"missed chance", "delay"}},
	{"Two", []string{"partnership", "decision"}, []string{"imbalance", "indecision"}},
	{"Three", []string{"growth", "collaboration"}, []string{"setback", "isolation"}},
	{"Four", []string{"stability", "rest"}, []string{"restlessness", "stagnation"}},
	{"Five", []string{"conflict", "challenge"}, []string{"recovery", "avoided conflict"}},
	{"Six", []string{"harmony", "progress"}, []string{"nostalgia", "stalled progress"}},
	{"Seven", []string{"reflection", "perseverance"}, []string{"self-deception", "giving up"}},
	{"Eight", []string{"movement", "mastery"}, []string{"restriction", "haste"}},
	{"Nine", []string{"near completion", "resilience"}, []string{"anxiety", "exhaustion"}},
	{"Ten", []string{"culmination", "fulfilment"}, []string{"burden", "collapse"}},
	{"Page", []string{"curiosity", "message"}, []string{"immaturity", "bad news"}},
	{"Knight", []string{"action", "pursuit"}, []string{"impulsiveness", "stalling"}},
	{"Queen", []string{"maturity", "care"}, []string{"insecurity", "coldness"}},
	{"King", []string{"mastery", "leadership"}, []string{"control", "abuse of power"}},
}

// Deck is an immutable, indexed set of cards.
type Deck struct {
	cards []Card
	byID  map[string]int
}

// NewDeck builds the 78-card Rider-Waite deck.
func NewDeck() *Deck {
	d := &Deck{byID: make(map[string]int, 78)}
	for i, m := range majors {
		d.add(Card{
			Name:     m.name,
			Arcana:   Major,
			Number:   i,
			Element:  m.element,
			Upright:  m.upright,
			Reversed: m.reversed,
		})
	}
	for _, s := range suits {
		for i, r := range ranks {
			d.add(Card{
				Name:     r.name + " of " + s.name,
				Arcana:   Minor,
				Suit:     strings.ToLower(s.name),
				Number:   i + 1,
				Element:  s.element,
				Upright:  append([]string{s.upright}, r.upright...),
				Reversed: append([]string{s.reversed}, r.reversed...),
			})
		}
	}
	return d
}

func (d *Deck) add(c Card) {
	c.ID = Normalize(c.Name)
	d.byID[c.ID] = len(d.cards)
	d.cards = append(d.cards, c)
}

// Cards returns all cards in deck order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Len returns the number of cards.
func (d *Deck) Len() int { return len(d.cards) }

// Lookup resolves a free-form card name ("The Lovers", "2 of cups",
// "Judgment", "lovers") to its card.
func (d *Deck) Lookup(name string) (Card, bool) {
	for _, id := range candidates(name) {
		if i, ok := d.byID[id]; ok {
			return d.cards[i], true
		}
	}
	return Card{}, false
}

// Filter returns cards in a category: all, major_arcana, minor_arcana, or a
// suit name.
func (d *Deck) Filter(category string) ([]Card, error) {
	var out []Card
	switch category {
	case "", "all":
		return d.Cards(), nil
	case "major_arcana":
		for _, c := range d.cards {
			if c.Arcana == Major {
				out = append(out, c)
			}
		}
	case "minor_arcana":
		for _, c := range d.cards {
			if c.Arcana == Minor {
				out = append(out, c)
			}
		}
	case "wands", "cups", "swords", "pentacles":
		for _, c := range d.cards {
			if c.Suit == category {
				out = append(out, c)
			}
		}
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return out, nil
}

// Search returns cards whose name or keywords contain keyword, sorted by name.
func (d *Deck) Search(keyword string) []Card {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil
	}
	var out []Card
	for _, c := range d.cards {
		if strings.Contains(strings.ToLower(c.Name), kw) || containsKeyword(c.Upright, kw) || containsKeyword(c.Reversed, kw) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func containsKeyword(list []string, kw string) bool {
	for _, k := range list {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}
