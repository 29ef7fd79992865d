package tarot

import (
	"fmt"
	"strings"
)

// Position is one slot of a spread layout.
type Position struct {
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

// Spread is a named layout with a fixed card count.
type Spread struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Positions   []Position `json:"positions"`
}

// CardCount is the number of cards the spread draws.
func (s Spread) CardCount() int { return len(s.Positions) }

func pos(name, meaning string) Position { return Position{Name: name, Meaning: meaning} }

// spreads is the closed set of spreads, in presentation order.
var spreads = []Spread{
	{ID: "single_card", Name: "Single Card", Description: "One card for a focused answer or daily guidance.",
		Positions: []Position{pos("The Message", "The core guidance for your question")}},
	{ID: "three_card", Name: "Three Card", Description: "Past, present, and future of a situation.",
		Positions: []Position{
			pos("Past/Situation", "What led to the present"),
			pos("Present/Action", "Where things stand now"),
			pos("Future/Outcome", "Where things are heading"),
		}},
	{ID: "celtic_cross", Name: "Celtic Cross", Description: "The classic ten-card deep reading.",
		Positions: []Position{
			pos("Present Situation", "The heart of the matter"),
			pos("Challenge/Cross", "What crosses you"),
			pos("Distant Past/Foundation", "The root of the situation"),
			pos("Recent Past", "What is passing away"),
			pos("Possible Outcome", "What could come to be"),
			pos("Near Future", "What approaches"),
			pos("Your Approach", "How you meet the situation"),
			pos("External Influences", "People and forces around you"),
			pos("Hopes and Fears", "What you hope for and dread"),
			pos("Final Outcome", "Where the path leads"),
		}},
	{ID: "horseshoe", Name: "Horseshoe", Description: "Seven cards arcing from past to likely outcome.",
		Positions: []Position{
			pos("Past Influences", "What shaped the situation"),
			pos("Present Situation", "Where you stand"),
			pos("Hidden Influences", "What you cannot see"),
			pos("Obstacles", "What stands in the way"),
			pos("External Influences", "The people around you"),
			pos("Advice", "What to do"),
			pos("Likely Outcome", "Where it is heading"),
		}},
	{ID: "relationship_cross", Name: "Relationship Cross", Description: "The dynamics between two people.",
		Positions: []Position{
			pos("You", "Your part in the relationship"),
			pos("Your Partner", "Their part in the relationship"),
			pos("The Relationship", "The bond itself"),
			pos("What Unites You", "Shared ground"),
			pos("What Divides You", "Points of friction"),
			pos("Advice", "How to nurture the bond"),
			pos("Future Potential", "Where the relationship can go"),
		}},
	{ID: "career_path", Name: "Career Path", Description: "Work, calling, and professional growth.",
		Positions: []Position{
			pos("Current Career Situation", "Where your work stands"),
			pos("Your Skills and Talents", "What you bring"),
			pos("Career Challenges", "What holds you back"),
			pos("Hidden Opportunities", "Openings you have missed"),
			pos("Action to Take", "Your next move"),
			pos("Career Outcome", "Where your path leads"),
		}},
	{ID: "decision_making", Name: "Decision Making", Description: "Weighing two options.",
		Positions: []Position{
			pos("The Situation", "What the choice is about"),
			pos("Option A", "Where the first path leads"),
			pos("Option B", "Where the second path leads"),
			pos("What You Need to Know", "The missing piece"),
			pos("Recommended Path", "The wiser direction"),
		}},
	{ID: "year_ahead", Name: "Year Ahead", Description: "An overall theme and one card per month.",
		Positions: append([]Position{pos("Overall Theme", "The tone of the year")}, monthPositions()...)},
	{ID: "spiritual_guidance", Name: "Spiritual Guidance", Description: "Your spiritual state and next steps.",
		Positions: []Position{
			pos("Your Spiritual State", "Where your spirit stands"),
			pos("Spiritual Lessons", "What you are learning"),
			pos("Blocks to Growth", "What holds you back"),
			pos("Spiritual Gifts", "What you can offer"),
			pos("Guidance from Above", "The message for you"),
			pos("Next Steps", "How to keep growing"),
		}},
	{ID: "chakra_alignment", Name: "Chakra Alignment", Description: "One card per chakra, root to crown.",
		Positions: []Position{
			pos("Root Chakra", "Safety and grounding"),
			pos("Sacral Chakra", "Creativity and pleasure"),
			pos("Solar Plexus Chakra", "Will and confidence"),
			pos("Heart Chakra", "Love and compassion"),
			pos("Throat Chakra", "Expression and truth"),
			pos("Third Eye Chakra", "Intuition and insight"),
			pos("Crown Chakra", "Connection to spirit"),
		}},
	{ID: "shadow_work", Name: "Shadow Work", Description: "Meeting and integrating the shadow self.",
		Positions: []Position{
			pos("Your Shadow", "What you keep hidden"),
			pos("How It Manifests", "Where it shows up"),
			pos("The Gift Within", "What it offers you"),
			pos("Integration Process", "How to embrace it"),
			pos("Transformation", "Who you become"),
		}},
}

func monthPositions() []Position {
	months := []string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"}
	out := make([]Position, len(months))
	for i, m := range months {
		out[i] = pos(m, "The energy of "+m)
	}
	return out
}

// Spreads returns the closed set of spreads in presentation order.
func Spreads() []Spread {
	out := make([]Spread, len(spreads))
	copy(out, spreads)
	return out
}

// SpreadNames returns the display names of all spreads.
func SpreadNames() []string {
	names := make([]string, len(spreads))
	for i, s := range spreads {
		names[i] = s.Name
	}
	return names
}

// LookupSpread resolves a spread by display name ("Celtic Cross") or id
// ("celtic_cross"), ignoring case, surrounding space and a trailing
// "Spread" ("Three Card Spread").
func LookupSpread(name string) (Spread, error) {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	key = strings.TrimSuffix(key, " spread")
	for _, s := range spreads {
		if key == strings.ToLower(s.Name) || key == s.ID {
			return s, nil
		}
	}
	return Spread{}, fmt.Errorf("unknown spread %q", name)
}
