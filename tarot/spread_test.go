package tarot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpreadCardCounts(t *testing.T) {
	want := map[string]int{
		"Single Card":        1,
		"Three Card":         3,
		"Celtic Cross":       10,
		"Horseshoe":          7,
		"Relationship Cross": 7,
		"Career Path":        6,
		"Decision Making":    5,
		"Year Ahead":         13,
		"Spiritual Guidance": 6,
		"Chakra Alignment":   7,
		"Shadow Work":        5,
	}
	got := map[string]int{}
	for _, s := range Spreads() {
		got[s.Name] = s.CardCount()
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spread counts (-want +got):\n%s", diff)
	}
}

func TestLookupSpread(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Celtic Cross", "celtic_cross"},
		{"celtic_cross", "celtic_cross"},
		{"  three   card spread ", "three_card"},
		{"SINGLE CARD", "single_card"},
		{"Year Ahead Spread", "year_ahead"},
	}
	for _, tt := range tests {
		s, err := LookupSpread(tt.in)
		if err != nil {
			t.Errorf("LookupSpread(%q): %v", tt.in, err)
			continue
		}
		if s.ID != tt.want {
			t.Errorf("LookupSpread(%q) = %s, want %s", tt.in, s.ID, tt.want)
		}
	}
	for _, bad := range []string{"", "Tree of Life", "Pentagram"} {
		if _, err := LookupSpread(bad); err == nil {
			t.Errorf("LookupSpread(%q) should fail", bad)
		}
	}
}

func TestDrawMatchesSpread(t *testing.T) {
	r := NewReader(NewDeck())
	for _, s := range Spreads() {
		rd, err := r.Draw(s.ID, "what now?")
		if err != nil {
			t.Fatalf("Draw(%s): %v", s.ID, err)
		}
		if len(rd.Cards) != s.CardCount() {
			t.Errorf("%s drew %d cards, want %d", s.Name, len(rd.Cards), s.CardCount())
		}
		seen := map[string]bool{}
		for i, dc := range rd.Cards {
			if seen[dc.Card.ID] {
				t.Errorf("%s drew %s twice", s.Name, dc.Card.Name)
			}
			seen[dc.Card.ID] = true
			if dc.Position != s.Positions[i] {
				t.Errorf("%s card %d at %q, want %q", s.Name, i, dc.Position.Name, s.Positions[i].Name)
			}
		}
		if rd.ID == "" {
			t.Error("reading has no id")
		}
	}
}

func TestDrawEntropyFailure(t *testing.T) {
	r := NewReader(NewDeck(), WithEntropy(bytes.NewReader(nil)))
	if _, err := r.Draw("three_card", ""); err == nil {
		t.Fatal("expected error from exhausted entropy")
	}
}

func TestReadingFormat(t *testing.T) {
	r := NewReader(NewDeck())
	rd, err := r.Draw("Three Card", "love life")
	if err != nil {
		t.Fatal(err)
	}
	out := rd.Format()
	for _, want := range []string{"# Three Card", "Question: love life", "Past/Situation", "Future/Outcome", rd.ID} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted reading missing %q:\n%s", want, out)
		}
	}
}
