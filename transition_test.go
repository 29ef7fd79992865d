package seer

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from Node
		out  Outcome
		want Node
	}{
		{NodeTakeContext, Outcome{}, NodeRouter},
		{NodeRouter, Outcome{Route: NodeTaro}, NodeTaro},
		{NodeRouter, Outcome{Route: NodeAstro}, NodeAstro},
		{NodeRouter, Outcome{Route: NodeAddMemory}, NodeAddMemory},
		{NodeTaro, Outcome{WantsTools: true}, NodeTaroTool},
		{NodeTaro, Outcome{}, NodeImg},
		{NodeTaroTool, Outcome{}, NodeTaro},
		{NodeAstro, Outcome{WantsTools: true}, NodeAstroTool},
		{NodeAstro, Outcome{}, NodeAddMemory},
		{NodeAstroTool, Outcome{}, NodeAstro},
		{NodeImg, Outcome{}, NodeAddMemory},
		{NodeAddMemory, Outcome{}, NodeEnd},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.out)
		if err != nil {
			t.Errorf("Transition(%s, %+v): %v", tt.from, tt.out, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Transition(%s, %+v) = %s, want %s", tt.from, tt.out, got, tt.want)
		}
	}
}

func TestTransitionRejects(t *testing.T) {
	tests := []struct {
		name string
		from Node
		out  Outcome
	}{
		{"router to img", NodeRouter, Outcome{Route: NodeImg}},
		{"router to tool node", NodeRouter, Outcome{Route: NodeTaroTool}},
		{"router without route", NodeRouter, Outcome{}},
		{"router to unknown", NodeRouter, Outcome{Route: "taro_node"}},
		{"from end", NodeEnd, Outcome{}},
		{"from unknown", Node("weather"), Outcome{}},
		{"from zero", Node(""), Outcome{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Transition(tt.from, tt.out); !errors.Is(err, ErrUnknownNode) {
				t.Errorf("err = %v, want ErrUnknownNode", err)
			}
		})
	}
}

// Walking every outcome from take_context stays inside the enumeration and
// never goes back to the start.
func TestTransitionGraphIsClosed(t *testing.T) {
	outcomes := []Outcome{
		{}, {WantsTools: true},
		{Route: NodeTaro}, {Route: NodeAstro}, {Route: NodeAddMemory},
	}
	seen := map[Node]bool{}
	queue := []Node{NodeTakeContext}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] || n == NodeEnd {
			continue
		}
		seen[n] = true
		for _, out := range outcomes {
			next, err := Transition(n, out)
			if err != nil {
				continue
			}
			if !next.Valid() {
				t.Fatalf("Transition(%s, %+v) = %q, not a node", n, out, next)
			}
			if next == NodeTakeContext || next == NodeRouter {
				t.Errorf("unexpected cycle %s → %s", n, next)
			}
			queue = append(queue, next)
		}
	}
	if len(seen) != len(nodes)-1 {
		t.Errorf("reached %d nodes, want %d", len(seen), len(nodes)-1)
	}
}

func TestParseNode(t *testing.T) {
	for _, s := range []string{"router", " Taro ", "ADD_MEMORY", "end"} {
		if _, err := ParseNode(s); err != nil {
			t.Errorf("ParseNode(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "taro_node", "img2"} {
		if _, err := ParseNode(s); !errors.Is(err, ErrUnknownNode) {
			t.Errorf("ParseNode(%q) err = %v, want ErrUnknownNode", s, err)
		}
	}
}
