package seer

import "fmt"

// Outcome is what a node reports after it runs: the router's chosen
// destination, or whether an agent asked for tools.
type Outcome struct {
	Route      Node
	WantsTools bool
}

// Transition returns the node that follows from after it produced out. It is
// pure: the engine calls it after every step and refuses to move on when it
// returns an error.
//
//	take_context → router
//	router       → taro | astro | add_memory
//	taro         → taro_tool (tools requested) | img
//	taro_tool    → taro
//	astro        → astro_tool (tools requested) | add_memory
//	astro_tool   → astro
//	img          → add_memory
//	add_memory   → end
func Transition(from Node, out Outcome) (Node, error) {
	switch from {
	case NodeTakeContext:
		return NodeRouter, nil
	case NodeRouter:
		switch out.Route {
		case NodeTaro, NodeAstro, NodeAddMemory:
			return out.Route, nil
		}
		return "", fmt.Errorf("%w: router chose %q", ErrUnknownNode, out.Route)
	case NodeTaro:
		if out.WantsTools {
			return NodeTaroTool, nil
		}
		return NodeImg, nil
	case NodeTaroTool:
		return NodeTaro, nil
	case NodeAstro:
		if out.WantsTools {
			return NodeAstroTool, nil
		}
		return NodeAddMemory, nil
	case NodeAstroTool:
		return NodeAstro, nil
	case NodeImg:
		return NodeAddMemory, nil
	case NodeAddMemory:
		return NodeEnd, nil
	case NodeEnd:
		return "", fmt.Errorf("%w: no transition out of %s", ErrUnknownNode, NodeEnd)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNode, from)
}
