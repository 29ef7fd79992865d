package seer

import (
	"errors"
	"fmt"
	"strings"
)

// Node is a workflow step. The zero value is invalid.
type Node string

const (
	NodeTakeContext Node = "take_context"
	NodeRouter      Node = "router"
	NodeTaro        Node = "taro"
	NodeTaroTool    Node = "taro_tool"
	NodeAstro       Node = "astro"
	NodeAstroTool   Node = "astro_tool"
	NodeImg         Node = "img"
	NodeAddMemory   Node = "add_memory"
	NodeEnd         Node = "end"
)

var nodes = []Node{
	NodeTakeContext, NodeRouter, NodeTaro, NodeTaroTool,
	NodeAstro, NodeAstroTool, NodeImg, NodeAddMemory, NodeEnd,
}

// Valid reports whether n is one of the workflow's nodes.
func (n Node) Valid() bool {
	for _, v := range nodes {
		if n == v {
			return true
		}
	}
	return false
}

func (n Node) String() string { return string(n) }

// ParseNode converts s to a Node. Surrounding space and case are ignored.
func ParseNode(s string) (Node, error) {
	n := Node(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownNode, s)
	}
	return n, nil
}

// TarotCard is one extracted card. Name is the canonical token, e.g.
// "thelovers".
type TarotCard struct {
	Name     string `json:"name"`
	Reversed bool   `json:"reversed"`
}

// Identity is the caller-supplied, per-turn user profile. Nodes read it and
// never write it.
type Identity struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	BirthDay  string `json:"birth_day"`
	TimeBirth string `json:"time_birth"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// TurnInput starts one turn. UserID doubles as the memory thread ID.
type TurnInput struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	BirthDay  string `json:"birth_day"`
	TimeBirth string `json:"time_birth"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Name      string `json:"name"`
}

// Validate checks the fields a turn cannot start without.
func (in TurnInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if strings.TrimSpace(in.UserID) == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	return errors.Join(errs...)
}

// Identity returns the profile part of the input.
func (in TurnInput) Identity() Identity {
	return Identity{
		UserID:    in.UserID,
		Name:      in.Name,
		BirthDay:  in.BirthDay,
		TimeBirth: in.TimeBirth,
		City:      in.City,
		Country:   in.Country,
	}
}

// TurnState is the record threaded through one turn. It is created fresh for
// every incoming message and discarded once the turn reaches NodeEnd or fails.
//
// Node ownership:
//   - take_context writes Context
//   - router writes UserMessage, Next, and MessageToUser on a direct answer
//   - taro/astro append to History and write MessageToUser
//   - img writes TaroCards and UnlockName (once each)
//   - add_memory writes MemoryCommitted
type TurnState struct {
	ID       string
	Identity Identity

	History       []ChatMessage
	Next          Node
	Context       string
	UserMessage   string
	MessageToUser string

	TaroCards  []TarotCard
	UnlockName string

	MemoryCommitted bool

	cardsSet  bool
	unlockSet bool
}

func newTurnState(id string, in TurnInput) *TurnState {
	return &TurnState{
		ID:       id,
		Identity: in.Identity(),
		History:  []ChatMessage{UserMessage(in.Message)},
		Next:     NodeTakeContext,
	}
}

// Append adds messages to the history. History is never rewritten.
func (s *TurnState) Append(msgs ...ChatMessage) {
	s.History = append(s.History, msgs...)
}

// SetTaroCards records the extracted cards. A second call fails with
// ErrAlreadySet.
func (s *TurnState) SetTaroCards(cards []TarotCard) error {
	if s.cardsSet {
		return fmt.Errorf("taro_cards: %w", ErrAlreadySet)
	}
	s.TaroCards = append([]TarotCard(nil), cards...)
	s.cardsSet = true
	return nil
}

// SetUnlockName records the extracted spread name. A second call fails with
// ErrAlreadySet.
func (s *TurnState) SetUnlockName(name string) error {
	if s.unlockSet {
		return fmt.Errorf("unlock_name: %w", ErrAlreadySet)
	}
	s.UnlockName = name
	s.unlockSet = true
	return nil
}

// Snapshot returns the stream-visible view of the state.
func (s *TurnState) Snapshot() Snapshot {
	return Snapshot{
		MessageToUser:   s.MessageToUser,
		TaroCards:       append([]TarotCard(nil), s.TaroCards...),
		NextNode:        s.Next,
		UnlockName:      s.UnlockName,
		MemoryCommitted: s.MemoryCommitted,
	}
}
