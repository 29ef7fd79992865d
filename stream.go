package seer

// Update is one line of the turn stream: only the fields the last step
// changed are set. The terminal update has NextNode == NodeEnd, or Error set
// with MemoryCommitted false.
type Update struct {
	MessageToUser   string      `json:"message_to_user,omitempty"`
	TaroCards       []TarotCard `json:"taro_cards,omitempty"`
	NextNode        Node        `json:"next_node,omitempty"`
	UnlockName      string      `json:"unlock_name,omitempty"`
	Error           string      `json:"error,omitempty"`
	MemoryCommitted *bool       `json:"memory_committed,omitempty"`
}

// Snapshot is the consumer-side view of a turn, built by merging updates.
type Snapshot struct {
	MessageToUser   string      `json:"message_to_user,omitempty"`
	TaroCards       []TarotCard `json:"taro_cards,omitempty"`
	NextNode        Node        `json:"next_node,omitempty"`
	UnlockName      string      `json:"unlock_name,omitempty"`
	Error           string      `json:"error,omitempty"`
	MemoryCommitted bool        `json:"memory_committed"`
}

// Apply merges u into s. Fields absent from u keep their previous value.
func (s *Snapshot) Apply(u Update) {
	if u.MessageToUser != "" {
		s.MessageToUser = u.MessageToUser
	}
	if u.TaroCards != nil {
		s.TaroCards = append([]TarotCard(nil), u.TaroCards...)
	}
	if u.NextNode != "" {
		s.NextNode = u.NextNode
	}
	if u.UnlockName != "" {
		s.UnlockName = u.UnlockName
	}
	if u.Error != "" {
		s.Error = u.Error
	}
	if u.MemoryCommitted != nil {
		s.MemoryCommitted = *u.MemoryCommitted
	}
}

// Done reports whether s reflects a terminal update.
func (s Snapshot) Done() bool {
	return s.NextNode == NodeEnd || s.Error != ""
}

// diff returns the update that turns prev into next.
func diff(prev, next Snapshot) Update {
	var u Update
	if next.MessageToUser != prev.MessageToUser {
		u.MessageToUser = next.MessageToUser
	}
	if len(next.TaroCards) > 0 && len(prev.TaroCards) == 0 {
		u.TaroCards = next.TaroCards
	}
	if next.NextNode != prev.NextNode {
		u.NextNode = next.NextNode
	}
	if next.UnlockName != prev.UnlockName {
		u.UnlockName = next.UnlockName
	}
	if next.MemoryCommitted != prev.MemoryCommitted {
		committed := next.MemoryCommitted
		u.MemoryCommitted = &committed
	}
	return u
}

func (u Update) empty() bool {
	return u.MessageToUser == "" && u.TaroCards == nil && u.NextNode == "" &&
		u.UnlockName == "" && u.Error == "" && u.MemoryCommitted == nil
}
