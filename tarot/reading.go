package tarot

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DrawnCard is a card laid into a spread position.
type DrawnCard struct {
	Card     Card     `json:"card"`
	Reversed bool     `json:"reversed"`
	Position Position `json:"position"`
}

// Reading is the outcome of one spread.
type Reading struct {
	ID        string      `json:"id"`
	Spread    Spread      `json:"spread"`
	Question  string      `json:"question"`
	Cards     []DrawnCard `json:"cards"`
	CreatedAt time.Time   `json:"created_at"`
}

// Reader draws readings from a deck.
type Reader struct {
	deck    *Deck
	entropy io.Reader
	now     func() time.Time
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithEntropy replaces the crypto/rand source (tests use a seeded reader).
func WithEntropy(r io.Reader) ReaderOption {
	return func(rd *Reader) { rd.entropy = r }
}

// NewReader creates a Reader over deck.
func NewReader(deck *Deck, opts ...ReaderOption) *Reader {
	r := &Reader{deck: deck, entropy: rand.Reader, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Deck returns the deck the reader draws from.
func (r *Reader) Deck() *Deck { return r.deck }

// Draw lays out spreadName with distinct cards and random orientations.
func (r *Reader) Draw(spreadName, question string) (Reading, error) {
	spread, err := LookupSpread(spreadName)
	if err != nil {
		return Reading{}, err
	}
	n := spread.CardCount()
	if n > r.deck.Len() {
		return Reading{}, fmt.Errorf("spread %s needs %d cards, deck has %d", spread.Name, n, r.deck.Len())
	}

	order, err := r.perm(r.deck.Len())
	if err != nil {
		return Reading{}, fmt.Errorf("tarot: shuffle: %w", err)
	}
	cards := r.deck.Cards()
	drawn := make([]DrawnCard, n)
	for i := 0; i < n; i++ {
		flip, err := r.intn(2)
		if err != nil {
			return Reading{}, fmt.Errorf("tarot: orientation: %w", err)
		}
		drawn[i] = DrawnCard{Card: cards[order[i]], Reversed: flip == 1, Position: spread.Positions[i]}
	}
	return Reading{
		ID:        uuid.NewString(),
		Spread:    spread,
		Question:  question,
		Cards:     drawn,
		CreatedAt: r.now(),
	}, nil
}

// perm is a Fisher-Yates permutation of [0, n).
func (r *Reader) perm(n int) ([]int, error) {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, err := r.intn(i + 1)
		if err != nil {
			return nil, err
		}
		p[i], p[j] = p[j], p[i]
	}
	return p, nil
}

func (r *Reader) intn(n int) (int, error) {
	v, err := rand.Int(r.entropy, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Format renders the reading as Markdown for the agent.
func (rd Reading) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rd.Spread.Name)
	if rd.Question != "" {
		fmt.Fprintf(&b, "Question: %s\n\n", rd.Question)
	}
	for i, dc := range rd.Cards {
		orientation := "upright"
		if dc.Reversed {
			orientation = "reversed"
		}
		fmt.Fprintf(&b, "%d. **%s** (%s): %s, %s\n   %s\n",
			i+1, dc.Position.Name, dc.Position.Meaning, dc.Card.Name, orientation, dc.Card.Meaning(dc.Reversed))
	}
	fmt.Fprintf(&b, "\nReading ID: %s\n", rd.ID)
	return b.String()
}
