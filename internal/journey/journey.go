// Package journey maps visitor personas to the ordered event sequences they perform.
package journey

import (
	"errors"
	"fmt"
	"math/rand"

	"clicksim/internal/core"
	"clicksim/internal/event"
)

// Persona is a behavioral class of visitor.
type Persona uint8

const (
	Browser Persona = iota
	Researcher
	Buyer
	QuickBuyer
)

var personaNames = map[Persona]string{
	Browser:    "browser",
	Researcher: "researcher",
	Buyer:      "buyer",
	QuickBuyer: "quick_buyer",
}

func (p Persona) String() string {
	if name, ok := personaNames[p]; ok {
		return name
	}
	return fmt.Sprintf("persona(%d)", uint8(p))
}

// Entry binds a persona to its selection weight and event template.
type Entry struct {
	Persona Persona
	Weight  float64
	Events  []event.Type
}

// Model is an immutable weight table over personas.
type Model struct {
	entries []Entry
	weights []float64
}

// Errors returned by NewModel.
var (
	ErrNoPersonas     = errors.New("journey: no personas")
	ErrNegativeWeight = errors.New("journey: negative weight")
	ErrZeroWeight     = errors.New("journey: weights sum to zero")
	ErrEmptyJourney   = errors.New("journey: empty event template")
)

// NewModel validates entries and builds a Model. Weights need not sum to one;
// they are normalized at draw time.
func NewModel(entries []Entry) (*Model, error) {
	if len(entries) == 0 {
		return nil, ErrNoPersonas
	}

	m := &Model{
		entries: make([]Entry, len(entries)),
		weights: make([]float64, len(entries)),
	}
	var total float64
	for i, e := range entries {
		if e.Weight < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNegativeWeight, e.Persona)
		}
		if len(e.Events) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyJourney, e.Persona)
		}
		for _, t := range e.Events {
			if !t.Valid() {
				return nil, fmt.Errorf("journey: %s: invalid event type %d", e.Persona, uint8(t))
			}
		}
		total += e.Weight
		m.entries[i] = Entry{Persona: e.Persona, Weight: e.Weight, Events: append([]event.Type(nil), e.Events...)}
		m.weights[i] = e.Weight
	}
	if total <= 0 {
		return nil, ErrZeroWeight
	}
	return m, nil
}

// Default returns the storefront persona table.
func Default() *Model {
	m, err := NewModel([]Entry{
		{Browser, 0.6, []event.Type{
			event.PageView, event.PageView, event.Search, event.PageView, event.Click,
		}},
		{Researcher, 0.2, []event.Type{
			event.PageView, event.Search, event.PageView, event.Click, event.AddToCart,
			event.RemoveFromCart, event.PageView, event.Search,
		}},
		{Buyer, 0.15, []event.Type{
			event.PageView, event.Search, event.PageView, event.Click, event.AddToCart,
			event.PageView, event.AddToCart, event.Checkout, event.Purchase,
		}},
		{QuickBuyer, 0.05, []event.Type{
			event.PageView, event.AddToCart, event.Checkout, event.Purchase,
		}},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// Choose performs one weighted draw and returns the persona together with a
// copy of its event template.
func (m *Model) Choose(rng *rand.Rand) (Persona, []event.Type) {
	e := m.entries[core.WeightedIndex(rng, m.weights)]
	return e.Persona, append([]event.Type(nil), e.Events...)
}

// Entries returns a copy of the table.
func (m *Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = Entry{Persona: e.Persona, Weight: e.Weight, Events: append([]event.Type(nil), e.Events...)}
	}
	return out
}

// Probability returns the normalized selection probability of p.
func (m *Model) Probability(p Persona) float64 {
	var total, w float64
	for _, e := range m.entries {
		total += e.Weight
		if e.Persona == p {
			w += e.Weight
		}
	}
	return w / total
}
