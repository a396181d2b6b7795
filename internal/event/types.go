package event

import (
	"fmt"
)

// Type is the closed set of event kinds a session can emit.
type Type uint8

const (
	PageView Type = iota
	Click
	Search
	AddToCart
	RemoveFromCart
	Checkout
	Purchase

	// NumTypes is the number of event types; usable as an array length.
	NumTypes = int(Purchase) + 1
)

var typeNames = [NumTypes]string{
	PageView:       "page_view",
	Click:          "click",
	Search:         "search",
	AddToCart:      "add_to_cart",
	RemoveFromCart: "remove_from_cart",
	Checkout:       "checkout",
	Purchase:       "purchase",
}

// Types returns every event type in declaration order.
func Types() []Type {
	out := make([]Type, NumTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

func (t Type) String() string {
	if int(t) < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("event_type(%d)", uint8(t))
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	return int(t) < NumTypes
}

// ParseType returns the type with the given wire name.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid event type %d", uint8(t))
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
