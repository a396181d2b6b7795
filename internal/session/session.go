// Package session models the mutable state of one virtual user's visit.
package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"clicksim/internal/catalog"
	"clicksim/internal/core"
)

// DeviceType is the class of device a session browses from.
type DeviceType string

const (
	Desktop DeviceType = "desktop"
	Mobile  DeviceType = "mobile"
	Tablet  DeviceType = "tablet"
)

var (
	devices  = []DeviceType{Desktop, Mobile, Tablet}
	browsers = []string{"Chrome", "Firefox", "Safari", "Edge"}

	referrers       = []string{"google.com", "facebook.com", "direct", "twitter.com", "instagram.com", "reddit.com"}
	referrerWeights = []float64{0.4, 0.2, 0.2, 0.1, 0.05, 0.05}
)

// CartLine is one product in the cart together with the units still held.
type CartLine struct {
	Product  catalog.Product
	Quantity int
}

// Session is owned by exactly one runner and is never shared between goroutines.
type Session struct {
	ID         string
	UserID     string
	StartTime  time.Time
	PageViews  int
	Cart       []CartLine
	TotalValue decimal.Decimal
	Device     DeviceType
	Browser    string
	Country    string
	Referrer   string
}

// New creates a session with randomly drawn visitor attributes.
func New(rng *rand.Rand, now time.Time) *Session {
	faker := gofakeit.New(rng.Int63())
	return &Session{
		ID:        uuid.NewString(),
		UserID:    fmt.Sprintf("user_%d", 1000+rng.Intn(9000)),
		StartTime: now,
		Device:    core.Pick(rng, devices),
		Browser:   core.Pick(rng, browsers),
		Country:   faker.CountryAbr(),
		Referrer:  referrers[core.WeightedIndex(rng, referrerWeights)],
	}
}

// Add puts quantity units of p into the cart and returns the new total value.
func (s *Session) Add(p catalog.Product, quantity int) decimal.Decimal {
	s.Cart = append(s.Cart, CartLine{Product: p, Quantity: quantity})
	s.TotalValue = s.TotalValue.Add(p.Price.Mul(decimal.NewFromInt(int64(quantity))))
	return s.TotalValue
}

// RemoveOne takes a single unit out of cart line i and lowers the total by its
// unit price. A line whose last unit is removed leaves the cart.
func (s *Session) RemoveOne(i int) catalog.Product {
	line := &s.Cart[i]
	p := line.Product
	line.Quantity--
	if line.Quantity <= 0 {
		s.Cart = append(s.Cart[:i], s.Cart[i+1:]...)
	}
	s.TotalValue = s.TotalValue.Sub(p.Price)
	return p
}

// ItemCount returns the number of units in the cart.
func (s *Session) ItemCount() int {
	n := 0
	for _, l := range s.Cart {
		n += l.Quantity
	}
	return n
}

// Duration returns how long the session has been running according to clock.
func (s *Session) Duration(clock core.Clock) time.Duration {
	return clock.Since(s.StartTime)
}
