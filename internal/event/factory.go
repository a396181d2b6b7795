package event

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"clicksim/internal/catalog"
	"clicksim/internal/core"
	"clicksim/internal/session"
)

// Recorder receives the process-wide bookkeeping for generated events.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordEvent(Type)
	AddRevenue(decimal.Decimal)
}

// productPage is replaced by a concrete /products/<id> path on each draw.
const productPage = "/products/{id}"

var (
	pages      = []string{"/", "/products", productPage, "/cart", "/checkout", "/about", "/contact", "/search"}
	pageWeights = []float64{0.3, 0.2, 0.2, 0.1, 0.05, 0.05, 0.05, 0.05}

	elementTypes = []string{"button", "link", "image", "nav"}
	elementTexts = []string{"Buy Now", "Learn More", "Add to Cart", "View Details"}

	searchTerms      = []string{"laptop", "shoes", "phone case", "coffee", "book", "workout equipment", "desk lamp", "backpack"}
	searchQualifiers = []string{"", "best", "cheap", "review"}
	searchFilters    = []func() map[string]string{
		func() map[string]string { return map[string]string{} },
		func() map[string]string { return map[string]string{"category": "Electronics"} },
		func() map[string]string { return map[string]string{"price_range": "0-100"} },
	}

	quantities      = []int{1, 2, 3}
	quantityWeights = []float64{0.7, 0.2, 0.1}
	removeReasons   = []string{"changed_mind", "too_expensive", "found_better"}
	checkoutSteps   = []string{"shipping", "payment", "review"}
	paymentMethods  = []string{"credit_card", "paypal", "apple_pay"}
	shippingMethods = []string{"standard", "express", "next_day"}
)

// Factory turns (session, event type) pairs into events, applying the
// session mutation that each type implies.
type Factory struct {
	catalog  *catalog.Catalog
	recorder Recorder
	clock    core.Clock
}

// NewFactory creates a Factory. A nil clock uses the real clock.
func NewFactory(cat *catalog.Catalog, rec Recorder, clock core.Clock) *Factory {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Factory{catalog: cat, recorder: rec, clock: clock}
}

// Generate builds the next event of type t for sess and applies its side
// effects. rng must belong to the caller's session.
func (f *Factory) Generate(rng *rand.Rand, sess *session.Session, t Type) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     sess.UserID,
		SessionID:  sess.ID,
		Timestamp:  f.clock.Now().UTC().Truncate(time.Millisecond),
		DeviceType: string(sess.Device),
		Browser:    sess.Browser,
		Country:    sess.Country,
	}

	switch t {
	case PageView:
		ev.Properties = f.pageView(rng, sess)
	case Click:
		ev.Properties = click(rng)
	case Search:
		ev.Properties = search(rng)
	case AddToCart:
		ev.Properties = f.addToCart(rng, sess)
	case RemoveFromCart:
		ev.Properties = removeFromCart(rng, sess)
	case Checkout:
		ev.Properties = Properties{
			"step":       core.Pick(rng, checkoutSteps),
			"cart_items": sess.ItemCount(),
			"cart_value": money(sess.TotalValue),
		}
	case Purchase:
		ev.Properties = Properties{
			"order_id":        fmt.Sprintf("ORDER-%d", core.IntBetween(rng, 10000, 99999)),
			"items":           sess.ItemCount(),
			"total_amount":    money(sess.TotalValue),
			"payment_method":  core.Pick(rng, paymentMethods),
			"shipping_method": core.Pick(rng, shippingMethods),
		}
		f.recorder.AddRevenue(sess.TotalValue)
	default:
		panic(fmt.Sprintf("event: unhandled type %v", t))
	}

	f.recorder.RecordEvent(t)
	return ev
}

func (f *Factory) pageView(rng *rand.Rand, sess *session.Session) Properties {
	page := pages[core.WeightedIndex(rng, pageWeights)]
	if page == productPage {
		page = "/products/" + f.catalog.Random(rng).ID
	}

	referrer := "internal"
	if sess.PageViews == 0 {
		referrer = sess.Referrer
	}

	props := Properties{
		"page":               page,
		"referrer":           referrer,
		"page_load_time_ms":  core.IntBetween(rng, 200, 2000),
		"session_page_views": sess.PageViews,
	}
	sess.PageViews++
	return props
}

func click(rng *rand.Rand) Properties {
	return Properties{
		"element_type": core.Pick(rng, elementTypes),
		"element_id":   fmt.Sprintf("elem_%d", core.IntBetween(rng, 100, 999)),
		"element_text": core.Pick(rng, elementTexts),
		"x_position":   core.IntBetween(rng, 0, 1920),
		"y_position":   core.IntBetween(rng, 0, 1080),
	}
}

func search(rng *rand.Rand) Properties {
	query := core.Pick(rng, searchTerms) + " " + core.Pick(rng, searchQualifiers)
	return Properties{
		"query":           strings.TrimSpace(query),
		"results_count":   core.IntBetween(rng, 0, 100),
		"filters_applied": core.Pick(rng, searchFilters)(),
	}
}

func (f *Factory) addToCart(rng *rand.Rand, sess *session.Session) Properties {
	p := f.catalog.Random(rng)
	qty := quantities[core.WeightedIndex(rng, quantityWeights)]
	cartValue := sess.Add(p, qty)

	return Properties{
		"product_id":   p.ID,
		"product_name": p.Name,
		"category":     p.Category,
		"price":        money(p.Price),
		"quantity":     qty,
		"cart_value":   money(cartValue),
	}
}

func removeFromCart(rng *rand.Rand, sess *session.Session) Properties {
	if len(sess.Cart) == 0 {
		return Properties{}
	}
	p := sess.RemoveOne(rng.Intn(len(sess.Cart)))
	return Properties{
		"product_id":   p.ID,
		"product_name": p.Name,
		"reason":       core.Pick(rng, removeReasons),
	}
}
