// Package catalog holds the read-only product reference data shared by all sessions.
package catalog

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// ErrEmptyCatalog is returned when a catalog would contain no products.
var ErrEmptyCatalog = errors.New("catalog: no products")

// Product is an immutable catalog entry.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Rating   float64         `json:"rating"`
	InStock  bool            `json:"in_stock"`
}

// Catalog is a fixed product set. It is never mutated after construction,
// so concurrent readers need no locking.
type Catalog struct {
	products []Product
}

// New builds a catalog from products. The slice is copied.
func New(products []Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %d: missing id", i)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %s: negative price %s", p.ID, p.Price)
		}
		if p.Rating < 0 || p.Rating > 5 {
			return nil, fmt.Errorf("product %s: rating %.1f out of range [0, 5]", p.ID, p.Rating)
		}
	}
	cp := make([]Product, len(products))
	copy(cp, products)
	return &Catalog{products: cp}, nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}

// At returns the i-th product.
func (c *Catalog) At(i int) Product {
	return c.products[i]
}

// Products returns a copy of all products.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Random returns a uniformly drawn product.
func (c *Catalog) Random(rng *rand.Rand) Product {
	return c.products[rng.Intn(len(c.products))]
}

// categories is the storefront assortment used for generated catalogs.
var categories = []struct {
	name  string
	items []string
}{
	{"Electronics", []string{"Laptop", "Phone", "Headphones", "Tablet", "Smart Watch"}},
	{"Clothing", []string{"T-Shirt", "Jeans", "Jacket", "Shoes", "Hat"}},
	{"Home", []string{"Coffee Maker", "Blender", "Vacuum", "Lamp", "Rug"}},
	{"Sports", []string{"Running Shoes", "Yoga Mat", "Weights", "Bike", "Ball"}},
	{"Books", []string{"Fiction", "Non-Fiction", "Textbook", "Comic", "Magazine"}},
}

var (
	minPrice = decimal.RequireFromString("9.99")
	maxPrice = decimal.RequireFromString("999.99")
)

// Generate builds the default catalog: five items in each of five categories,
// prices in [9.99, 999.99], ratings in [3.0, 5.0], and three in four products in stock.
func Generate(rng *rand.Rand) *Catalog {
	faker := gofakeit.New(rng.Int63())

	// cents keep the draw exact at two decimal places
	minCents := minPrice.Shift(2).IntPart()
	spanCents := maxPrice.Shift(2).IntPart() - minCents

	products := make([]Product, 0, 25)
	for _, cat := range categories {
		for _, item := range cat.items {
			cents := minCents + rng.Int63n(spanCents+1)
			products = append(products, Product{
				ID:       fmt.Sprintf("PROD-%d", 1000+rng.Intn(9000)),
				Name:     faker.Company() + " " + item,
				Category: cat.name,
				Price:    decimal.New(cents, -2),
				Rating:   float64(30+rng.Intn(21)) / 10,
				InStock:  rng.Intn(4) != 0,
			})
		}
	}

	c, _ := New(products) // generated products are always valid
	return c
}
