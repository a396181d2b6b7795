package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// csvColumns lists the header a catalog CSV must carry, in any order.
var csvColumns = []string{"id", "name", "category", "price", "rating", "in_stock"}

// LoadFile loads a catalog from a CSV or JSON file.
// Relative paths are resolved against baseDir (typically the config file's directory).
func LoadFile(path, baseDir string) (*Catalog, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var products []Product
	var err error

	switch ext {
	case ".csv":
		products, err = loadCSV(path)
	case ".json":
		products, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	c, err := New(products)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// loadCSV reads a header row followed by one product per row.
func loadCSV(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV missing column %q", col)
		}
	}

	products := make([]Product, 0, len(records)-1)
	for line, record := range records[1:] {
		field := func(col string) string {
			if i := index[col]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		price, err := decimal.NewFromString(field("price"))
		if err != nil {
			return nil, fmt.Errorf("row %d: price: %w", line+2, err)
		}
		rating, err := strconv.ParseFloat(field("rating"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: rating: %w", line+2, err)
		}
		inStock, err := strconv.ParseBool(field("in_stock"))
		if err != nil {
			return nil, fmt.Errorf("row %d: in_stock: %w", line+2, err)
		}

		products = append(products, Product{
			ID:       field("id"),
			Name:     field("name"),
			Category: field("category"),
			Price:    price.Round(2),
			Rating:   rating,
			InStock:  inStock,
		})
	}
	return products, nil
}

// loadJSON reads an array of product objects.
func loadJSON(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("JSON must be an array of products: %w", err)
	}
	for i := range products {
		products[i].Price = products[i].Price.Round(2)
	}
	return products, nil
}
