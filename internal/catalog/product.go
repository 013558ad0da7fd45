// Package catalog is the client of the managed GraphQL API holding the store's products.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Product is a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Image       string    `json:"image,omitempty"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
	Version     int       `json:"_version,omitempty"`
	Deleted     bool      `json:"_deleted,omitempty"`

	// ImageURL is a presigned URL for Image, filled in by the media store.
	ImageURL string `json:"-"`
}

// CreateProductInput holds the fields of a new product.
type CreateProductInput struct {
	Name        string
	Description string
	Price       float64
	Image       string
	Category    string
}

func productFromResult(item gjson.Result) Product {
	return Product{
		ID:          item.Get("id").String(),
		Name:        item.Get("name").String(),
		Description: item.Get("description").String(),
		Price:       item.Get("price").Float(),
		Image:       item.Get("image").String(),
		Category:    item.Get("category").String(),
		CreatedAt:   parseTime(item.Get("createdAt").String()),
		UpdatedAt:   parseTime(item.Get("updatedAt").String()),
		Version:     int(item.Get("_version").Int()),
		Deleted:     item.Get("_deleted").Bool(),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Filter returns the products whose name contains query, ignoring case.
// An empty query returns all products.
func Filter(products []Product, query string) []Product {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return products
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out
}

// FormatPrice renders a price the way the storefront shows it.
func FormatPrice(price float64) string {
	return fmt.Sprintf("R$ %.2f", price)
}
