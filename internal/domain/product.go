package domain

import (
	"slices"
	"time"

	"github.com/fjod/storefront/internal/money"
)

type Product struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	ImageURL       string      `json:"image_url"`
	AvailableSizes []string    `json:"available_sizes"`
	Price          money.Cents `json:"price"`
	CreatedAt      time.Time   `json:"created_at"`
}

func (p Product) HasSize(size string) bool {
	return slices.Contains(p.AvailableSizes, size)
}

// Catalog is an immutable point-in-time view of the product list.
type Catalog struct {
	products []Product
	byID     map[string]int
}

func NewCatalog(products []Product) Catalog {
	c := Catalog{
		products: slices.Clone(products),
		byID:     make(map[string]int, len(products)),
	}
	for i, p := range c.products {
		c.byID[p.ID] = i
	}
	return c
}

// Lookup returns the product with the given id, if the catalog has it.
func (c Catalog) Lookup(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

func (c Catalog) Products() []Product {
	return slices.Clone(c.products)
}

func (c Catalog) Len() int {
	return len(c.products)
}
