package domain

import "github.com/fjod/storefront/internal/money"

// OrderSummary is derived from cart lines and the catalog and never stored
// authoritatively. Lines whose product is missing from the catalog are left out
// of Items and TotalAmount and reported in Unresolved.
type OrderSummary struct {
	TotalAmount money.Cents   `json:"total_amount"`
	Items       []SummaryItem `json:"items"`
	Unresolved  []CartLine    `json:"unresolved,omitempty"`
}

type SummaryItem struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Size        string      `json:"size"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Cents `json:"unit_price"`
	Subtotal    money.Cents `json:"subtotal"`
}

func (s OrderSummary) IsEmpty() bool {
	return len(s.Items) == 0
}
