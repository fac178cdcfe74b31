package summary

import (
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/money"
)

// Derive computes the order summary of lines against catalog. Lines whose
// product is not in the catalog are excluded from the items and the total and
// are listed in Unresolved. Derive is pure: the same inputs give the same summary.
// A subtotal or total outside int64 cents returns domain.ErrAmountOverflow.
func Derive(lines []domain.CartLine, catalog domain.Catalog) (domain.OrderSummary, error) {
	summary := domain.OrderSummary{
		Items: make([]domain.SummaryItem, 0, len(lines)),
	}

	subtotals := make([]money.Cents, 0, len(lines))
	for _, line := range lines {
		product, ok := catalog.Lookup(line.ProductID)
		if !ok {
			summary.Unresolved = append(summary.Unresolved, line)
			continue
		}

		subtotal, err := product.Price.Times(line.Quantity)
		if err != nil {
			return domain.OrderSummary{}, fmt.Errorf("%w: line %s/%s: %w", domain.ErrAmountOverflow, line.ProductID, line.Size, err)
		}
		summary.Items = append(summary.Items, domain.SummaryItem{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		subtotals = append(subtotals, subtotal)
	}

	total, err := money.Sum(subtotals...)
	if err != nil {
		return domain.OrderSummary{}, fmt.Errorf("%w: %w", domain.ErrAmountOverflow, err)
	}
	summary.TotalAmount = total
	return summary, nil
}
