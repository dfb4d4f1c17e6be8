// Package report aggregates the state tree into the named business metrics
// and renders the exportable CSV table.
package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"stockflow/backend/internal/domain"
)

// Summary holds the headline metrics. COGS is approximate: sold
// quantities are priced at each product's current cost, not the cost at
// sale time. Tax is charged on the discount-reduced taxable amount, not
// the pre-discount subtotal.
type Summary struct {
	InventoryValue decimal.Decimal `json:"inventory_value"`
	SalesRevenue   decimal.Decimal `json:"sales_revenue"`
	TaxCollected   decimal.Decimal `json:"tax_collected"`
	ApproxCOGS     decimal.Decimal `json:"approx_cogs"`
	Profit         decimal.Decimal `json:"profit"`
}

func Summarize(state domain.DataState) Summary {
	costByID := make(map[string]decimal.Decimal, len(state.Products))
	inventory := decimal.Zero
	for _, p := range state.Products {
		cost := decimal.NewFromFloat(p.CostPrice)
		costByID[p.ID] = cost
		inventory = inventory.Add(cost.Mul(decimal.NewFromInt(int64(p.Stock))))
	}

	revenue := decimal.Zero
	tax := decimal.Zero
	cogs := decimal.Zero
	hundred := decimal.NewFromInt(100)

	for _, sale := range state.Sales {
		subtotal := decimal.Zero
		for _, item := range sale.Items {
			qty := decimal.NewFromInt(int64(item.Qty))
			lineNet := decimal.NewFromFloat(item.Price).Mul(qty).
				Sub(decimal.NewFromFloat(item.Discount))
			subtotal = subtotal.Add(lineNet)
			if cost, ok := costByID[item.ProductID]; ok {
				cogs = cogs.Add(cost.Mul(qty))
			}
		}

		taxable := subtotal.Sub(decimal.NewFromFloat(sale.Discount))
		if taxable.IsNegative() {
			taxable = decimal.Zero
		}
		revenue = revenue.Add(taxable)
		tax = tax.Add(taxable.Mul(decimal.NewFromFloat(sale.TaxRate)).Div(hundred))
	}

	return Summary{
		InventoryValue: inventory,
		SalesRevenue:   revenue,
		TaxCollected:   tax,
		ApproxCOGS:     cogs,
		Profit:         revenue.Sub(cogs),
	}
}

// LowStock lists products at or below their reorder threshold, in catalog
// order.
func LowStock(state domain.DataState) []domain.Product {
	low := make([]domain.Product, 0, len(state.Products))
	for _, p := range state.Products {
		if p.LowOnStock() {
			low = append(low, p)
		}
	}
	return low
}

// CSV renders the two-column metric table. Every field is quoted and
// embedded quotes are doubled; values carry two decimal places.
func CSV(s Summary) string {
	rows := [][2]string{
		{"Metric", "Value"},
		{"Inventory Value", s.InventoryValue.StringFixed(2)},
		{"Sales Revenue", s.SalesRevenue.StringFixed(2)},
		{"Tax Collected", s.TaxCollected.StringFixed(2)},
		{"Approx. COGS", s.ApproxCOGS.StringFixed(2)},
		{"Profit", s.Profit.StringFixed(2)},
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(quote(row[0]))
		b.WriteByte(',')
		b.WriteString(quote(row[1]))
		b.WriteByte('\n')
	}
	return b.String()
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
