package ledger

import "stockflow/backend/internal/domain"

func intPtr(v int) *int { return &v }

// DefaultState is the seeded state tree used on first run and as the base
// layer when loading or importing snapshots with missing top-level keys.
func DefaultState() domain.DataState {
	return domain.DataState{
		Products: []domain.Product{
			{ID: "p1", Name: "Apple Juice 1L", SKU: "SKU-001", Unit: domain.UnitVolume, CostPrice: 1.2, SellPrice: 2.5, Stock: 12, MinStock: intPtr(10)},
			{ID: "p2", Name: "Rice 5kg", SKU: "SKU-014", Unit: domain.UnitWeight, CostPrice: 4.5, SellPrice: 7.0, Stock: 6, MinStock: intPtr(8)},
			{ID: "p3", Name: "Soap Bar", SKU: "SKU-023", Unit: domain.UnitPiece, CostPrice: 0.3, SellPrice: 0.8, Stock: 4, MinStock: intPtr(12)},
			{ID: "p4", Name: "Milk 500ml", SKU: "SKU-034", Unit: domain.UnitVolume, CostPrice: 0.4, SellPrice: 1.0, Stock: 5, MinStock: intPtr(10)},
		},
		Categories: []domain.Category{
			{ID: "c1", Name: "Beverages"},
			{ID: "c2", Name: "Food"},
			{ID: "c3", Name: "Household"},
		},
		Suppliers: []domain.Supplier{
			{ID: "s1", Name: "General Supplier", Email: "contact@supplier.com"},
		},
		Purchases:   []domain.Purchase{},
		Sales:       []domain.Sale{},
		Adjustments: []domain.Adjustment{},
		Settings:    domain.Settings{Currency: "$", DefaultTaxRate: 5},
	}
}
