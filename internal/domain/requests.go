package domain

// Patch types carry optional fields as pointers: nil means "leave as is".
// Drafts are records without an id; the ledger assigns one.

// ProductPatch merges into an existing product when ID is set, otherwise a
// new product is created from the non-nil fields over defaults. Stock is
// deliberately absent: it moves only through purchases, sales and
// adjustments.
type ProductPatch struct {
	ID         string   `json:"id,omitempty"`
	Name       *string  `json:"name,omitempty"`
	SKU        *string  `json:"sku,omitempty"`
	CategoryID *string  `json:"categoryId,omitempty"`
	Unit       *Unit    `json:"unit,omitempty" validate:"omitempty,oneof=pcs kg ltr box"`
	CostPrice  *float64 `json:"costPrice,omitempty" validate:"omitempty,gte=0"`
	SellPrice  *float64 `json:"sellPrice,omitempty" validate:"omitempty,gte=0"`
	MinStock   *int     `json:"minStock,omitempty" validate:"omitempty,gte=0"`
	SupplierID *string  `json:"supplierId,omitempty"`
}

type CategoryPatch struct {
	ID       string  `json:"id,omitempty"`
	Name     *string `json:"name,omitempty"`
	ParentID *string `json:"parentId,omitempty"`
}

type SupplierPatch struct {
	ID      string  `json:"id,omitempty"`
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

type PurchaseDraft struct {
	Date       string         `json:"date"`
	SupplierID string         `json:"supplierId,omitempty"`
	Items      []PurchaseItem `json:"items" validate:"min=1,dive"`
}

type SaleDraft struct {
	Date      string     `json:"date"`
	Items     []SaleItem `json:"items" validate:"min=1,dive"`
	Discount  float64    `json:"discount,omitempty" validate:"gte=0"`
	TaxRate   float64    `json:"taxRate,omitempty" validate:"gte=0"`
	Customer  string     `json:"customer,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

type AdjustmentDraft struct {
	Date      string `json:"date"`
	ProductID string `json:"productId" validate:"required"`
	QtyChange int    `json:"qtyChange"`
	Reason    string `json:"reason,omitempty"`
}

type SettingsPatch struct {
	Currency       *string  `json:"currency,omitempty"`
	DefaultTaxRate *float64 `json:"defaultTaxRate,omitempty" validate:"omitempty,gte=0"`
}

type LoginRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Secret string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   string  `json:"expires_at"`
	User        Session `json:"user"`
	Home        string  `json:"home"`
}

type UserUpsertRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Role   Role   `json:"role" validate:"required,oneof=owner manager staff"`
	Secret string `json:"password" validate:"required,min=6"`
}

// Actor identifies the authenticated caller inside a request context.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}
