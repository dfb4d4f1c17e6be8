package domain

// JSON field names follow the sf_data_v1 blob layout so exported backups
// stay interchangeable across versions.

type Unit = string

const (
	UnitPiece  Unit = "pcs"
	UnitWeight Unit = "kg"
	UnitVolume Unit = "ltr"
	UnitBox    Unit = "box"
)

// Product describes one catalog entry. SKU is user-assigned and duplicates
// are permitted. Stock must only change through ledger operations
// (purchases, sales, adjustments).
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SKU        string  `json:"sku"`
	CategoryID string  `json:"categoryId,omitempty"`
	Unit       Unit    `json:"unit"`
	CostPrice  float64 `json:"costPrice"`
	SellPrice  float64 `json:"sellPrice"`
	Stock      int     `json:"stock"`
	MinStock   *int    `json:"minStock,omitempty"`
	SupplierID string  `json:"supplierId,omitempty"`
}

// LowOnStock reports whether the product sits at or below its reorder
// threshold. Products without a threshold are never low.
func (p Product) LowOnStock() bool {
	return p.MinStock != nil && p.Stock <= *p.MinStock
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type PurchaseItem struct {
	ProductID string  `json:"productId" validate:"required"`
	Qty       int     `json:"qty" validate:"gte=1"`
	Cost      float64 `json:"cost" validate:"gte=0"`
}

type Purchase struct {
	ID         string         `json:"id"`
	Date       string         `json:"date"`
	SupplierID string         `json:"supplierId,omitempty"`
	Items      []PurchaseItem `json:"items"`
}

type SaleItem struct {
	ProductID string  `json:"productId" validate:"required"`
	Qty       int     `json:"qty" validate:"gte=1"`
	Price     float64 `json:"price" validate:"gte=0"`
	Discount  float64 `json:"discount,omitempty" validate:"gte=0"`
}

type Sale struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	Items     []SaleItem `json:"items"`
	Discount  float64    `json:"discount,omitempty"`
	TaxRate   float64    `json:"taxRate,omitempty"`
	Customer  string     `json:"customer,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

type Adjustment struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	ProductID string `json:"productId"`
	QtyChange int    `json:"qtyChange"`
	Reason    string `json:"reason,omitempty"`
}

type Settings struct {
	Currency       string  `json:"currency"`
	DefaultTaxRate float64 `json:"defaultTaxRate"`
}

// DataState is the full state tree owned by the ledger engine.
type DataState struct {
	Products    []Product    `json:"products"`
	Categories  []Category   `json:"categories"`
	Suppliers   []Supplier   `json:"suppliers"`
	Purchases   []Purchase   `json:"purchases"`
	Sales       []Sale       `json:"sales"`
	Adjustments []Adjustment `json:"adjustments"`
	Settings    Settings     `json:"settings"`
}

type Role = string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// User is a directory entry. Secret holds a bcrypt hash at rest; directories
// imported with plaintext secrets are upgraded on load.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Secret string `json:"password,omitempty"`
}

// Session is the single active-session record.
type Session struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}
