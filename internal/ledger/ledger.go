package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/storage"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyDraft        = errors.New("draft has no line items")
	ErrBadSnapshot       = errors.New("snapshot is not valid JSON")
)

// Engine owns the canonical state tree and is the only component allowed to
// mutate it. Commands take the write lock, apply a single state transition
// and mirror the tree to the blob store. Persistence is fire-and-forget:
// a failed write is logged but never fails the command. The blob store is
// a mirror, not a gate.
type Engine struct {
	mu    sync.RWMutex
	state domain.DataState
	codec *storage.Codec
	log   zerolog.Logger
}

func New(ctx context.Context, codec *storage.Codec, log zerolog.Logger) *Engine {
	state := DefaultState()
	diag := codec.Load(ctx, storage.KeyData, &state)
	log.Info().Str("load", diag.String()).
		Int("products", len(state.Products)).
		Msg("ledger state ready")

	return &Engine{
		state: normalize(state),
		codec: codec,
		log:   log,
	}
}

// persist mirrors the tree to the blob store. Called with the lock held;
// the write itself happens on the caller's goroutine and its failure is
// logged rather than surfaced.
func (e *Engine) persist(ctx context.Context) {
	if err := e.codec.Save(ctx, storage.KeyData, e.state); err != nil {
		e.log.Error().Err(err).Msg("state persist failed")
	}
}

// Snapshot returns a deep copy of the state tree for read-only use.
func (e *Engine) Snapshot() domain.DataState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneState(e.state)
}

// Settings returns the current settings singleton.
func (e *Engine) Settings() domain.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Settings
}

func (e *Engine) UpsertProduct(ctx context.Context, patch domain.ProductPatch) (domain.Product, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.ID != "" {
		for i, p := range e.state.Products {
			if p.ID != patch.ID {
				continue
			}
			merged := mergeProduct(p, patch)
			e.state.Products[i] = merged
			e.persist(ctx)
			return merged, nil
		}
		return domain.Product{}, ErrNotFound
	}

	created := mergeProduct(domain.Product{
		ID:   uuid.NewString(),
		Unit: domain.UnitPiece,
	}, patch)
	e.state.Products = append([]domain.Product{created}, e.state.Products...)
	e.persist(ctx)
	return created, nil
}

// RemoveProduct filters the product out of the catalog. References from
// purchases, sales and adjustments are left dangling on purpose: ids are
// weak references and readers resolve them best effort.
func (e *Engine) RemoveProduct(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	products := make([]domain.Product, 0, len(e.state.Products))
	for _, p := range e.state.Products {
		if p.ID != id {
			products = append(products, p)
		}
	}
	e.state.Products = products
	e.persist(ctx)
}

func (e *Engine) UpsertCategory(ctx context.Context, patch domain.CategoryPatch) (domain.Category, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.ID != "" {
		for i, c := range e.state.Categories {
			if c.ID != patch.ID {
				continue
			}
			merged := mergeCategory(c, patch)
			e.state.Categories[i] = merged
			e.persist(ctx)
			return merged, nil
		}
		return domain.Category{}, ErrNotFound
	}

	created := mergeCategory(domain.Category{ID: uuid.NewString()}, patch)
	e.state.Categories = append([]domain.Category{created}, e.state.Categories...)
	e.persist(ctx)
	return created, nil
}

func (e *Engine) RemoveCategory(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	categories := make([]domain.Category, 0, len(e.state.Categories))
	for _, c := range e.state.Categories {
		if c.ID != id {
			categories = append(categories, c)
		}
	}
	e.state.Categories = categories
	e.persist(ctx)
}

func (e *Engine) UpsertSupplier(ctx context.Context, patch domain.SupplierPatch) (domain.Supplier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.ID != "" {
		for i, s := range e.state.Suppliers {
			if s.ID != patch.ID {
				continue
			}
			merged := mergeSupplier(s, patch)
			e.state.Suppliers[i] = merged
			e.persist(ctx)
			return merged, nil
		}
		return domain.Supplier{}, ErrNotFound
	}

	created := mergeSupplier(domain.Supplier{ID: uuid.NewString()}, patch)
	e.state.Suppliers = append([]domain.Supplier{created}, e.state.Suppliers...)
	e.persist(ctx)
	return created, nil
}

func (e *Engine) RemoveSupplier(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	suppliers := make([]domain.Supplier, 0, len(e.state.Suppliers))
	for _, s := range e.state.Suppliers {
		if s.ID != id {
			suppliers = append(suppliers, s)
		}
	}
	e.state.Suppliers = suppliers
	e.persist(ctx)
}

// RecordPurchase receipts every line item: stock increases by qty and the
// product's cost price is overwritten with the line's unit cost. When a
// product appears in several lines the last line wins. Lines referencing
// unknown products still land in the purchase record but move no stock.
func (e *Engine) RecordPurchase(ctx context.Context, draft domain.PurchaseDraft) (string, error) {
	if len(draft.Items) == 0 {
		return "", ErrEmptyDraft
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, item := range draft.Items {
		for i, p := range e.state.Products {
			if p.ID != item.ProductID {
				continue
			}
			p.Stock += item.Qty
			p.CostPrice = item.Cost
			e.state.Products[i] = p
		}
	}

	purchase := domain.Purchase{
		ID:         uuid.NewString(),
		Date:       orNow(draft.Date),
		SupplierID: draft.SupplierID,
		Items:      append([]domain.PurchaseItem(nil), draft.Items...),
	}
	e.state.Purchases = append([]domain.Purchase{purchase}, e.state.Purchases...)

	e.persist(ctx)
	return purchase.ID, nil
}

// RecordSale validates every line before touching anything: each referenced
// product must exist with stock covering the requested qty, counting every
// line of the draft that asks for it. Any failing line rejects the whole
// sale with no partial mutation. On success all stock deductions and the
// new invoice land in one state transition.
func (e *Engine) RecordSale(ctx context.Context, draft domain.SaleDraft) (string, error) {
	if len(draft.Items) == 0 {
		return "", ErrEmptyDraft
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	byID := make(map[string]int, len(e.state.Products))
	for i, p := range e.state.Products {
		byID[p.ID] = i
	}
	requested := make(map[string]int, len(draft.Items))
	for _, item := range draft.Items {
		idx, ok := byID[item.ProductID]
		if !ok {
			return "", ErrInsufficientStock
		}
		requested[item.ProductID] += item.Qty
		if e.state.Products[idx].Stock < requested[item.ProductID] {
			return "", ErrInsufficientStock
		}
	}

	for _, item := range draft.Items {
		e.state.Products[byID[item.ProductID]].Stock -= item.Qty
	}

	sale := domain.Sale{
		ID:        uuid.NewString(),
		Date:      orNow(draft.Date),
		Items:     append([]domain.SaleItem(nil), draft.Items...),
		Discount:  draft.Discount,
		TaxRate:   draft.TaxRate,
		Customer:  draft.Customer,
		CreatedBy: draft.CreatedBy,
	}
	e.state.Sales = append([]domain.Sale{sale}, e.state.Sales...)

	e.persist(ctx)
	return sale.ID, nil
}

// AdjustStock applies the signed delta with no floor check and always
// succeeds. An adjustment against an unknown product is still logged in the
// adjustment list; it simply has no stock to move.
func (e *Engine) AdjustStock(ctx context.Context, draft domain.AdjustmentDraft) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.state.Products {
		if p.ID == draft.ProductID {
			p.Stock += draft.QtyChange
			e.state.Products[i] = p
		}
	}

	adjustment := domain.Adjustment{
		ID:        uuid.NewString(),
		Date:      orNow(draft.Date),
		ProductID: draft.ProductID,
		QtyChange: draft.QtyChange,
		Reason:    draft.Reason,
	}
	e.state.Adjustments = append([]domain.Adjustment{adjustment}, e.state.Adjustments...)

	e.persist(ctx)
	return adjustment.ID
}

func (e *Engine) SetSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.Currency != nil {
		e.state.Settings.Currency = *patch.Currency
	}
	if patch.DefaultTaxRate != nil {
		e.state.Settings.DefaultTaxRate = *patch.DefaultTaxRate
	}

	e.persist(ctx)
	return e.state.Settings
}

// ExportSnapshot serializes the whole tree as indented JSON, the backup
// download format.
func (e *Engine) ExportSnapshot() (string, error) {
	snapshot := e.Snapshot()
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// ImportSnapshot replaces the state tree with the parsed payload, merged
// over defaults for any missing top-level key. Malformed input returns
// ErrBadSnapshot and leaves the tree untouched.
func (e *Engine) ImportSnapshot(ctx context.Context, raw string) error {
	next := DefaultState()
	if err := json.Unmarshal([]byte(raw), &next); err != nil {
		e.log.Warn().Err(err).Msg("snapshot import rejected")
		return ErrBadSnapshot
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = normalize(next)
	e.persist(ctx)
	return nil
}

func mergeProduct(base domain.Product, patch domain.ProductPatch) domain.Product {
	if patch.Name != nil {
		base.Name = *patch.Name
	}
	if patch.SKU != nil {
		base.SKU = *patch.SKU
	}
	if patch.CategoryID != nil {
		base.CategoryID = *patch.CategoryID
	}
	if patch.Unit != nil {
		base.Unit = *patch.Unit
	}
	if patch.CostPrice != nil {
		base.CostPrice = *patch.CostPrice
	}
	if patch.SellPrice != nil {
		base.SellPrice = *patch.SellPrice
	}
	if patch.MinStock != nil {
		min := *patch.MinStock
		base.MinStock = &min
	}
	if patch.SupplierID != nil {
		base.SupplierID = *patch.SupplierID
	}
	return base
}

func mergeCategory(base domain.Category, patch domain.CategoryPatch) domain.Category {
	if patch.Name != nil {
		base.Name = *patch.Name
	}
	if patch.ParentID != nil {
		base.ParentID = *patch.ParentID
	}
	return base
}

func mergeSupplier(base domain.Supplier, patch domain.SupplierPatch) domain.Supplier {
	if patch.Name != nil {
		base.Name = *patch.Name
	}
	if patch.Phone != nil {
		base.Phone = *patch.Phone
	}
	if patch.Email != nil {
		base.Email = *patch.Email
	}
	if patch.Address != nil {
		base.Address = *patch.Address
	}
	return base
}

// normalize replaces nil collections with empty ones so snapshots always
// serialize as arrays, never null.
func normalize(state domain.DataState) domain.DataState {
	if state.Products == nil {
		state.Products = []domain.Product{}
	}
	if state.Categories == nil {
		state.Categories = []domain.Category{}
	}
	if state.Suppliers == nil {
		state.Suppliers = []domain.Supplier{}
	}
	if state.Purchases == nil {
		state.Purchases = []domain.Purchase{}
	}
	if state.Sales == nil {
		state.Sales = []domain.Sale{}
	}
	if state.Adjustments == nil {
		state.Adjustments = []domain.Adjustment{}
	}
	return state
}

func orNow(date string) string {
	if date != "" {
		return date
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func cloneState(src domain.DataState) domain.DataState {
	dup := src
	dup.Products = make([]domain.Product, len(src.Products))
	for i, p := range src.Products {
		if p.MinStock != nil {
			min := *p.MinStock
			p.MinStock = &min
		}
		dup.Products[i] = p
	}
	dup.Categories = append([]domain.Category(nil), src.Categories...)
	dup.Suppliers = append([]domain.Supplier(nil), src.Suppliers...)
	dup.Purchases = make([]domain.Purchase, len(src.Purchases))
	for i, p := range src.Purchases {
		p.Items = append([]domain.PurchaseItem(nil), p.Items...)
		dup.Purchases[i] = p
	}
	dup.Sales = make([]domain.Sale, len(src.Sales))
	for i, s := range src.Sales {
		s.Items = append([]domain.SaleItem(nil), s.Items...)
		dup.Sales[i] = s
	}
	dup.Adjustments = append([]domain.Adjustment(nil), src.Adjustments...)
	return dup
}
