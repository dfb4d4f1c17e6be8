package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	blobs := storage.NewMemoryStore()
	codec := storage.NewCodec(blobs, zerolog.Nop())
	return New(context.Background(), codec, zerolog.Nop()), blobs
}

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func findProduct(t *testing.T, e *Engine, id string) domain.Product {
	t.Helper()
	for _, p := range e.Snapshot().Products {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("product %s not found", id)
	return domain.Product{}
}

func TestNewSeedsDefaultsWhenBlobMissing(t *testing.T) {
	engine, _ := newTestEngine(t)

	state := engine.Snapshot()
	if len(state.Products) != 4 {
		t.Fatalf("expected 4 seeded products, got %d", len(state.Products))
	}
	if state.Settings.Currency != "$" || state.Settings.DefaultTaxRate != 5 {
		t.Fatalf("unexpected seeded settings: %+v", state.Settings)
	}
}

func TestNewKeepsDefaultsOnCorruptBlob(t *testing.T) {
	blobs := storage.NewMemoryStore()
	_ = blobs.Set(context.Background(), storage.KeyData, "{not json")
	codec := storage.NewCodec(blobs, zerolog.Nop())

	engine := New(context.Background(), codec, zerolog.Nop())
	if len(engine.Snapshot().Products) != 4 {
		t.Fatalf("corrupt blob should fall back to seeded defaults")
	}
}

func TestUpsertProductCreatesAndPrepends(t *testing.T) {
	engine, _ := newTestEngine(t)

	created, err := engine.UpsertProduct(context.Background(), domain.ProductPatch{
		Name:      strPtr("Green Tea"),
		SellPrice: floatPtr(3.5),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Unit != domain.UnitPiece {
		t.Fatalf("expected unit default pcs, got %s", created.Unit)
	}
	if created.Stock != 0 {
		t.Fatalf("new products must start with zero stock, got %d", created.Stock)
	}

	products := engine.Snapshot().Products
	if products[0].ID != created.ID {
		t.Fatalf("new product should be first, got %s", products[0].ID)
	}
}

func TestUpsertProductMergesOnlyProvidedFields(t *testing.T) {
	engine, _ := newTestEngine(t)

	before := findProduct(t, engine, "p1")
	updated, err := engine.UpsertProduct(context.Background(), domain.ProductPatch{
		ID:   "p1",
		Name: strPtr("Apple Juice 1L (new label)"),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if updated.Name != "Apple Juice 1L (new label)" {
		t.Fatalf("name not updated: %s", updated.Name)
	}
	if updated.SellPrice != before.SellPrice || updated.Stock != before.Stock || updated.SKU != before.SKU {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestUpsertProductUnknownID(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.UpsertProduct(context.Background(), domain.ProductPatch{ID: "nope", Name: strPtr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveProductLeavesHistoryDangling(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{{ProductID: "p1", Qty: 1, Price: 2.5}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	engine.RemoveProduct(ctx, "p1")

	state := engine.Snapshot()
	for _, p := range state.Products {
		if p.ID == "p1" {
			t.Fatalf("p1 should be gone")
		}
	}
	if len(state.Sales) != 1 || state.Sales[0].Items[0].ProductID != "p1" {
		t.Fatalf("sale history should keep the dangling product reference")
	}
}

func TestRecordPurchaseMovesStockAndOverwritesCost(t *testing.T) {
	engine, _ := newTestEngine(t)

	before := findProduct(t, engine, "p1")
	id, err := engine.RecordPurchase(context.Background(), domain.PurchaseDraft{
		SupplierID: "s1",
		Items: []domain.PurchaseItem{
			{ProductID: "p1", Qty: 5, Cost: 1.1},
			{ProductID: "p1", Qty: 3, Cost: 1.4},
			{ProductID: "ghost", Qty: 9, Cost: 2.0},
		},
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected purchase id")
	}

	after := findProduct(t, engine, "p1")
	if after.Stock != before.Stock+8 {
		t.Fatalf("expected stock %d, got %d", before.Stock+8, after.Stock)
	}
	// When a product repeats across lines, the last line's cost wins.
	if after.CostPrice != 1.4 {
		t.Fatalf("expected cost 1.4, got %v", after.CostPrice)
	}

	state := engine.Snapshot()
	if state.Purchases[0].ID != id || len(state.Purchases[0].Items) != 3 {
		t.Fatalf("purchase record not prepended intact")
	}
}

func TestRecordPurchaseEmptyDraft(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.RecordPurchase(context.Background(), domain.PurchaseDraft{}); !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
}

func TestRecordSaleAllOrNothing(t *testing.T) {
	engine, _ := newTestEngine(t)

	before := engine.Snapshot()
	_, err := engine.RecordSale(context.Background(), domain.SaleDraft{
		Items: []domain.SaleItem{
			{ProductID: "p1", Qty: 1, Price: 2.5},
			{ProductID: "p2", Qty: 999, Price: 7.0},
		},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after := engine.Snapshot()
	if len(after.Sales) != 0 {
		t.Fatalf("rejected sale must not be recorded")
	}
	for i := range before.Products {
		if after.Products[i].Stock != before.Products[i].Stock {
			t.Fatalf("rejected sale must not move stock: %s", after.Products[i].ID)
		}
	}
}

func TestRecordSaleSumsRepeatedLines(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// p1 seeds with stock 12; each line fits alone but not together.
	before := findProduct(t, engine, "p1")
	_, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{
			{ProductID: "p1", Qty: 7, Price: 2.5},
			{ProductID: "p1", Qty: 7, Price: 2.5},
		},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("combined lines exceed stock, expected ErrInsufficientStock, got %v", err)
	}
	if got := findProduct(t, engine, "p1").Stock; got != before.Stock {
		t.Fatalf("rejected sale must not move stock, got %d", got)
	}
	if len(engine.Snapshot().Sales) != 0 {
		t.Fatalf("rejected sale must not be recorded")
	}

	if _, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{
			{ProductID: "p1", Qty: 7, Price: 2.5},
			{ProductID: "p1", Qty: 5, Price: 2.5},
		},
	}); err != nil {
		t.Fatalf("combined lines within stock should pass: %v", err)
	}
	if got := findProduct(t, engine, "p1").Stock; got != 0 {
		t.Fatalf("expected stock 0 after selling both lines, got %d", got)
	}
}

func TestRecordSaleUnknownProductRejects(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.RecordSale(context.Background(), domain.SaleDraft{
		Items: []domain.SaleItem{{ProductID: "ghost", Qty: 1, Price: 1}},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for unknown product, got %v", err)
	}
}

func TestAdjustStockNoFloorAndDanglingTarget(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	before := findProduct(t, engine, "p3")
	engine.AdjustStock(ctx, domain.AdjustmentDraft{ProductID: "p3", QtyChange: -(before.Stock + 5), Reason: "damage"})

	after := findProduct(t, engine, "p3")
	if after.Stock != -5 {
		t.Fatalf("adjustments have no floor, expected -5 got %d", after.Stock)
	}

	id := engine.AdjustStock(ctx, domain.AdjustmentDraft{ProductID: "ghost", QtyChange: 3})
	if id == "" {
		t.Fatalf("adjustment against unknown product still gets an id")
	}
	state := engine.Snapshot()
	if len(state.Adjustments) != 2 || state.Adjustments[0].ProductID != "ghost" {
		t.Fatalf("dangling adjustment should be prepended to the list")
	}
}

// Walks a product through the full movement lifecycle: receipt, shrinkage,
// an over-ask rejection and a final sale.
func TestStockRunningTotal(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := engine.UpsertProduct(ctx, domain.ProductPatch{Name: strPtr("Crate")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := engine.RecordPurchase(ctx, domain.PurchaseDraft{
		Items: []domain.PurchaseItem{{ProductID: created.ID, Qty: 10, Cost: 2.0}},
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if got := findProduct(t, engine, created.ID).Stock; got != 10 {
		t.Fatalf("after purchase expected 10, got %d", got)
	}

	engine.AdjustStock(ctx, domain.AdjustmentDraft{ProductID: created.ID, QtyChange: -3})
	if got := findProduct(t, engine, created.ID).Stock; got != 7 {
		t.Fatalf("after adjustment expected 7, got %d", got)
	}

	if _, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{{ProductID: created.ID, Qty: 8, Price: 5}},
	}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected over-ask sale to be rejected, got %v", err)
	}

	if _, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{{ProductID: created.ID, Qty: 5, Price: 5}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if got := findProduct(t, engine, created.ID).Stock; got != 2 {
		t.Fatalf("after sale expected 2, got %d", got)
	}
}

func TestSetSettingsMerges(t *testing.T) {
	engine, _ := newTestEngine(t)

	settings := engine.SetSettings(context.Background(), domain.SettingsPatch{Currency: strPtr("Rp")})
	if settings.Currency != "Rp" {
		t.Fatalf("currency not updated: %s", settings.Currency)
	}
	if settings.DefaultTaxRate != 5 {
		t.Fatalf("tax rate should keep its value, got %v", settings.DefaultTaxRate)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.RecordSale(ctx, domain.SaleDraft{
		Items: []domain.SaleItem{{ProductID: "p1", Qty: 2, Price: 2.5}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	snapshot, err := engine.ExportSnapshot()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	other, _ := newTestEngine(t)
	if err := other.ImportSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	a, _ := json.Marshal(engine.Snapshot())
	b, _ := json.Marshal(other.Snapshot())
	if string(a) != string(b) {
		t.Fatalf("round trip diverged:\n%s\n%s", a, b)
	}
}

func TestImportMalformedLeavesStateUntouched(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	before, _ := engine.ExportSnapshot()
	if err := engine.ImportSnapshot(ctx, "{broken"); !errors.Is(err, ErrBadSnapshot) {
		t.Fatalf("expected ErrBadSnapshot, got %v", err)
	}
	after, _ := engine.ExportSnapshot()
	if before != after {
		t.Fatalf("failed import must not change state")
	}
}

func TestImportMergesOverDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)

	payload := `{"products":[{"id":"x1","name":"Lone Item","unit":"pcs","stock":3}]}`
	if err := engine.ImportSnapshot(context.Background(), payload); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	state := engine.Snapshot()
	if len(state.Products) != 1 || state.Products[0].ID != "x1" {
		t.Fatalf("products should come from the payload: %+v", state.Products)
	}
	// Keys absent from the payload keep their seeded defaults.
	if state.Settings.Currency != "$" || len(state.Categories) != 3 {
		t.Fatalf("missing keys should keep defaults: %+v", state.Settings)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	engine, _ := newTestEngine(t)

	snap := engine.Snapshot()
	snap.Products[0].Stock = 9999
	*snap.Products[0].MinStock = 9999

	fresh := findProduct(t, engine, snap.Products[0].ID)
	if fresh.Stock == 9999 || *fresh.MinStock == 9999 {
		t.Fatalf("mutating a snapshot must not touch engine state")
	}
}

func TestPersistMirrorsStateToBlob(t *testing.T) {
	engine, blobs := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.UpsertProduct(ctx, domain.ProductPatch{Name: strPtr("Mirrored")}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	raw, err := blobs.Get(ctx, storage.KeyData)
	if err != nil {
		t.Fatalf("blob missing after command: %v", err)
	}
	var persisted domain.DataState
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("persisted blob unparsable: %v", err)
	}
	if persisted.Products[0].Name != "Mirrored" {
		t.Fatalf("persisted blob stale: %+v", persisted.Products[0])
	}
}
