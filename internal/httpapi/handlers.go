package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"stockflow/backend/internal/access"
	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/report"
	"stockflow/backend/internal/session"
)

const maxImportBytes = 10 << 20

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.sessions.Login(r.Context(), req.Email, req.Secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	token, expiresAt, err := a.sessions.Token(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        sess,
		Home:        access.RoleHome(sess.Role),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.sessions.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	if sess, ok := a.sessions.Current(); ok && sess.UserID == actor.UserID {
		writeJSON(w, http.StatusOK, map[string]any{"user": sess})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": domain.Session{
		UserID: actor.UserID,
		Email:  actor.Email,
		Role:   actor.Role,
	}})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"products": a.engine.Snapshot().Products})
	case http.MethodPost:
		if !a.requireAction(w, r, access.CanManageCatalog) {
			return
		}
		var patch domain.ProductPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.engine.UpsertProduct(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing product id"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		if !a.requireAction(w, r, access.CanManageCatalog) {
			return
		}
		var patch domain.ProductPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		patch.ID = id
		product, err := a.engine.UpsertProduct(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if !a.requireAction(w, r, access.CanDeleteProducts) {
			return
		}
		a.engine.RemoveProduct(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"categories": a.engine.Snapshot().Categories})
	case http.MethodPost:
		var patch domain.CategoryPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.engine.UpsertCategory(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": category})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/categories/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing category id"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var patch domain.CategoryPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		patch.ID = id
		category, err := a.engine.UpsertCategory(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": category})
	case http.MethodDelete:
		a.engine.RemoveCategory(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": a.engine.Snapshot().Suppliers})
	case http.MethodPost:
		var patch domain.SupplierPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.engine.UpsertSupplier(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSupplierActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/suppliers/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing supplier id"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var patch domain.SupplierPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		patch.ID = id
		supplier, err := a.engine.UpsertSupplier(r.Context(), patch)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
	case http.MethodDelete:
		a.engine.RemoveSupplier(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"purchases": a.engine.Snapshot().Purchases})
	case http.MethodPost:
		if !a.requireAction(w, r, access.CanCreatePurchases) {
			return
		}
		var draft domain.PurchaseDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := a.engine.RecordPurchase(r.Context(), draft)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"sales": a.engine.Snapshot().Sales})
	case http.MethodPost:
		actor, _ := ActorFromContext(r.Context())

		var draft domain.SaleDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if hasDiscount(draft) && !access.CanGiveDiscounts(actor.Role) {
			writeError(w, http.StatusForbidden, errors.New("role may not give discounts"))
			return
		}
		if draft.CreatedBy == "" {
			draft.CreatedBy = actor.UserID
		}

		id, err := a.engine.RecordSale(r.Context(), draft)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func hasDiscount(draft domain.SaleDraft) bool {
	if draft.Discount > 0 {
		return true
	}
	for _, item := range draft.Items {
		if item.Discount > 0 {
			return true
		}
	}
	return false
}

func (a *API) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"adjustments": a.engine.Snapshot().Adjustments})
	case http.MethodPost:
		if !a.requireAction(w, r, access.CanManageCatalog) {
			return
		}
		var draft domain.AdjustmentDraft
		if err := decodeJSON(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id := a.engine.AdjustStock(r.Context(), draft)
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"settings": a.engine.Settings()})
	case http.MethodPatch:
		var patch domain.SettingsPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		settings := a.engine.SetSettings(r.Context(), patch)
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.sessions.Directory()})
	case http.MethodPost:
		if !a.requireAction(w, r, access.CanManageUsers) {
			return
		}
		var req domain.UserUpsertRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.sessions.UpsertUser(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUserActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing user id"))
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if !a.requireAction(w, r, access.CanManageUsers) {
			return
		}
		if err := a.sessions.DeleteUser(r.Context(), id); err != nil {
			if errors.Is(err, session.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": report.Summarize(a.engine.Snapshot())})
}

func (a *API) handleReportExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	csv := report.CSV(report.Summarize(a.engine.Snapshot()))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stockflow-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": report.LowStock(a.engine.Snapshot())})
}

func (a *API) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	snapshot, err := a.engine.ExportSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stockflow-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snapshot))
}

func (a *API) handleBackupImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unreadable body"))
		return
	}
	if err := a.engine.ImportSnapshot(r.Context(), string(raw)); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// requireAction enforces an action-level permission on top of route gating.
func (a *API) requireAction(w http.ResponseWriter, r *http.Request, allowed func(domain.Role) bool) bool {
	actor, ok := ActorFromContext(r.Context())
	if !ok || !allowed(actor.Role) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrEmptyDraft), errors.Is(err, ledger.ErrBadSnapshot):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
