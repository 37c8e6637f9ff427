package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"retailledger/internal/domain"
	"retailledger/internal/report"
	"retailledger/internal/store"
)

type confirmRequest struct {
	Confirm bool   `json:"confirm"`
	Reason  string `json:"reason"`
}

type amendRequest struct {
	Quantity *int `json:"quantity"`
}

type cartRequest struct {
	Lines []domain.CartLine `json:"lines"`
}

func (a *API) handleHealth(c *gin.Context) {
	if err := a.service.Ping(c.Request.Context()); err != nil {
		a.log.WithError(err).Warn("health check failed")
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.service.ListProducts(c.Request.Context(), domain.ProductFilter{
		Query:    strings.TrimSpace(c.Query("q")),
		Category: strings.TrimSpace(c.Query("category")),
		Barcode:  strings.TrimSpace(c.Query("barcode")),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"products": products})
}

// handleSearchProducts is the name-only search box: q is required.
func (a *API) handleSearchProducts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		a.writeError(c, fmt.Errorf("%w: q is required", store.ErrValidation))
		return
	}
	products, err := a.service.SearchProducts(c.Request.Context(), q)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"products": products})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductInput
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"product": product})
}

func (a *API) handleGetProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	product, err := a.service.GetProduct(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"product": product})
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	var req domain.ProductPatch
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"product": product})
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.service.DeleteProduct(c.Request.Context(), id); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleForceDeleteProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if !a.confirmed(c, nil) {
		return
	}
	result, err := a.service.ForceDeleteProduct(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

func (a *API) handleValuation(c *gin.Context) {
	valuation, err := a.service.InventoryValuation(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, valuation)
}

func (a *API) handleListEntries(c *gin.Context) {
	productID, err := queryID(c, "product_id")
	if err != nil {
		a.writeError(c, err)
		return
	}
	entries, err := a.service.ListEntries(c.Request.Context(), domain.EntryFilter{
		ProductID: productID,
		Query:     strings.TrimSpace(c.Query("q")),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": entries})
}

func (a *API) handleReceiveStock(c *gin.Context) {
	var req domain.ReceiveStockCommand
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return
	}
	entry, err := a.service.ReceiveStock(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"entry": entry})
}

func (a *API) handleAmendEntry(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	var req amendRequest
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return
	}
	if req.Quantity == nil {
		a.writeError(c, fmt.Errorf("%w: quantity is required", store.ErrValidation))
		return
	}
	entry, err := a.service.AmendEntry(c.Request.Context(), domain.AmendEntryCommand{EntryID: id, Quantity: *req.Quantity})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"entry": entry})
}

func (a *API) handleRevokeEntry(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if err := a.service.RevokeEntry(c.Request.Context(), id); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListSessions(c *gin.Context) {
	sessions, err := a.service.ListSessions(c.Request.Context(), domain.SessionFilter{Status: strings.TrimSpace(c.Query("status"))})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sessions": sessions})
}

func (a *API) handleCurrentSession(c *gin.Context) {
	session, err := a.service.CurrentSession(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session": session})
}

func (a *API) handleOpenSession(c *gin.Context) {
	var req domain.OpenSessionCommand
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return
	}
	session, err := a.service.OpenSession(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"session": session})
}

func (a *API) handleCloseSession(c *gin.Context) {
	var req domain.CloseSessionCommand
	if err := decodeJSON(c, &req, true); err != nil {
		a.writeError(c, err)
		return
	}
	session, err := a.service.CloseSession(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session": session})
}

func (a *API) handleGetSession(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	session, err := a.service.GetSession(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session": session})
}

func (a *API) handleSessionReport(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	r, err := a.service.SessionReport(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if c.Query("format") != "xlsx" {
		writeJSON(c, http.StatusOK, r)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteSessionWorkbook(&buf, r); err != nil {
		a.writeError(c, err)
		return
	}
	a.attachment(c, fmt.Sprintf("session-%d.xlsx", id), buf.Bytes())
}

func (a *API) handleCheckCart(c *gin.Context) {
	cart, ok := a.decodeCart(c)
	if !ok {
		return
	}
	check, err := a.service.CheckCart(c.Request.Context(), cart)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, check)
}

func (a *API) handleCommitSale(c *gin.Context) {
	cart, ok := a.decodeCart(c)
	if !ok {
		return
	}
	sale, err := a.service.CommitSale(c.Request.Context(), cart)
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"sale": sale})
}

func (a *API) handleListSales(c *gin.Context) {
	sessionID, err := queryID(c, "session_id")
	if err != nil {
		a.writeError(c, err)
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		a.writeError(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		a.writeError(c, err)
		return
	}
	sales, err := a.service.ListSales(c.Request.Context(), domain.SaleFilter{SessionID: sessionID, From: from, To: to})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sales": sales})
}

func (a *API) handleGetSale(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if c.Query("format") != "xlsx" {
		sale, err := a.service.GetSale(c.Request.Context(), id)
		if err != nil {
			a.writeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"sale": sale})
		return
	}

	r, err := a.service.SaleReport(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteSaleWorkbook(&buf, r); err != nil {
		a.writeError(c, err)
		return
	}
	a.attachment(c, fmt.Sprintf("sale-%d.xlsx", id), buf.Bytes())
}

func (a *API) handleCancelSale(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	var req confirmRequest
	if !a.confirmed(c, &req) {
		return
	}
	record, err := a.service.CancelSale(c.Request.Context(), domain.CancelSaleCommand{SaleID: id, Reason: strings.TrimSpace(req.Reason)})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"cancellation": record})
}

func (a *API) handleListCancellations(c *gin.Context) {
	sessionID, err := queryID(c, "session_id")
	if err != nil {
		a.writeError(c, err)
		return
	}
	records, err := a.service.ListCancellations(c.Request.Context(), domain.CancellationFilter{SessionID: sessionID})
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"cancellations": records})
}

func (a *API) handleSnapshot(c *gin.Context) {
	snap, err := a.service.Snapshot(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

// confirmed decodes the confirmation body of a destructive request and
// rejects it unless confirm is true.
func (a *API) confirmed(c *gin.Context, req *confirmRequest) bool {
	if req == nil {
		req = &confirmRequest{}
	}
	if err := decodeJSON(c, req, true); err != nil {
		a.writeError(c, err)
		return false
	}
	if !req.Confirm {
		a.writeError(c, fmt.Errorf("%w: confirm must be true for this irreversible action", store.ErrValidation))
		return false
	}
	return true
}

func (a *API) decodeCart(c *gin.Context) (*domain.Cart, bool) {
	var req cartRequest
	if err := decodeJSON(c, &req, false); err != nil {
		a.writeError(c, err)
		return nil, false
	}
	return domain.NewCart(req.Lines...), true
}

func (a *API) attachment(c *gin.Context, name string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, report.XLSXContentType, body)
}
