package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"retailledger/internal/lock"
	"retailledger/internal/service"
	"retailledger/internal/store"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxBodyBytes    = 1 << 20
)

type Options struct {
	AllowedOrigin string
	Logger        logrus.FieldLogger
}

type API struct {
	service       *service.Service
	log           logrus.FieldLogger
	allowedOrigin string
}

func New(svc *service.Service, opts Options) *API {
	log := opts.Logger
	if log == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		log = quiet
	}
	return &API{
		service:       svc,
		log:           log,
		allowedOrigin: opts.AllowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(a.requestID(), a.accessLog(), gin.CustomRecovery(a.recoverPanic))
	r.Use(cors.New(a.corsConfig()))
	r.Use(securityHeaders(), limitBody())

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")

	products := v1.Group("/products")
	products.GET("", a.handleListProducts)
	products.POST("", a.handleCreateProduct)
	products.GET("/search", a.handleSearchProducts)
	products.GET("/:id", a.handleGetProduct)
	products.PATCH("/:id", a.handleUpdateProduct)
	products.DELETE("/:id", a.handleDeleteProduct)
	products.POST("/:id/force-delete", a.handleForceDeleteProduct)

	inventory := v1.Group("/inventory")
	inventory.GET("/valuation", a.handleValuation)
	inventory.GET("/entries", a.handleListEntries)
	inventory.POST("/entries", a.handleReceiveStock)
	inventory.PATCH("/entries/:id", a.handleAmendEntry)
	inventory.DELETE("/entries/:id", a.handleRevokeEntry)

	sessions := v1.Group("/sessions")
	sessions.GET("", a.handleListSessions)
	sessions.GET("/current", a.handleCurrentSession)
	sessions.POST("/open", a.handleOpenSession)
	sessions.POST("/close", a.handleCloseSession)
	sessions.GET("/:id", a.handleGetSession)
	sessions.GET("/:id/report", a.handleSessionReport)

	v1.POST("/cart/check", a.handleCheckCart)

	sales := v1.Group("/sales")
	sales.GET("", a.handleListSales)
	sales.POST("", a.handleCommitSale)
	sales.GET("/:id", a.handleGetSale)
	sales.POST("/:id/cancel", a.handleCancelSale)

	v1.GET("/cancellations", a.handleListCancellations)
	v1.GET("/export/snapshot", a.handleSnapshot)

	r.NoRoute(func(c *gin.Context) {
		writeJSON(c, http.StatusNotFound, gin.H{"error": "route not found", "code": "not_found"})
	})
	return r
}

func (a *API) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if a.allowedOrigin == "" || a.allowedOrigin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = strings.Split(a.allowedOrigin, ",")
		for i := range cfg.AllowOrigins {
			cfg.AllowOrigins[i] = strings.TrimSpace(cfg.AllowOrigins[i])
		}
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AddAllowHeaders(requestIDHeader)
	cfg.AddExposeHeaders(requestIDHeader, "Content-Disposition")
	return cfg
}

func (a *API) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (a *API) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()

		entry := a.log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(startedAt).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Info("request")
	}
}

func (a *API) recoverPanic(c *gin.Context, recovered any) {
	a.log.WithField("request_id", c.GetString(requestIDKey)).Errorf("panic: %v", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Next()
	}
}

func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

// errorCodes maps each ledger error to its status and stable code.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrValidation, http.StatusBadRequest, "validation_error"},
	{store.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrDuplicateBarcode, http.StatusConflict, "duplicate_barcode"},
	{store.ErrReferentialConflict, http.StatusConflict, "referential_conflict"},
	{store.ErrStockUnderflow, http.StatusConflict, "stock_underflow"},
	{store.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{store.ErrNoOpenSession, http.StatusConflict, "no_open_session"},
	{store.ErrSessionAlreadyOpen, http.StatusConflict, "session_already_open"},
	{lock.ErrNotObtained, http.StatusServiceUnavailable, "busy"},
}

func classify(err error) (int, string) {
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.status, candidate.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (a *API) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	body := gin.H{"error": err.Error(), "code": code}

	// For 5xx responses, return a generic message so driver details stay in
	// the log.
	if status >= http.StatusInternalServerError {
		a.log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"status":     status,
		}).WithError(err).Error("internal error")
		body["error"] = "internal server error"
		if status == http.StatusServiceUnavailable {
			body["error"] = "ledger is busy, retry"
		}
	}

	var entityErr *store.EntityError
	if status < http.StatusInternalServerError && errors.As(err, &entityErr) && entityErr.Entity != "" {
		body["entity"] = entityErr.Entity
		body["id"] = entityErr.ID
	}
	writeJSON(c, status, body)
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// decodeJSON reads a strict JSON body. An empty body is allowed when
// allowEmpty is set and leaves dest untouched.
func decodeJSON(c *gin.Context, dest any, allowEmpty bool) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", store.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", store.ErrValidation, c.Param("id"))
	}
	return id, nil
}

func queryID(c *gin.Context, key string) (int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", store.ErrValidation, key, raw)
	}
	return id, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid %s %q", store.ErrValidation, key, raw)
}
