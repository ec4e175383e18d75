package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lepinkainen/shelfscan/internal/barcode"
	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
	shelferrors "github.com/lepinkainen/shelfscan/internal/errors"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/lepinkainen/shelfscan/internal/pipeline"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/shopspring/decimal"
)

// Processor runs the lookup and merge pipeline for one code.
type Processor interface {
	Process(ctx context.Context, ownerID string, code barcode.Code, typePreference product.ItemType) (pipeline.Result, error)
}

// Lister returns an owner's inventory.
type Lister interface {
	List(ctx context.Context, ownerID string) ([]inventory.Record, error)
}

// Pricer computes quotes.
type Pricer interface {
	Price(ctx context.Context, item pricing.Item, strategy pricing.Strategy, cfg pricing.Config) pricing.Quote
	PriceAll(ctx context.Context, items []pricing.Item, strategy pricing.Strategy, cfg pricing.Config) []pricing.Quote
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	processor Processor
	items     Lister
	pricer    Pricer
	profile   pricing.Profile
}

// NewHandler creates a new HTTP handler. profile supplies the strategy and
// settings used when a price request does not name a strategy.
func NewHandler(processor Processor, items Lister, pricer Pricer, profile pricing.Profile) *Handler {
	return &Handler{processor: processor, items: items, pricer: pricer, profile: profile}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfscan",
	})
}

type scanRequest struct {
	Code string `json:"code" binding:"required"`
	Type string `json:"type"`
}

type scanResponse struct {
	Code     string                `json:"code"`
	Kind     string                `json:"kind"`
	ID       string                `json:"id"`
	Created  bool                  `json:"created"`
	Quantity int                   `json:"quantity"`
	Record   inventory.Record      `json:"record"`
	Metadata *product.ItemMetadata `json:"metadata,omitempty"`
}

// Scan normalizes a code and merges it into the caller's inventory.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := barcode.Normalize(req.Code)
	if !code.Valid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "unrecognized code",
			"code":  code.Digits,
		})
		return
	}

	res, err := h.processor.Process(c.Request.Context(), ownerFrom(c), code, product.ParseItemType(req.Type))
	if err != nil {
		status := scanErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Scan failed", "code", code.Digits, "error", err)
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": code.Digits})
		return
	}

	c.JSON(http.StatusOK, scanResponse{
		Code:     code.Digits,
		Kind:     code.Kind.String(),
		ID:       res.Merge.ID,
		Created:  res.Merge.Created,
		Quantity: res.Merge.Quantity,
		Record:   res.Merge.Record,
		Metadata: res.Metadata,
	})
}

func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, inventory.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, product.ErrInvalidCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrLookupNotFound):
		return http.StatusNotFound
	case shelferrors.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case errors.Is(err, inventory.ErrStore):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

type priceRequest struct {
	ISBN       string           `json:"isbn"`
	ISSN       string           `json:"issn"`
	Title      string           `json:"title"`
	Type       string           `json:"type"`
	Categories []string         `json:"categories"`
	ListPrice  *decimal.Decimal `json:"list_price"`
	Strategy   string           `json:"strategy"`
}

func (r priceRequest) item() pricing.Item {
	return pricing.Item{
		ISBN:       r.ISBN,
		ISSN:       r.ISSN,
		Title:      r.Title,
		Type:       product.ParseItemType(r.Type),
		Categories: r.Categories,
		ListPrice:  r.ListPrice,
	}
}

type priceResponse struct {
	pricing.Quote
	// ReauthRequired is set when the market rejected our credentials.
	ReauthRequired bool `json:"reauth_required,omitempty"`
}

func newPriceResponse(q pricing.Quote) priceResponse {
	return priceResponse{Quote: q, ReauthRequired: shelferrors.IsMarketAuthError(q.Err)}
}

func (h *Handler) strategy(name string) (pricing.Strategy, error) {
	if name == "" {
		return h.profile.Strategy, nil
	}
	return pricing.ParseStrategy(name)
}

// Price computes a quote for a single item.
func (h *Handler) Price(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategy, err := h.strategy(req.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := h.pricer.Price(c.Request.Context(), req.item(), strategy, h.profile.Config)
	c.JSON(http.StatusOK, newPriceResponse(q))
}

type batchPriceRequest struct {
	Strategy string         `json:"strategy"`
	Items    []priceRequest `json:"items" binding:"required"`
}

// PriceBatch prices a list of items. Results carry the input index.
func (h *Handler) PriceBatch(c *gin.Context) {
	var req batchPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategy, err := h.strategy(req.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]pricing.Item, len(req.Items))
	for i, r := range req.Items {
		items[i] = r.item()
	}

	quotes := h.pricer.PriceAll(c.Request.Context(), items, strategy, h.profile.Config)
	out := make([]priceResponse, len(quotes))
	for i, q := range quotes {
		out[i] = newPriceResponse(q)
	}
	c.JSON(http.StatusOK, gin.H{"quotes": out})
}

// ListItems returns the caller's inventory.
func (h *Handler) ListItems(c *gin.Context) {
	records, err := h.items.List(c.Request.Context(), ownerFrom(c))
	if err != nil {
		slog.Error("Listing inventory failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list inventory"})
		return
	}
	if records == nil {
		records = []inventory.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"items": records, "count": len(records)})
}
