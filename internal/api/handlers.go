package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/affiliate"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/extractor"
	"github.com/maltedev/glamify-scraper/internal/models"
)

// maxExtractBody bounds the HTML accepted by the extract endpoint.
const maxExtractBody = 5 << 20

// OutboxStats is implemented by database.OutboxRepository.
type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Catalog is implemented by catalog.Reader.
type Catalog interface {
	Product(ctx context.Context, id uuid.UUID) (*models.AffiliateProduct, error)
	CountByPlatform(ctx context.Context) (map[string]int, error)
	TouchLink(ctx context.Context, id uuid.UUID) error
}

type Handlers struct {
	linker    *affiliate.Linker
	extractor *extractor.Extractor
	outbox    OutboxStats
	catalog   Catalog
	logger    *slog.Logger
}

// NewHandlers creates the API handlers. outbox and catalog may be nil when
// the service runs without a database.
func NewHandlers(linker *affiliate.Linker, ex *extractor.Extractor, outbox OutboxStats, catalog Catalog, logger *slog.Logger) *Handlers {
	return &Handlers{
		linker:    linker,
		extractor: ex,
		outbox:    outbox,
		catalog:   catalog,
		logger:    logger.With("component", "api"),
	}
}

// LinkRequest asks for the affiliate form of a product url
type LinkRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type LinkResponse struct {
	Platform     string `json:"platform"`
	URL          string `json:"url"`
	AffiliateURL string `json:"affiliate_url"`
	Rewritten    bool   `json:"rewritten"`
}

// GenerateLink rewrites a product url for a platform. Unknown platforms are
// not an error; the url comes back unchanged.
func (h *Handlers) GenerateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	link := h.linker.GenerateLink(req.Platform, req.URL)
	h.respondJSON(w, http.StatusOK, LinkResponse{
		Platform:     req.Platform,
		URL:          req.URL,
		AffiliateURL: link,
		Rewritten:    link != req.URL,
	})
}

type PlatformInfo struct {
	Platform    string `json:"platform"`
	AffiliateID string `json:"affiliate_id"`
	Rewrites    bool   `json:"rewrites"`
}

// ListPlatforms returns the configured affiliate platforms
func (h *Handlers) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms := h.linker.Platforms()
	resp := make([]PlatformInfo, 0, len(platforms))
	for _, p := range platforms {
		id, _ := h.linker.AffiliateID(p)
		resp = append(resp, PlatformInfo{
			Platform:    p,
			AffiliateID: id,
			Rewrites:    h.linker.Rewrites(p),
		})
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type ExtractRequest struct {
	HTML    string `json:"html"`
	BaseURL string `json:"base_url"`
}

type ExtractResponse struct {
	Records  []extractor.Record `json:"records"`
	NextPage string             `json:"next_page,omitempty"`
}

// Extract runs the product extractor over a submitted document.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.BaseURL == "" {
		h.respondError(w, http.StatusBadRequest, "base_url is required")
		return
	}

	page, err := h.extractor.ExtractReader(strings.NewReader(req.HTML), req.BaseURL)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ExtractResponse{Records: page.Collect()}
	if next, ok := page.Next(); ok {
		resp.NextPage = next
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type ProductResponse struct {
	*models.AffiliateProduct
	AffiliateURL string `json:"affiliate_url,omitempty"`
}

// GetProduct returns a stored product with its affiliate url.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	resp := ProductResponse{AffiliateProduct: product}
	if product.URL != nil {
		resp.AffiliateURL = h.linker.GenerateLink(product.Platform, *product.URL)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// BuyProduct redirects to the affiliate url of a stored product and records
// the use of its affiliate link.
func (h *Handlers) BuyProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	if product.URL == nil {
		h.respondError(w, http.StatusNotFound, "product has no url")
		return
	}

	if product.AffiliateLinkID != nil {
		if err := h.catalog.TouchLink(r.Context(), *product.AffiliateLinkID); err != nil {
			h.logger.Warn("failed to touch affiliate link", "link_id", *product.AffiliateLinkID, "error", err)
		}
	}

	http.Redirect(w, r, h.linker.GenerateLink(product.Platform, *product.URL), http.StatusFound)
}

func (h *Handlers) loadProduct(w http.ResponseWriter, r *http.Request) (*models.AffiliateProduct, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product id")
		return nil, false
	}

	product, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load product", "product_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load product")
		return nil, false
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return nil, false
	}

	return product, true
}

// Health reports service status and, with a database, the outbox backlog
// and stored products per platform.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox status", "error", err)
			health["status"] = "error"
			health["message"] = "database unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		pending := counts[database.OutboxStatusPending]
		deadLetter := counts[database.OutboxStatusDeadLetter]
		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}

		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	if h.catalog != nil {
		counts, err := h.catalog.CountByPlatform(r.Context())
		if err != nil {
			h.logger.Error("failed to count products", "error", err)
			health["status"] = "error"
			health["message"] = "database unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}
		health["products"] = counts
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
