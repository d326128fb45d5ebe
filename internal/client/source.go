package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"catalog-sync/config"
	"catalog-sync/internal/httpx"
	"catalog-sync/internal/models"
	"catalog-sync/internal/ratelimit"
)

// SourceAPIName identifies the source catalog in the rate limiter and error
// taxonomy.
const SourceAPIName = "source"

// Source fetches products and their variant attribute sets from the system
// of record.
type Source struct {
	rest *rest
}

// NewSource builds a source client from config, registering its rate budget
// on the shared limiter.
func NewSource(cfg config.APIConfig, limiter *ratelimit.Limiter) *Source {
	limiter.Register(SourceAPIName, ratelimit.Budget{
		Requests: cfg.RateLimit,
		Window:   cfg.RateWindow,
		MaxWait:  cfg.RateWaitCeiling,
	})
	tokens := httpx.NewExchangingTokenSource(
		SourceAPIName,
		cfg.BaseURL+"/auth/api/get-token",
		cfg.APIKey,
		cfg.APISecret,
		15*time.Minute,
		nil,
	)
	policy := httpx.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		JitterFrac:  0.25,
	}
	return &Source{rest: newREST(SourceAPIName, cfg.BaseURL, tokens, limiter, policy, cfg.RequestTimeout)}
}

type sourceSearchRequest struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Filters  [][]map[string]string `json:"filters,omitempty"`
}

type sourceProductWire struct {
	ID          string                 `json:"id"`
	SKU         string                 `json:"sku"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	PriceCents  int64                  `json:"price_cents"`
	Attributes  map[string]interface{} `json:"attributes"`
	Assets      []models.Asset         `json:"assets"`
	Modified    time.Time              `json:"modified"`
}

type sourceSearchResponse struct {
	Data       []sourceProductWire `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		PageSize   int `json:"page_size"`
		TotalCount int `json:"total_count"`
	} `json:"pagination"`
}

type sourceVariantsResponse struct {
	Data struct {
		Axes     []models.VariantAxis   `json:"attribute_groups"`
		Variants []models.SourceVariant `json:"variants"`
	} `json:"data"`
}

// ListProducts returns one page of source products, newest schema first, and
// whether more pages remain. modifiedSince narrows the listing for delta
// sync; zero means full catalog.
func (s *Source) ListProducts(ctx context.Context, page, pageSize int, modifiedSince time.Time) ([]models.SourceProduct, bool, error) {
	req := sourceSearchRequest{Page: page, PageSize: pageSize}
	if !modifiedSince.IsZero() {
		req.Filters = [][]map[string]string{{{
			"field":    "modified",
			"operator": "gt",
			"value":    modifiedSince.Format("2006-01-02"),
		}}}
	}

	var resp sourceSearchResponse
	if err := s.rest.doJSON(ctx, http.MethodPost, "/products/search", nil, req, &resp); err != nil {
		return nil, false, err
	}

	products := make([]models.SourceProduct, 0, len(resp.Data))
	for _, w := range resp.Data {
		p, err := s.toProduct(w)
		if err != nil {
			return nil, false, err
		}
		products = append(products, p)
	}

	hasMore := len(resp.Data) == pageSize && page*pageSize < resp.Pagination.TotalCount
	s.rest.logger.Debug("Fetched source product page",
		zap.Int("page", page),
		zap.Int("count", len(products)),
		zap.Bool("has_more", hasMore))
	return products, hasMore, nil
}

// GetProduct fetches a single product by ID, variants included.
func (s *Source) GetProduct(ctx context.Context, id string) (*models.SourceProduct, error) {
	var resp struct {
		Data []sourceProductWire `json:"data"`
	}
	if err := s.rest.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &models.SchemaError{API: SourceAPIName, Detail: "product payload empty for id " + id}
	}
	p, err := s.toProduct(resp.Data[0])
	if err != nil {
		return nil, err
	}
	axes, variants, err := s.GetVariants(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Axes = axes
	p.Variants = variants
	return &p, nil
}

// GetVariants returns the product's option axes (ordered, values as given by
// the source) and its concrete variant rows.
func (s *Source) GetVariants(ctx context.Context, productID string) ([]models.VariantAxis, []models.SourceVariant, error) {
	var resp sourceVariantsResponse
	path := "/products/" + url.PathEscape(productID) + "/variants"
	if err := s.rest.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, nil, err
	}
	for _, v := range resp.Data.Variants {
		if v.SKU == "" {
			return nil, nil, &models.SchemaError{API: SourceAPIName, Detail: "variant " + v.ID + " missing sku"}
		}
	}
	return resp.Data.Axes, resp.Data.Variants, nil
}

func (s *Source) toProduct(w sourceProductWire) (models.SourceProduct, error) {
	if w.ID == "" || w.SKU == "" {
		return models.SourceProduct{}, &models.SchemaError{API: SourceAPIName, Detail: "product missing id or sku"}
	}
	return models.SourceProduct{
		ID:          w.ID,
		SKU:         w.SKU,
		Label:       w.Label,
		Description: w.Description,
		PriceCents:  w.PriceCents,
		Attributes:  w.Attributes,
		Assets:      w.Assets,
		Modified:    w.Modified,
	}, nil
}
