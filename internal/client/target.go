package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"catalog-sync/config"
	"catalog-sync/internal/httpx"
	"catalog-sync/internal/models"
	"catalog-sync/internal/ratelimit"
)

// TargetAPIName identifies the destination catalog in the rate limiter and
// error taxonomy.
const TargetAPIName = "target"

const targetListPageSize = 100

// Target creates and updates items and variant records in the destination
// e-commerce catalog.
type Target struct {
	rest              *rest
	defaultCollection string
}

// NewTarget builds a target client from config, registering its rate budget
// on the shared limiter.
func NewTarget(cfg config.APIConfig, limiter *ratelimit.Limiter) *Target {
	limiter.Register(TargetAPIName, ratelimit.Budget{
		Requests: cfg.RateLimit,
		Window:   cfg.RateWindow,
		MaxWait:  cfg.RateWaitCeiling,
	})
	policy := httpx.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		JitterFrac:  0.25,
	}
	return &Target{
		rest:              newREST(TargetAPIName, cfg.BaseURL, httpx.StaticToken(cfg.APIKey), limiter, policy, cfg.RequestTimeout),
		defaultCollection: cfg.Collection,
	}
}

type targetItemWire struct {
	ID       string                 `json:"id"`
	SKU      string                 `json:"sku"`
	Slug     string                 `json:"slug"`
	Fields   map[string]interface{} `json:"fieldData"`
	Variants []struct {
		ID     string                 `json:"id"`
		SKU    string                 `json:"sku"`
		Fields map[string]interface{} `json:"fieldData"`
	} `json:"skus"`
}

type targetListResponse struct {
	Items      []targetItemWire `json:"items"`
	Pagination struct {
		Offset int `json:"offset"`
		Total  int `json:"total"`
	} `json:"pagination"`
}

func (t *Target) collection(collection string) string {
	if collection == "" {
		return t.defaultCollection
	}
	return collection
}

// ListExisting pages through the whole collection and returns every item,
// for reconciliation against the source matrix.
func (t *Target) ListExisting(ctx context.Context, collection string) ([]models.TargetItem, error) {
	base := "/collections/" + url.PathEscape(t.collection(collection)) + "/items"

	var items []models.TargetItem
	offset := 0
	for {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(targetListPageSize))

		var resp targetListResponse
		if err := t.rest.doJSON(ctx, http.MethodGet, base, q, nil, &resp); err != nil {
			return nil, err
		}
		for _, w := range resp.Items {
			item, err := t.toItem(w)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		offset += len(resp.Items)
		if len(resp.Items) < targetListPageSize || offset >= resp.Pagination.Total {
			break
		}
	}

	t.rest.logger.Debug("Listed existing target items",
		zap.String("collection", t.collection(collection)),
		zap.Int("count", len(items)))
	return items, nil
}

// GetItemBySKU finds one item by its SKU, nil when absent. Identity crosses
// systems by SKU match, never by internal ID.
func (t *Target) GetItemBySKU(ctx context.Context, collection, sku string) (*models.TargetItem, error) {
	q := url.Values{}
	q.Set("sku", sku)

	var resp targetListResponse
	base := "/collections/" + url.PathEscape(t.collection(collection)) + "/items"
	if err := t.rest.doJSON(ctx, http.MethodGet, base, q, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	item, err := t.toItem(resp.Items[0])
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemPayload is the destination-shaped write body for creates and updates.
type ItemPayload struct {
	Fields   map[string]interface{} `json:"fieldData"`
	Variants []VariantPayload       `json:"skus"`
}

// VariantPayload is one variant record in a write body.
type VariantPayload struct {
	SKU    string                 `json:"sku"`
	Fields map[string]interface{} `json:"fieldData"`
}

// CreateItem creates a new item with its full variant set and returns the
// destination-assigned ID.
func (t *Target) CreateItem(ctx context.Context, collection string, payload ItemPayload) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	base := "/collections/" + url.PathEscape(t.collection(collection)) + "/items"
	if err := t.rest.doJSON(ctx, http.MethodPost, base, nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &models.SchemaError{API: TargetAPIName, Detail: "create response missing item id"}
	}
	return resp.ID, nil
}

// UpdateItem patches item-level fields, along with any variants the item
// does not have yet (the destination creates variant records sent on an item
// patch).
func (t *Target) UpdateItem(ctx context.Context, collection, itemID string, payload ItemPayload) error {
	path := "/collections/" + url.PathEscape(t.collection(collection)) + "/items/" + url.PathEscape(itemID)
	return t.rest.doJSON(ctx, http.MethodPatch, path, nil, payload, nil)
}

// UpdateVariant patches one variant record of an item.
func (t *Target) UpdateVariant(ctx context.Context, collection, itemID, variantID string, fields map[string]interface{}) error {
	path := "/collections/" + url.PathEscape(t.collection(collection)) + "/items/" +
		url.PathEscape(itemID) + "/skus/" + url.PathEscape(variantID)
	body := map[string]interface{}{"fieldData": fields}
	return t.rest.doJSON(ctx, http.MethodPatch, path, nil, body, nil)
}

// PublishItems pushes a batch of updated items live. Used once per run after
// all applies, so a multi-hour sync does not publish piecemeal.
func (t *Target) PublishItems(ctx context.Context, collection string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	path := "/collections/" + url.PathEscape(t.collection(collection)) + "/items/publish"
	body := map[string]interface{}{"itemIds": itemIDs}
	return t.rest.doJSON(ctx, http.MethodPost, path, nil, body, nil)
}

func (t *Target) toItem(w targetItemWire) (models.TargetItem, error) {
	if w.ID == "" {
		return models.TargetItem{}, &models.SchemaError{API: TargetAPIName, Detail: "item missing id"}
	}
	item := models.TargetItem{
		ID:     w.ID,
		SKU:    w.SKU,
		Slug:   w.Slug,
		Fields: w.Fields,
	}
	for _, v := range w.Variants {
		item.Variants = append(item.Variants, models.TargetVariant{ID: v.ID, SKU: v.SKU, Fields: v.Fields})
	}
	if item.SKU == "" {
		if sku, ok := w.Fields["sku"].(string); ok {
			item.SKU = sku
		}
	}
	return item, nil
}
