package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"catalog-sync/internal/models"
)

// Cache entries outlive any plausible run duration but not a restart cycle.
const itemTTL = 6 * time.Hour

// Client caches target catalog items by SKU for the duration of a run, so
// per-product reconciliation does not re-list the destination collection.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func itemKey(runID, sku string) string {
	return fmt.Sprintf("target-items:%s:%s", runID, sku)
}

// PutItem caches one target item under its SKU for a run.
func (c *Client) PutItem(ctx context.Context, runID string, item *models.TargetItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal target item: %w", err)
	}
	return c.rdb.Set(ctx, itemKey(runID, item.SKU), data, itemTTL).Err()
}

// GetItem returns the cached item for a SKU, or nil on miss. Errors are
// returned so callers can fall back to the live API.
func (c *Client) GetItem(ctx context.Context, runID, sku string) (*models.TargetItem, error) {
	data, err := c.rdb.Get(ctx, itemKey(runID, sku)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item models.TargetItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached item: %w", err)
	}
	return &item, nil
}

// ClearRun drops all cached items of a finished run.
func (c *Client) ClearRun(ctx context.Context, runID string) error {
	iter := c.rdb.Scan(ctx, 0, itemKey(runID, "*"), 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
