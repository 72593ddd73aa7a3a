package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "masterdata:version"

// CachedStore is a read-through Redis cache in front of a Store. Keys carry a
// global version so Bump invalidates everything at once. Concurrent misses for
// the same key share one load.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedStore wraps next. A nil client disables caching.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{next: next, client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *CachedStore) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached record.
func (c *CachedStore) Bump(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *CachedStore) Supplier(ctx context.Context, id int64) (Supplier, error) {
	var out Supplier
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Supplier(ctx, id) }, "supplier", id)
	return out, err
}

func (c *CachedStore) Company(ctx context.Context, id int64) (Company, error) {
	var out Company
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Company(ctx, id) }, "company", id)
	return out, err
}

func (c *CachedStore) Customer(ctx context.Context, id int64) (Customer, error) {
	var out Customer
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Customer(ctx, id) }, "customer", id)
	return out, err
}

func (c *CachedStore) Contact(ctx context.Context, id int64) (Contact, error) {
	var out Contact
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Contact(ctx, id) }, "contact", id)
	return out, err
}

func (c *CachedStore) Contacts(ctx context.Context, customerID int64) ([]Contact, error) {
	var out []Contact
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Contacts(ctx, customerID) }, "contacts", customerID)
	return out, err
}

func (c *CachedStore) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	var out Warehouse
	err := fetch(ctx, c, &out, func(ctx context.Context) (any, error) { return c.next.Warehouse(ctx, id) }, "warehouse", id)
	return out, err
}

// fetch loads dest from Redis or populates it using loader. Loader errors,
// including not-found, are never cached.
func fetch(ctx context.Context, c *CachedStore, dest any, loader func(context.Context) (any, error), entity string, id int64) error {
	if c.client == nil {
		return load(ctx, dest, loader)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return load(ctx, dest, loader)
	}
	key := strings.Join([]string{"masterdata", entity, strconv.FormatInt(id, 10), strconv.FormatInt(ver, 10)}, ":")
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return load(ctx, dest, loader)
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("masterdata: encode %s: %w", entity, err)
		}
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
