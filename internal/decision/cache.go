package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/lattice-ai/authcore/internal/policy"
	"github.com/lattice-ai/authcore/internal/registry"
)

const keyPrefix = "authcore:decision:"

// Cache memoizes evaluator outputs in Redis under fingerprint keys with a
// short fixed TTL, and coalesces concurrent computations for the same
// fingerprint so at most one ownership resolution plus evaluation is in
// flight per key.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache constructs the cache. The TTL bounds staleness even when version
// stamps are unavailable from the owning services.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

type cachedDecision struct {
	ID         string        `json:"id"`
	Allowed    bool          `json:"allowed"`
	Reason     policy.Reason `json:"reason"`
	Permission string        `json:"permission,omitempty"`
	Scope      int           `json:"scope"`
}

// Get returns the cached decision for fingerprint, reporting absence via the
// second return value. Redis transport errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (policy.Decision, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return policy.Decision{}, false, nil
		}
		return policy.Decision{}, false, err
	}
	var cached cachedDecision
	if err := json.Unmarshal(data, &cached); err != nil {
		return policy.Decision{}, false, fmt.Errorf("decision: decode cache entry: %w", err)
	}
	return policy.Decision{
		ID:         cached.ID,
		Allowed:    cached.Allowed,
		Reason:     cached.Reason,
		Permission: cached.Permission,
		Scope:      registry.Scope(cached.Scope),
	}, true, nil
}

// Put writes through the decision under its fingerprint.
func (c *Cache) Put(ctx context.Context, fingerprint string, dec policy.Decision) error {
	data, err := json.Marshal(cachedDecision{
		ID:         dec.ID,
		Allowed:    dec.Allowed,
		Reason:     dec.Reason,
		Permission: dec.Permission,
		Scope:      int(dec.Scope),
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+fingerprint, data, c.ttl).Err()
}

// Compute coalesces concurrent callers onto a single execution of fn per
// fingerprint. Later callers receive the first caller's result; a caller
// whose context is cancelled while waiting gets the cancellation error and
// the underlying computation is left to finish or fail on its own.
func (c *Cache) Compute(ctx context.Context, fingerprint string, fn func(context.Context) (policy.Decision, error)) (policy.Decision, bool, error) {
	resultChan := c.group.DoChan(fingerprint, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return policy.Decision{}, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return policy.Decision{}, res.Shared, res.Err
		}
		return res.Val.(policy.Decision), res.Shared, nil
	}
}
