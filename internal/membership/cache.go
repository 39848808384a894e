package membership

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/multiplier-synth/multiplier-api/internal/logger"
)

// Cached keeps lookup results in Redis for a while. Redis problems are
// logged and the inner lookup is used instead.
type Cached struct {
	inner Lookup
	rdb   *goredis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewCached wraps inner with a Redis cache.
func NewCached(inner Lookup, rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, log: log.With("service", "MembershipCache")}
}

// NewRedisClient creates a client for addr with short timeouts; a slow
// cache must not hold up a login-status request.
func NewRedisClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func cacheKey(userID int64) string {
	return "multiplier:membership:" + strconv.FormatInt(userID, 10)
}

// Lookup serves from the cache when possible and fills it on a miss.
func (c *Cached) Lookup(ctx context.Context, userID int64) (*Document, error) {
	key := cacheKey(userID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc Document
		if err := json.Unmarshal(raw, &doc); err == nil {
			return &doc, nil
		}
		c.log.Warn("Discarding undecodable cached membership document", "userId", userID)
	case !errors.Is(err, goredis.Nil):
		c.log.Warn("Membership cache read failed", "userId", userID, "error", err)
	}

	doc, err := c.inner.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(doc); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.log.Warn("Membership cache write failed", "userId", userID, "error", err)
		}
	}
	return doc, nil
}

// Invalidate drops a cached document, e.g. after the user's stored
// membership attributes change.
func (c *Cached) Invalidate(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cacheKey(userID)).Err()
}
