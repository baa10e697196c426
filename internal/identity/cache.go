package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

const identityKeyPrefix = "refroute:identity:"

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refroute_identity_cache_lookups_total",
		Help: "Identity snapshot lookups by the tier that answered them.",
	}, []string{"tier"})
)

// CachedDirectory fronts a Directory with an in-process LRU and an optional
// shared Redis tier. Concurrent misses for one user collapse into one fetch.
type CachedDirectory struct {
	source Directory
	local  *expirable.LRU[id.UserID, Identity]
	redis  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

type CacheOption func(*CachedDirectory)

// WithRedis adds the shared tier. A nil client is ignored.
func WithRedis(client *redis.Client) CacheOption {
	return func(c *CachedDirectory) {
		c.redis = client
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedDirectory) {
		c.logger = logger
	}
}

func NewCachedDirectory(source Directory, size int, ttl time.Duration, opts ...CacheOption) *CachedDirectory {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &CachedDirectory{
		source: source,
		local:  expirable.NewLRU[id.UserID, Identity](size, nil, ttl),
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *CachedDirectory) GetIdentity(ctx context.Context, user id.UserID) (Identity, error) {
	if u, ok := c.local.Get(user); ok {
		cacheLookups.WithLabelValues("local").Inc()
		return u, nil
	}

	v, err, _ := c.group.Do(user.String(), func() (any, error) {
		if u, ok := c.fromRedis(ctx, user); ok {
			cacheLookups.WithLabelValues("redis").Inc()
			c.local.Add(user, u)
			return u, nil
		}
		u, err := c.source.GetIdentity(ctx, user)
		if err != nil {
			return Identity{}, err
		}
		cacheLookups.WithLabelValues("source").Inc()
		c.local.Add(user, u)
		c.toRedis(ctx, u)
		return u, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return v.(Identity), nil
}

// Resolve answers from the source and refreshes both tiers with the result.
// Writes that embed a snapshot use it so a replica's stale L1 entry never
// reaches a reference.
func (c *CachedDirectory) Resolve(ctx context.Context, user id.UserID) (Identity, error) {
	c.group.Forget(user.String())
	u, err := c.source.GetIdentity(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.local.Remove(user)
		}
		return Identity{}, err
	}
	cacheLookups.WithLabelValues("source").Inc()
	c.local.Add(user, u)
	c.toRedis(ctx, u)
	return u, nil
}

// Fresh is Resolve under the name the synchronizer depends on.
func (c *CachedDirectory) Fresh(ctx context.Context, user id.UserID) (Identity, error) {
	return c.Resolve(ctx, user)
}

// Forget drops user from this process only. Every replica calls it when an
// identity change is broadcast.
func (c *CachedDirectory) Forget(_ context.Context, user id.UserID) error {
	c.local.Remove(user)
	c.group.Forget(user.String())
	return nil
}

// Invalidate drops user from both tiers.
func (c *CachedDirectory) Invalidate(ctx context.Context, user id.UserID) error {
	_ = c.Forget(ctx, user)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, identityKeyPrefix+user.String()).Err()
}

func (c *CachedDirectory) fromRedis(ctx context.Context, user id.UserID) (Identity, bool) {
	if c.redis == nil {
		return Identity{}, false
	}
	raw, err := c.redis.Get(ctx, identityKeyPrefix+user.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "identity cache read failed", "user_id", user, "error", err)
		}
		return Identity{}, false
	}
	var u Identity
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.WarnContext(ctx, "identity cache entry corrupt", "user_id", user, "error", err)
		return Identity{}, false
	}
	return u, true
}

func (c *CachedDirectory) toRedis(ctx context.Context, u Identity) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, identityKeyPrefix+u.UserID.String(), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "identity cache write failed", "user_id", u.UserID, "error", err)
	}
}
