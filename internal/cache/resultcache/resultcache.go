// Package resultcache stores sorted nearby-search matches in Redis under
// generation-stamped keys. A place write bumps the generation, which retires
// every earlier entry at once; entries also expire after a TTL.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/placefinder/internal/cache/keys"
	"github.com/mohammed-shakir/placefinder/internal/cache/redisstore"
	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/core/observability"
	"github.com/mohammed-shakir/placefinder/internal/places"
)

// stamp used when the generation could not be read; Put ignores it
const noStamp = -1

// Store is the subset of redisstore.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

var _ Store = (*redisstore.Client)(nil)

type entry struct {
	Place     model.Place `json:"place"`
	DistanceM float64     `json:"distance_m"`
}

type Cache struct {
	cli       Store
	logger    *slog.Logger
	ttl       time.Duration
	opTimeout time.Duration

	// failed invalidations since the last successful bump; while non-zero
	// entries under the current generation may predate a write
	pending atomic.Int64
}

var _ places.ResultCache = (*Cache)(nil)

func New(cli Store, logger *slog.Logger, ttl, opTimeout time.Duration) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if opTimeout <= 0 {
		opTimeout = 50 * time.Millisecond
	}
	return &Cache{cli: cli, logger: logger, ttl: ttl, opTimeout: opTimeout}
}

func (c *Cache) Get(ctx context.Context, q places.ProximityQuery) ([]places.Match, int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if c.pending.Load() > 0 {
		if err := c.bump(ctx); err != nil || c.pending.Load() > 0 {
			observability.IncCacheMiss()
			return nil, noStamp, false
		}
		c.logger.InfoContext(ctx, "result cache generation retired, serving again")
	}

	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.DebugContext(ctx, "result cache generation unavailable", "err", err)
		observability.IncCacheMiss()
		return nil, noStamp, false
	}

	raw, err := c.cli.Get(ctx, key(gen, q))
	if err != nil {
		if !errors.Is(err, redisstore.ErrMiss) {
			c.logger.DebugContext(ctx, "result cache get failed", "err", err)
		}
		observability.IncCacheMiss()
		return nil, gen, false
	}

	var es []entry
	if err := json.Unmarshal(raw, &es); err != nil {
		c.logger.WarnContext(ctx, "result cache entry undecodable", "err", err)
		observability.IncCacheMiss()
		return nil, gen, false
	}
	out := make([]places.Match, len(es))
	for i, e := range es {
		out[i] = places.Match{Place: e.Place, DistanceM: e.DistanceM}
	}
	observability.IncCacheHit()
	return out, gen, true
}

func (c *Cache) Put(ctx context.Context, q places.ProximityQuery, stamp int64, matches []places.Match) {
	if stamp == noStamp || c.pending.Load() > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	es := make([]entry, len(matches))
	for i, m := range matches {
		p := m.Place
		p.DistanceMeters, p.DistanceLabel = nil, ""
		es[i] = entry{Place: p, DistanceM: m.DistanceM}
	}
	payload, err := json.Marshal(es)
	if err != nil {
		c.logger.WarnContext(ctx, "result cache encode failed", "err", err)
		return
	}
	if err := c.cli.Set(ctx, key(stamp, q), payload, c.ttl); err != nil {
		c.logger.DebugContext(ctx, "result cache set failed", "err", err)
	}
}

// Invalidate retires every cached result. When the generation cannot be
// bumped the cache stops serving until a later bump succeeds.
func (c *Cache) Invalidate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.bump(ctx); err != nil {
		if c.pending.Add(1) == 1 {
			c.logger.WarnContext(ctx, "result cache bypassed until invalidation succeeds", "err", err)
		}
		return err
	}
	return nil
}

// bump only clears failures recorded before it started; one landing while
// the increment is in flight keeps the cache bypassed.
func (c *Cache) bump(ctx context.Context) error {
	seen := c.pending.Load()
	if _, err := c.cli.Incr(ctx, keys.GenerationKey()); err != nil {
		return err
	}
	if seen > 0 {
		c.pending.CompareAndSwap(seen, 0)
	}
	return nil
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	raw, err := c.cli.Get(ctx, keys.GenerationKey())
	if errors.Is(err, redisstore.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func key(gen int64, q places.ProximityQuery) string {
	return keys.NearbyKey(gen, q.Center.Lat, q.Center.Lng, q.RadiusM, q.CategoryLabel())
}
