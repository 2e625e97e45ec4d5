package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/core/observability"
)

// Match is one engine hit with its exact ground distance.
type Match struct {
	Place     model.Place
	DistanceM float64
}

// Engine finds places within a geodesic radius. Output order is unspecified
// and an empty result is not an error.
type Engine interface {
	FindWithinRadius(ctx context.Context, center model.Coordinates, radiusM float64, cat *model.Category) ([]Match, error)
}

// Store is the persisted place dataset behind the service.
type Store interface {
	Engine
	List(ctx context.Context, f model.ListFilter) ([]model.Place, error)
	Get(ctx context.Context, id int64) (model.Place, error)
	Create(ctx context.Context, p model.Place) (model.Place, error)
	Update(ctx context.Context, p model.Place) (model.Place, error)
	Delete(ctx context.Context, id int64) (model.Place, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// ResultCache holds sorted matches per query. Get returns a stamp naming the
// data version it looked under; Put must pass it back so results computed
// before a concurrent write are never stored as current. Implementations
// treat their own failures as misses.
type ResultCache interface {
	Get(ctx context.Context, q ProximityQuery) (matches []Match, stamp int64, ok bool)
	Put(ctx context.Context, q ProximityQuery, stamp int64, matches []Match)
	Invalidate(ctx context.Context) error
}

// ChangeNotifier is told about every committed write.
type ChangeNotifier interface {
	PlaceChanged(ctx context.Context, op string, p model.Place)
}

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type ProximityResult struct {
	Center          model.Coordinates `json:"center"`
	Radius          int               `json:"radius"`
	RadiusDefaulted bool              `json:"radius_defaulted"`
	Category        string            `json:"category"`
	Count           int               `json:"count"`
	Places          []model.Place     `json:"places"`
}

type Option func(*Service)

func WithCache(c ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithNotifier(n ChangeNotifier) Option {
	return func(s *Service) { s.notify = n }
}

func WithBounds(b Bounds) Option {
	return func(s *Service) { s.bounds = b }
}

func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

type Service struct {
	logger  *slog.Logger
	store   Store
	cache   ResultCache
	notify  ChangeNotifier
	bounds  Bounds
	timeout time.Duration
}

func NewService(logger *slog.Logger, store Store, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger:  logger,
		store:   store,
		bounds:  DefaultBounds(),
		timeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Bounds() Bounds { return s.bounds }

// Search validates the raw inputs, runs the spatial lookup and returns the
// matches nearest-first with distance labels attached.
func (s *Service) Search(ctx context.Context, rawLat, rawLng, rawRadius, rawCategory string) (*ProximityResult, error) {
	q, err := ParseQuery(rawLat, rawLng, rawRadius, rawCategory, s.bounds)
	if err != nil {
		return nil, err
	}
	return s.SearchQuery(ctx, q)
}

// SearchQuery runs an already validated query.
func (s *Service) SearchQuery(ctx context.Context, q ProximityQuery) (*ProximityResult, error) {
	start := time.Now()

	matches, stamp, hit := s.cachedMatches(ctx, q)
	if !hit {
		qctx, cancel := s.withTimeout(ctx)
		defer cancel()

		found, err := s.store.FindWithinRadius(qctx, q.Center, float64(q.RadiusM), q.Category)
		if err != nil {
			observability.IncStoreError("find_within_radius")
			s.logger.ErrorContext(ctx, "nearby search failed",
				"lat", q.Center.Lat,
				"lng", q.Center.Lng,
				"radius", q.RadiusM,
				"category", q.CategoryLabel(),
				"err", err)
			return nil, &TransientError{Op: "find_within_radius", Err: err}
		}
		SortMatches(found)
		matches = found
		if s.cache != nil {
			s.cache.Put(ctx, q, stamp, matches)
		}
	}

	out := make([]model.Place, 0, len(matches))
	for _, m := range matches {
		p := m.Place
		d := m.DistanceM
		p.DistanceMeters = &d
		p.DistanceLabel = FormatDistance(d)
		out = append(out, p)
	}

	observability.ObserveSearch(q.CategoryLabel(), len(out), time.Since(start).Seconds())
	return &ProximityResult{
		Center:          q.Center,
		Radius:          q.RadiusM,
		RadiusDefaulted: q.RadiusDefaulted,
		Category:        q.CategoryLabel(),
		Count:           len(out),
		Places:          out,
	}, nil
}

func (s *Service) cachedMatches(ctx context.Context, q ProximityQuery) ([]Match, int64, bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	return s.cache.Get(ctx, q)
}

// SortMatches orders ascending by distance, ties by place id.
func SortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].DistanceM != ms[j].DistanceM {
			return ms[i].DistanceM < ms[j].DistanceM
		}
		return ms[i].Place.ID < ms[j].Place.ID
	})
}

// List returns places without a spatial center; no distance is computed.
func (s *Service) List(ctx context.Context, rawCategory, rawVerified, rawCity string) ([]model.Place, error) {
	f, err := ParseListFilter(rawCategory, rawVerified, rawCity)
	if err != nil {
		return nil, err
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.store.List(qctx, f)
	if err != nil {
		return nil, s.storageErr(ctx, "list", err, "category", rawCategory, "verified", rawVerified, "city", rawCity)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (model.Place, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.store.Get(qctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Place{}, err
		}
		return model.Place{}, s.storageErr(ctx, "get", err, "id", id)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, p model.Place) (model.Place, error) {
	if err := ValidatePlace(p); err != nil {
		return model.Place{}, err
	}
	created, err := s.store.Create(ctx, p)
	if err != nil {
		return model.Place{}, s.storageErr(ctx, "create", err, "name", p.Name)
	}
	s.afterWrite(ctx, OpInsert, created)
	return created, nil
}

func (s *Service) Update(ctx context.Context, p model.Place) (model.Place, error) {
	if err := ValidatePlace(p); err != nil {
		return model.Place{}, err
	}
	updated, err := s.store.Update(ctx, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Place{}, err
		}
		return model.Place{}, s.storageErr(ctx, "update", err, "id", p.ID)
	}
	s.afterWrite(ctx, OpUpdate, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return s.storageErr(ctx, "delete", err, "id", id)
	}
	s.afterWrite(ctx, OpDelete, deleted)
	return nil
}

func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	st, err := s.store.Stats(qctx)
	if err != nil {
		return model.Stats{}, s.storageErr(ctx, "stats", err)
	}
	return st, nil
}

// cached results are dropped before the write returns so a following read
// never sees the old position
func (s *Service) afterWrite(ctx context.Context, op string, p model.Place) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "result cache invalidation failed", "op", op, "id", p.ID, "err", err)
		}
	}
	if s.notify != nil {
		s.notify.PlaceChanged(ctx, op, p)
	}
	s.logger.InfoContext(ctx, "place written", "op", op, "id", p.ID, "category", string(p.Category))
}

func (s *Service) storageErr(ctx context.Context, op string, err error, attrs ...any) error {
	observability.IncStoreError(op)
	args := append([]any{"op", op, "err", err}, attrs...)
	s.logger.ErrorContext(ctx, "storage failure", args...)
	return &TransientError{Op: op, Err: fmt.Errorf("%s: %w", op, err)}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
