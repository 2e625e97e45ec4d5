package mapview

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Searcher runs queries against the places API.
type Searcher interface {
	Nearby(ctx context.Context, center Coordinates, f Filters) ([]Place, error)
	// List returns places without a center, filtered by category only.
	List(ctx context.Context, f Filters) ([]Place, error)
}

// Tbilisi old town
var DefaultCenter = Coordinates{Lat: 41.7151, Lng: 44.8271}

const DefaultLocateTimeout = 10 * time.Second

type Option func(*Controller)

func WithDefaultCenter(c Coordinates) Option {
	return func(ctl *Controller) { ctl.defaultCenter = c }
}

func WithFilters(f Filters) Option {
	return func(ctl *Controller) { ctl.st.Filters = f }
}

func WithLocateTimeout(d time.Duration) Option {
	return func(ctl *Controller) { ctl.locateTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithObserver registers fn to receive a snapshot after every change. It runs
// on the controller goroutine and must not call back into the controller.
func WithObserver(fn func(ViewState)) Option {
	return func(ctl *Controller) { ctl.observer = fn }
}

// Controller owns the ViewState. Every read and write of it happens on one
// goroutine; searches and location requests run elsewhere and post their
// results back. A result is applied only when no request issued after it
// has already been applied.
type Controller struct {
	search        Searcher
	geo           Geolocator
	logger        *slog.Logger
	observer      func(ViewState)
	defaultCenter Coordinates
	locateTimeout time.Duration

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// loop-owned
	st         ViewState
	querySeq   uint64
	queryDone  uint64
	locateSeq  uint64
	locateDone uint64
}

func New(search Searcher, geo Geolocator, opts ...Option) *Controller {
	c := &Controller{
		search:        search,
		geo:           geo,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaultCenter: DefaultCenter,
		locateTimeout: DefaultLocateTimeout,
		ops:           make(chan func()),
	}
	for _, o := range opts {
		o(c)
	}
	c.st.Center = c.defaultCenter
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.loop()
	return c
}

// Close stops the loop and cancels in-flight requests.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.ops:
			fn()
		case <-c.ctx.Done():
			return
		}
	}
}

// do runs fn on the loop and waits for it. It reports false once the
// controller is closed.
func (c *Controller) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case c.ops <- func() { fn(); close(done) }:
	case <-c.ctx.Done():
		return false
	}
	<-done
	return true
}

// post hands a worker result to the loop; dropped after Close.
func (c *Controller) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) changed() {
	if c.observer != nil {
		c.observer(c.st.clone())
	}
}

func (c *Controller) Snapshot() ViewState {
	var out ViewState
	if !c.do(func() { out = c.st.clone() }) {
		return ViewState{}
	}
	return out
}

// SetResultSet replaces the markers. A selection whose place is no longer
// present is cleared.
func (c *Controller) SetResultSet(ps []Place) {
	c.do(func() { c.setResultSet(ps) })
}

func (c *Controller) setResultSet(ps []Place) {
	c.st.Places = append([]Place(nil), ps...)
	c.st.SearchErr = nil
	if c.st.Selected != nil {
		keep := false
		for _, p := range c.st.Places {
			if p.ID == c.st.Selected.ID {
				sel := p
				c.st.Selected = &sel
				keep = true
				break
			}
		}
		if !keep {
			c.st.Selected = nil
		}
	}
	c.changed()
}

// SelectPlace selects id and recenters on it. An id outside the current
// result set is ignored and false is returned.
func (c *Controller) SelectPlace(id int64) bool {
	var ok bool
	c.do(func() {
		for _, p := range c.st.Places {
			if p.ID == id {
				sel := p
				c.st.Selected = &sel
				c.st.Center = p.Position()
				ok = true
				c.changed()
				return
			}
		}
	})
	return ok
}

// SetCenter moves the viewport without searching.
func (c *Controller) SetCenter(at Coordinates) {
	c.do(func() {
		c.st.Center = at
		c.changed()
	})
}

// SetFilters stores f and searches around the user location, or the default
// center when it is unknown. The markers change only when that search
// resolves; the returned channel is closed at that point.
func (c *Controller) SetFilters(f Filters) <-chan struct{} {
	done := make(chan struct{})
	if !c.do(func() {
		c.st.Filters = f
		c.changed()
		c.startSearch(c.searchCenter(), done)
	}) {
		close(done)
	}
	return done
}

// Refresh repeats the search for the current filters.
func (c *Controller) Refresh() <-chan struct{} {
	done := make(chan struct{})
	if !c.do(func() { c.startSearch(c.searchCenter(), done) }) {
		close(done)
	}
	return done
}

func (c *Controller) searchCenter() Coordinates {
	if c.st.UserLocation != nil {
		return *c.st.UserLocation
	}
	return c.defaultCenter
}

// startSearch must run on the loop. A nil center means the center-less
// listing.
func (c *Controller) startSearch(center Coordinates, done chan struct{}) {
	c.startQuery(&center, done)
}

func (c *Controller) startListing(done chan struct{}) {
	c.startQuery(nil, done)
}

func (c *Controller) startQuery(center *Coordinates, done chan struct{}) {
	c.querySeq++
	seq := c.querySeq
	f := c.st.Filters

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var (
			ps  []Place
			err error
		)
		if center != nil {
			ps, err = c.search.Nearby(c.ctx, *center, f)
		} else {
			ps, err = c.search.List(c.ctx, Filters{Category: f.Category})
		}

		if !c.post(func() {
			defer closeDone(done)
			c.resolveQuery(seq, ps, err)
		}) {
			closeDone(done)
		}
	}()
}

func (c *Controller) resolveQuery(seq uint64, ps []Place, err error) {
	if seq <= c.queryDone {
		c.logger.Debug("discarding superseded result", "seq", seq, "applied", c.queryDone)
		return
	}
	if err != nil {
		c.logger.Warn("search failed", "seq", seq, "err", err)
		c.st.SearchErr = err
		c.changed()
		return
	}
	c.queryDone = seq
	c.setResultSet(ps)
}

func closeDone(ch chan struct{}) {
	if ch != nil {
		close(ch)
	}
}
