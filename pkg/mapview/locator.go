package mapview

import (
	"context"
	"errors"
)

// Geolocator asks the device for its position. Every call must obtain a
// fresh fix; implementations must not answer from a cached position.
// Failures should wrap ErrLocationDenied, ErrLocationUnavailable or
// ErrLocationTimedOut.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (Coordinates, error)
}

// GeolocatorFunc adapts a function to Geolocator.
type GeolocatorFunc func(ctx context.Context) (Coordinates, error)

func (f GeolocatorFunc) CurrentPosition(ctx context.Context) (Coordinates, error) { return f(ctx) }

// Fixed always reports the same position, for hosts without a device
// location source.
func Fixed(at Coordinates) Geolocator {
	return GeolocatorFunc(func(context.Context) (Coordinates, error) { return at, nil })
}

// Locate starts a location request with its own timeout. Earlier requests
// are not cancelled. On success the map recenters on the fix and searches
// around it; on failure the error kind is recorded in ViewState.LocationErr
// and the center-less listing is loaded instead. The returned channel is
// closed once the follow-up query resolves, or once the fix is discarded
// because a newer request already resolved.
func (c *Controller) Locate() <-chan struct{} {
	done := make(chan struct{})
	if !c.do(func() { c.startLocate(done) }) {
		close(done)
	}
	return done
}

func (c *Controller) startLocate(done chan struct{}) {
	c.locateSeq++
	seq := c.locateSeq
	c.st.Location = Locating
	c.st.LocationErr = nil
	c.changed()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.locateTimeout)
		at, err := c.geo.CurrentPosition(ctx)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && c.ctx.Err() == nil {
			err = ErrLocationTimedOut
		}
		cancel()

		if !c.post(func() { c.resolveLocate(seq, at, err, done) }) {
			closeDone(done)
		}
	}()
}

func (c *Controller) resolveLocate(seq uint64, at Coordinates, err error, done chan struct{}) {
	if seq <= c.locateDone {
		c.logger.Debug("discarding superseded location", "seq", seq, "applied", c.locateDone)
		closeDone(done)
		return
	}
	c.locateDone = seq

	if err != nil {
		state, kind := failureState(err)
		c.st.Location = state
		c.st.LocationErr = kind
		c.logger.Info("location failed, loading listing", "state", state.String(), "err", err)
		c.changed()
		c.startListing(done)
		return
	}

	loc := at
	c.st.UserLocation = &loc
	c.st.Location = Located
	c.st.LocationErr = nil
	c.st.Center = at
	c.changed()
	c.startSearch(at, done)
}
