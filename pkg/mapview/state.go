// Package mapview is the client side of place discovery: it acquires the
// user's position, runs searches against the API and keeps the map view
// (center, markers, selection, filters) consistent with the latest result.
package mapview

import (
	"errors"
	"fmt"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) String() string { return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng) }

// Place is a marker as the API returns it. DistanceM and DistanceLabel are
// only set on proximity results.
type Place struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	City          string   `json:"city,omitempty"`
	Address       string   `json:"address,omitempty"`
	Verified      bool     `json:"verified"`
	DistanceM     *float64 `json:"distance_m,omitempty"`
	DistanceLabel string   `json:"distance,omitempty"`
}

func (p Place) Position() Coordinates { return Coordinates{Lat: p.Lat, Lng: p.Lng} }

// Filters are the active search filters. An empty Category means all
// categories; a zero RadiusM lets the server apply its default.
type Filters struct {
	Category string
	RadiusM  int
}

type LocState int

const (
	Idle LocState = iota
	Locating
	Located
	Denied
	Unavailable
	TimedOut
)

func (s LocState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case Located:
		return "located"
	case Denied:
		return "denied"
	case Unavailable:
		return "unavailable"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("LocState(%d)", int(s))
	}
}

var (
	ErrLocationDenied      = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrLocationTimedOut    = errors.New("location request timed out")
)

// failureState maps a geolocator error onto the terminal state it produces.
// Anything unrecognised counts as unavailable.
func failureState(err error) (LocState, error) {
	switch {
	case errors.Is(err, ErrLocationDenied):
		return Denied, ErrLocationDenied
	case errors.Is(err, ErrLocationTimedOut):
		return TimedOut, ErrLocationTimedOut
	default:
		return Unavailable, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
}

// ViewState is what the map currently shows. Snapshots are deep copies.
type ViewState struct {
	Center       Coordinates
	UserLocation *Coordinates
	Places       []Place
	Selected     *Place
	Filters      Filters
	Location     LocState
	LocationErr  error
	SearchErr    error
}

func (v ViewState) clone() ViewState {
	out := v
	if v.UserLocation != nil {
		u := *v.UserLocation
		out.UserLocation = &u
	}
	if v.Selected != nil {
		s := *v.Selected
		out.Selected = &s
	}
	out.Places = append([]Place(nil), v.Places...)
	return out
}
