package places

import (
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
)

// Bounds are the accepted radius range and the radius used when none is given.
type Bounds struct {
	Min     int
	Max     int
	Default int
}

func DefaultBounds() Bounds {
	return Bounds{Min: 100, Max: 50000, Default: 5000}
}

type ProximityQuery struct {
	Center          model.Coordinates
	RadiusM         int
	Category        *model.Category
	RadiusDefaulted bool
}

// CategoryLabel is the echoed category, "all" when unfiltered.
func (q ProximityQuery) CategoryLabel() string {
	if q.Category == nil {
		return "all"
	}
	return string(*q.Category)
}

// ParseQuery turns raw request values into a well-formed query. It has no
// side effects and must run before any spatial lookup.
func ParseQuery(rawLat, rawLng, rawRadius, rawCategory string, b Bounds) (ProximityQuery, error) {
	lat, err := parseCoord("lat", rawLat, 90)
	if err != nil {
		return ProximityQuery{}, err
	}
	lng, err := parseCoord("lng", rawLng, 180)
	if err != nil {
		return ProximityQuery{}, err
	}

	radius, defaulted, err := parseRadius(rawRadius, b)
	if err != nil {
		return ProximityQuery{}, err
	}

	cat, err := ParseCategory(rawCategory)
	if err != nil {
		return ProximityQuery{}, err
	}

	return ProximityQuery{
		Center:          model.Coordinates{Lat: lat, Lng: lng},
		RadiusM:         radius,
		Category:        cat,
		RadiusDefaulted: defaulted,
	}, nil
}

func parseCoord(field, raw string, limit float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, ErrInvalidCoordinate, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field, ErrInvalidCoordinate, "must be a number, got %q", raw)
	}
	if v < -limit || v > limit {
		return 0, invalid(field, ErrInvalidCoordinate, "must be in [-%g,%g], got %g", limit, limit, v)
	}
	return v, nil
}

func parseRadius(raw string, b Bounds) (int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return b.Default, true, nil
	}
	r, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, invalid("radius", ErrInvalidRadius, "must be an integer number of meters, got %q", raw)
	}
	if r < b.Min || r > b.Max {
		return 0, false, invalid("radius", ErrInvalidRadius, "must be in [%d,%d], got %d", b.Min, b.Max, r)
	}
	return r, false, nil
}

// ParseCategory returns nil for an empty value or "all".
func ParseCategory(raw string) (*model.Category, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return nil, nil
	}
	c := model.Category(raw)
	if !c.Valid() {
		return nil, invalid("category", ErrInvalidCategory, "must be one of %v, got %q", model.Categories(), raw)
	}
	return &c, nil
}

// ParseListFilter validates the listing query parameters.
func ParseListFilter(rawCategory, rawVerified, rawCity string) (model.ListFilter, error) {
	cat, err := ParseCategory(rawCategory)
	if err != nil {
		return model.ListFilter{}, err
	}
	f := model.ListFilter{Category: cat, City: strings.TrimSpace(rawCity)}

	if v := strings.TrimSpace(rawVerified); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return model.ListFilter{}, invalid("verified", ErrInvalidFilter, "must be true or false, got %q", v)
		}
		f.Verified = &b
	}
	return f, nil
}

// ValidatePlace checks the invariants every stored place must satisfy.
func ValidatePlace(p model.Place) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", ErrInvalidPlace, "is required")
	}
	if !p.Category.Valid() {
		return invalid("category", ErrInvalidCategory, "must be one of %v, got %q", model.Categories(), p.Category)
	}
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return invalid("lat", ErrInvalidCoordinate, "must be in [-90,90], got %g", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return invalid("lng", ErrInvalidCoordinate, "must be in [-180,180], got %g", p.Lng)
	}
	return nil
}
