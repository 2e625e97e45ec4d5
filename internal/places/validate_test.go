package places

import (
	"errors"
	"testing"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
)

func TestParseQuery_Valid(t *testing.T) {
	q, err := ParseQuery("41.7151", "44.8271", "5000", "restaurant", DefaultBounds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if q.Center.Lat != 41.7151 || q.Center.Lng != 44.8271 {
		t.Fatalf("center = %+v", q.Center)
	}
	if q.RadiusM != 5000 || q.RadiusDefaulted {
		t.Fatalf("radius = %d defaulted=%v", q.RadiusM, q.RadiusDefaulted)
	}
	if q.Category == nil || *q.Category != model.CategoryRestaurant {
		t.Fatalf("category = %v", q.Category)
	}
}

func TestParseQuery_DefaultRadiusIsSignalled(t *testing.T) {
	q, err := ParseQuery("0", "0", "", "", DefaultBounds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if q.RadiusM != 5000 || !q.RadiusDefaulted {
		t.Fatalf("want defaulted 5000, got %d defaulted=%v", q.RadiusM, q.RadiusDefaulted)
	}
	if q.CategoryLabel() != "all" {
		t.Fatalf("label = %q", q.CategoryLabel())
	}
}

func TestParseQuery_Errors(t *testing.T) {
	b := DefaultBounds()
	cases := []struct {
		name               string
		lat, lng, rad, cat string
		wantKind           error
		wantField          string
	}{
		{"missing lat", "", "1", "", "", ErrInvalidCoordinate, "lat"},
		{"lat text", "abc", "1", "", "", ErrInvalidCoordinate, "lat"},
		{"lat nan", "NaN", "1", "", "", ErrInvalidCoordinate, "lat"},
		{"lat high", "90.0001", "1", "", "", ErrInvalidCoordinate, "lat"},
		{"lng low", "0", "-180.5", "", "", ErrInvalidCoordinate, "lng"},
		{"lng inf", "0", "Inf", "", "", ErrInvalidCoordinate, "lng"},
		{"radius below floor", "0", "0", "99", "", ErrInvalidRadius, "radius"},
		{"radius above ceiling", "0", "0", "50001", "", ErrInvalidRadius, "radius"},
		{"radius fractional", "0", "0", "150.5", "", ErrInvalidRadius, "radius"},
		{"radius text", "0", "0", "far", "", ErrInvalidRadius, "radius"},
		{"unknown category", "0", "0", "", "church", ErrInvalidCategory, "category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseQuery(tc.lat, tc.lng, tc.rad, tc.cat, b)
			if !errors.Is(err, tc.wantKind) {
				t.Fatalf("want %v, got %v", tc.wantKind, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.wantField {
				t.Fatalf("want field %q, got %v", tc.wantField, err)
			}
		})
	}
}

func TestParseQuery_BoundsInclusive(t *testing.T) {
	for _, r := range []string{"100", "50000"} {
		if _, err := ParseQuery("0", "0", r, "", DefaultBounds()); err != nil {
			t.Fatalf("radius %s rejected: %v", r, err)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, raw := range []string{"", "all", " ALL "} {
		c, err := ParseCategory(raw)
		if err != nil || c != nil {
			t.Fatalf("%q: want nil,nil got %v,%v", raw, c, err)
		}
	}
	c, err := ParseCategory("Mosque")
	if err != nil || c == nil || *c != model.CategoryMosque {
		t.Fatalf("Mosque: got %v,%v", c, err)
	}
}

func TestParseListFilter(t *testing.T) {
	f, err := ParseListFilter("mosque", "true", " Tbilisi ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.Category == nil || *f.Category != model.CategoryMosque {
		t.Fatalf("category = %v", f.Category)
	}
	if f.Verified == nil || !*f.Verified {
		t.Fatalf("verified = %v", f.Verified)
	}
	if f.City != "Tbilisi" {
		t.Fatalf("city = %q", f.City)
	}

	if _, err := ParseListFilter("", "maybe", ""); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("want ErrInvalidFilter, got %v", err)
	}
}

func TestValidatePlace(t *testing.T) {
	ok := model.Place{Name: "Shemoikhede Genatsvale", Category: model.CategoryRestaurant, Lat: 41.69, Lng: 44.80}
	if err := ValidatePlace(ok); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	noName := ok
	noName.Name = "  "
	if err := ValidatePlace(noName); !errors.Is(err, ErrInvalidPlace) {
		t.Fatalf("want ErrInvalidPlace, got %v", err)
	}

	badCat := ok
	badCat.Category = "cafe"
	if err := ValidatePlace(badCat); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("want ErrInvalidCategory, got %v", err)
	}

	badLat := ok
	badLat.Lat = 91
	if err := ValidatePlace(badLat); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("want ErrInvalidCoordinate, got %v", err)
	}
}

func TestFormatDistance(t *testing.T) {
	cases := map[float64]string{
		0:       "0 m",
		850:     "850 m",
		849.6:   "850 m",
		999.4:   "999 m",
		1000:    "1.0 km",
		1200:    "1.2 km",
		12345.6: "12.3 km",
		50000:   "50.0 km",
	}
	for in, want := range cases {
		if got := FormatDistance(in); got != want {
			t.Errorf("FormatDistance(%v) = %q, want %q", in, got, want)
		}
	}
}
