package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/placefinder/internal/auth"
	"github.com/mohammed-shakir/placefinder/internal/cache/redisstore"
	"github.com/mohammed-shakir/placefinder/internal/cache/resultcache"
	"github.com/mohammed-shakir/placefinder/internal/core/health"
	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/places"
	"github.com/mohammed-shakir/placefinder/internal/spatial"
	"github.com/mohammed-shakir/placefinder/internal/store"
)

var center = model.Coordinates{Lat: 41.7151, Lng: 44.8271}

type stack struct {
	srv   *httptest.Server
	store *store.Store
	token string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "places.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	svc := places.NewService(quiet, st,
		places.WithCache(resultcache.New(rc, quiet, time.Minute, time.Second)))

	j, err := auth.NewJWT("0123456789abcdef-server", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := j.Issue("ops")
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandler(Deps{
		Logger: quiet,
		Places: svc,
		Auth:   j,
		Ready:  map[string]health.Check{"db": st.Ping, "redis": rc.Ping},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, store: st, token: tok}
}

func (s *stack) do(t *testing.T, method, path string, body any, authed bool) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func (s *stack) create(t *testing.T, name string, cat model.Category, pos model.Coordinates) model.Place {
	t.Helper()
	resp, b := s.do(t, http.MethodPost, "/api/admin/places",
		map[string]any{"name": name, "category": string(cat), "lat": pos.Lat, "lng": pos.Lng, "city": "Tbilisi"}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create %s: %d %s", name, resp.StatusCode, b)
	}
	var p model.Place
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func nearbyPath(pos model.Coordinates, extra string) string {
	return fmt.Sprintf("/api/places/nearby?lat=%v&lng=%v%s", pos.Lat, pos.Lng, extra)
}

func TestNearby_RankedAndLabelled(t *testing.T) {
	s := newStack(t)
	far := s.create(t, "Far", model.CategoryRestaurant, spatial.Destination(center, 90, 1200))
	near := s.create(t, "Near", model.CategoryRestaurant, spatial.Destination(center, 10, 850))
	s.create(t, "Mosque", model.CategoryMosque, spatial.Destination(center, 180, 400))

	resp, b := s.do(t, http.MethodGet, nearbyPath(center, "&radius=5000&category=restaurant"), nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	var res places.ProximityResult
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.Category != "restaurant" || res.Radius != 5000 || res.RadiusDefaulted {
		t.Fatalf("echo = %+v", res)
	}
	if res.Places[0].ID != near.ID || res.Places[1].ID != far.ID {
		t.Fatalf("order = %d,%d", res.Places[0].ID, res.Places[1].ID)
	}
	if res.Places[0].DistanceLabel != "850 m" || res.Places[1].DistanceLabel != "1.2 km" {
		t.Fatalf("labels = %q %q", res.Places[0].DistanceLabel, res.Places[1].DistanceLabel)
	}
}

func TestNearby_DefaultRadiusAndGeoJSON(t *testing.T) {
	s := newStack(t)
	p := s.create(t, "Only", model.CategoryMosque, spatial.Destination(center, 45, 300))

	resp, b := s.do(t, http.MethodGet, nearbyPath(center, "&format=geojson"), nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type = %q", ct)
	}
	var fc struct {
		Type            string `json:"type"`
		Radius          int    `json:"radius"`
		RadiusDefaulted bool   `json:"radius_defaulted"`
		Category        string `json:"category"`
		Features        []struct {
			ID       float64 `json:"id"`
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || fc.Radius != 5000 || !fc.RadiusDefaulted || fc.Category != "all" {
		t.Fatalf("collection = %+v", fc)
	}
	if len(fc.Features) != 1 || int64(fc.Features[0].ID) != p.ID {
		t.Fatalf("features = %+v", fc.Features)
	}
	f := fc.Features[0]
	if f.Geometry.Type != "Point" || f.Geometry.Coordinates[0] != p.Lng || f.Geometry.Coordinates[1] != p.Lat {
		t.Fatalf("geometry = %+v", f.Geometry)
	}
	if f.Properties["distance"] != "300 m" {
		t.Fatalf("properties = %v", f.Properties)
	}
}

func TestNearby_ValidationErrors(t *testing.T) {
	s := newStack(t)
	cases := map[string]string{
		"/api/places/nearby?lng=44.8":                    "lat",
		"/api/places/nearby?lat=91&lng=44.8":             "lat",
		"/api/places/nearby?lat=41&lng=44&radius=99":     "radius",
		"/api/places/nearby?lat=41&lng=44&category=cafe": "category",
		"/api/places/nearby?lat=41&lng=44&format=kml":    "format",
	}
	for path, field := range cases {
		resp, b := s.do(t, http.MethodGet, path, nil, false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
		var body map[string]string
		if err := json.Unmarshal(b, &body); err != nil {
			t.Fatal(err)
		}
		if body["field"] != field || body["error"] == "" {
			t.Fatalf("%s: body = %v", path, body)
		}
	}
}

// A write through the admin API must be visible to the very next search,
// even though the earlier result was cached.
func TestAdminWrites_ReadYourWrites(t *testing.T) {
	s := newStack(t)
	p := s.create(t, "Mover", model.CategoryRestaurant, spatial.Destination(center, 0, 500))

	_, b := s.do(t, http.MethodGet, nearbyPath(center, "&radius=1000"), nil, false)
	if !strings.Contains(string(b), `"Mover"`) {
		t.Fatalf("place not found before move: %s", b)
	}

	moved := spatial.Destination(center, 0, 3000)
	resp, b := s.do(t, http.MethodPut, fmt.Sprintf("/api/admin/places/%d", p.ID),
		map[string]any{"name": "Mover", "category": "restaurant", "lat": moved.Lat, "lng": moved.Lng, "verified": true}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, b)
	}

	_, b = s.do(t, http.MethodGet, nearbyPath(center, "&radius=1000"), nil, false)
	var res places.ProximityResult
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatal(err)
	}
	if res.Count != 0 {
		t.Fatalf("stale cached result served after update: %s", b)
	}

	resp, _ = s.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/places/%d", p.ID), nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, b = s.do(t, http.MethodGet, fmt.Sprintf("/api/places/%d", p.ID), nil, false)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(b), "place not found") {
		t.Fatalf("get deleted: %d %s", resp.StatusCode, b)
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	s := newStack(t)
	resp, _ := s.do(t, http.MethodPost, "/api/admin/places",
		map[string]any{"name": "x", "category": "mosque", "lat": 1, "lng": 1}, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodGet, "/api/admin/stats", nil, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stats status %d", resp.StatusCode)
	}
}

func TestAdmin_CreateValidation(t *testing.T) {
	s := newStack(t)
	resp, b := s.do(t, http.MethodPost, "/api/admin/places", map[string]any{"name": "x", "category": "mosque", "lng": 1}, true)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(b), `"field":"lat"`) {
		t.Fatalf("missing lat: %d %s", resp.StatusCode, b)
	}
	resp, b = s.do(t, http.MethodPost, "/api/admin/places", map[string]any{"name": "", "category": "mosque", "lat": 1, "lng": 1}, true)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(b), `"field":"name"`) {
		t.Fatalf("empty name: %d %s", resp.StatusCode, b)
	}
	resp, _ = s.do(t, http.MethodPut, "/api/admin/places/abc", map[string]any{"name": "x", "category": "mosque", "lat": 1, "lng": 1}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodPut, "/api/admin/places/999", map[string]any{"name": "x", "category": "mosque", "lat": 1, "lng": 1}, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: %d", resp.StatusCode)
	}
}

func TestListingAndStats(t *testing.T) {
	s := newStack(t)
	s.create(t, "A", model.CategoryRestaurant, center)
	s.create(t, "B", model.CategoryMosque, center)

	resp, b := s.do(t, http.MethodGet, "/api/places?category=mosque", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, b)
	}
	var list struct {
		Count  int           `json:"count"`
		Places []model.Place `json:"places"`
	}
	if err := json.Unmarshal(b, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Places[0].Name != "B" || list.Places[0].DistanceMeters != nil {
		t.Fatalf("list = %s", b)
	}

	resp, b = s.do(t, http.MethodGet, "/api/places?verified=sometimes", nil, false)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(b), `"field":"verified"`) {
		t.Fatalf("bad filter: %d %s", resp.StatusCode, b)
	}

	resp, b = s.do(t, http.MethodGet, "/api/admin/stats", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", resp.StatusCode, b)
	}
	var st model.Stats
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.ByCategory[model.CategoryMosque] != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestProbes(t *testing.T) {
	s := newStack(t)
	resp, _ := s.do(t, http.MethodGet, "/healthz", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz %d", resp.StatusCode)
	}
	resp, b := s.do(t, http.MethodGet, "/readyz", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz %d %s", resp.StatusCode, b)
	}

	_ = s.store.Close()
	resp, _ = s.do(t, http.MethodGet, "/readyz", nil, false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz after db close %d", resp.StatusCode)
	}
}

func TestAdminRoutesAbsentWithoutAuthorizer(t *testing.T) {
	h := NewHandler(Deps{Places: nil})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
}
