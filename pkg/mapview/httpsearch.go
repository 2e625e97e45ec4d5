package mapview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// APIError is a non-2xx answer from the places API.
type APIError struct {
	Status int    `json:"-"`
	Msg    string `json:"error"`
	Field  string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api %d (%s): %s", e.Status, e.Field, e.Msg)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Msg)
}

// HTTPSearcher calls the nearby and listing endpoints.
type HTTPSearcher struct {
	base   string
	client *http.Client
}

func NewHTTPSearcher(baseURL string, client *http.Client) *HTTPSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSearcher{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSearcher) Nearby(ctx context.Context, center Coordinates, f Filters) ([]Place, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	if f.RadiusM > 0 {
		q.Set("radius", strconv.Itoa(f.RadiusM))
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	return s.get(ctx, "/api/places/nearby", q)
}

func (s *HTTPSearcher) List(ctx context.Context, f Filters) ([]Place, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	return s.get(ctx, "/api/places", q)
}

func (s *HTTPSearcher) get(ctx context.Context, path string, q url.Values) ([]Place, error) {
	u := s.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	var out struct {
		Places []Place `json:"places"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.Places == nil {
		out.Places = []Place{}
	}
	return out.Places, nil
}
