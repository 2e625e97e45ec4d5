package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/places"
)

// PlaceService is the query and write surface the handlers call.
type PlaceService interface {
	Search(ctx context.Context, rawLat, rawLng, rawRadius, rawCategory string) (*places.ProximityResult, error)
	List(ctx context.Context, rawCategory, rawVerified, rawCity string) ([]model.Place, error)
	Get(ctx context.Context, id int64) (model.Place, error)
	Create(ctx context.Context, p model.Place) (model.Place, error)
	Update(ctx context.Context, p model.Place) (model.Place, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (model.Stats, error)
}

var _ PlaceService = (*places.Service)(nil)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type listBody struct {
	Count  int           `json:"count"`
	Places []model.Place `json:"places"`
}

// HandleNearby serves ranked proximity results as JSON or, with
// format=geojson, as a FeatureCollection.
func HandleNearby(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := strings.ToLower(strings.TrimSpace(q.Get("format")))
		if format != "" && format != "json" && format != "geojson" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "format must be json or geojson", Field: "format"})
			return
		}

		res, err := svc.Search(r.Context(), q.Get("lat"), q.Get("lng"), q.Get("radius"), q.Get("category"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		if format == "geojson" {
			writeGeoJSON(w, logger, res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func HandleList(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ps, err := svc.List(r.Context(), q.Get("category"), q.Get("verified"), q.Get("city"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody{Count: len(ps), Places: ps})
	}
}

func HandleGet(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := placeID(w, r)
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func HandleCreate(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := decodePlace(w, r)
		if !ok {
			return
		}
		created, err := svc.Create(r.Context(), p)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		w.Header().Set("Location", "/api/places/"+strconv.FormatInt(created.ID, 10))
		writeJSON(w, http.StatusCreated, created)
	}
}

func HandleUpdate(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := placeID(w, r)
		if !ok {
			return
		}
		p, ok := decodePlace(w, r)
		if !ok {
			return
		}
		p.ID = id
		updated, err := svc.Update(r.Context(), p)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func HandleDelete(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := placeID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleStats(logger *slog.Logger, svc PlaceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// placeInput is the admin write body. Coordinates are pointers so a missing
// value is rejected instead of silently becoming 0.
type placeInput struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	City        string   `json:"city"`
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Phone       string   `json:"phone"`
	Website     string   `json:"website"`
	Verified    bool     `json:"verified"`
}

const maxBody = 64 << 10

func decodePlace(w http.ResponseWriter, r *http.Request) (model.Place, bool) {
	var in placeInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return model.Place{}, false
	}
	if in.Lat == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lat: is required", Field: "lat"})
		return model.Place{}, false
	}
	if in.Lng == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lng: is required", Field: "lng"})
		return model.Place{}, false
	}
	return model.Place{
		Name:        strings.TrimSpace(in.Name),
		Category:    model.Category(strings.ToLower(strings.TrimSpace(in.Category))),
		Lat:         *in.Lat,
		Lng:         *in.Lng,
		City:        strings.TrimSpace(in.City),
		Address:     strings.TrimSpace(in.Address),
		Description: in.Description,
		Phone:       strings.TrimSpace(in.Phone),
		Website:     strings.TrimSpace(in.Website),
		Verified:    in.Verified,
	}, true
}

func placeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id must be a positive integer", Field: "id"})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors to status codes. Storage details never reach
// the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *places.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, places.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: places.ErrNotFound.Error()})
	default:
		if !places.IsTransient(err) {
			logger.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
