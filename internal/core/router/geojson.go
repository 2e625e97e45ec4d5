package router

import (
	"log/slog"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/placefinder/internal/places"
)

// FeatureCollection renders proximity results as point features in result
// order. The query echo travels as foreign members of the collection.
func FeatureCollection(res *places.ProximityResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range res.Places {
		f := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
		f.ID = p.ID
		f.Properties["name"] = p.Name
		f.Properties["category"] = string(p.Category)
		f.Properties["verified"] = p.Verified
		if p.City != "" {
			f.Properties["city"] = p.City
		}
		if p.Address != "" {
			f.Properties["address"] = p.Address
		}
		if p.DistanceMeters != nil {
			f.Properties["distance_m"] = *p.DistanceMeters
			f.Properties["distance"] = p.DistanceLabel
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"center":           res.Center,
		"radius":           res.Radius,
		"radius_defaulted": res.RadiusDefaulted,
		"category":         res.Category,
		"count":            res.Count,
	}
	return fc
}

func writeGeoJSON(w http.ResponseWriter, logger *slog.Logger, res *places.ProximityResult) {
	b, err := FeatureCollection(res).MarshalJSON()
	if err != nil {
		logger.Error("geojson encode failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
