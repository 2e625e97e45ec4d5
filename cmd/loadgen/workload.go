package main

import (
	"math"
	"math/rand"
	"net/url"
	"strconv"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/spatial"
)

type search struct {
	At       model.Coordinates
	RadiusM  int
	Category string
}

func (s search) values() url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(s.At.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(s.At.Lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(s.RadiusM))
	if s.Category != "" {
		q.Set("category", s.Category)
	}
	return q
}

// makeSearches builds the workload pool. The first quarter (at least 8) are
// hot points close to the center; the rest are spread uniformly by area out
// to spreadM. Zipf sampling then favours the low indexes.
func makeSearches(center model.Coordinates, spreadM float64, radii []int, count int, r *rand.Rand) []search {
	if count <= 0 || len(radii) == 0 {
		return nil
	}
	cats := []string{"", string(model.CategoryRestaurant), string(model.CategoryMosque)}
	hot := min(count, int(math.Max(8, float64(count/4))))

	out := make([]search, 0, count)
	for i := range count {
		d := math.Sqrt(r.Float64()) * spreadM
		if i < hot {
			d = r.Float64() * math.Min(1500, spreadM)
		}
		out = append(out, search{
			At:       spatial.Destination(center, r.Float64()*360, d),
			RadiusM:  radii[r.Intn(len(radii))],
			Category: cats[r.Intn(len(cats))],
		})
	}
	return out
}
