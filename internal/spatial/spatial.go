// Package spatial maps coordinates onto H3 cells and measures ground distance.
package spatial

import (
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
)

// indexed resolutions, finest first
const (
	ResFine   = 9
	ResMid    = 7
	ResCoarse = 5
)

var Resolutions = []int{ResFine, ResMid, ResCoarse}

// MaxRings bounds the grid disk size for every resolution except the coarsest.
const MaxRings = 12

// average hexagon edge length in meters (H3 resolution table)
var edgeLengthM = map[int]float64{
	ResCoarse: 9854.090990,
	ResMid:    1406.475763,
	ResFine:   200.786148,
}

// Coverage is the set of cells whose union contains every point within the
// requested radius of the center.
type Coverage struct {
	Res   int
	Rings int
	Cells model.Cells
}

// Column is the store column holding the cell key for res.
func Column(res int) (string, error) {
	switch res {
	case ResFine, ResMid, ResCoarse:
		return fmt.Sprintf("h3_r%d", res), nil
	default:
		return "", fmt.Errorf("resolution %d is not indexed", res)
	}
}

// KeysFor computes the secondary index keys for a position.
func KeysFor(c model.Coordinates) (model.CellKeys, error) {
	if !c.Valid() {
		return model.CellKeys{}, fmt.Errorf("coordinates out of range: %s", c)
	}
	ll := h3.LatLng{Lat: c.Lat, Lng: c.Lng}

	var keys model.CellKeys
	for _, res := range Resolutions {
		cell, err := h3.LatLngToCell(ll, res)
		if err != nil {
			return model.CellKeys{}, fmt.Errorf("h3 cell res=%d: %w", res, err)
		}
		switch res {
		case ResFine:
			keys.R9 = cell.String()
		case ResMid:
			keys.R7 = cell.String()
		case ResCoarse:
			keys.R5 = cell.String()
		}
	}
	return keys, nil
}

// Cover picks the finest indexed resolution whose disk stays within MaxRings
// and returns the sorted, de-duplicated cells of that disk.
func Cover(center model.Coordinates, radiusM float64) (Coverage, error) {
	if !center.Valid() {
		return Coverage{}, fmt.Errorf("coordinates out of range: %s", center)
	}
	if radiusM < 0 || math.IsNaN(radiusM) || math.IsInf(radiusM, 0) {
		return Coverage{}, fmt.Errorf("invalid radius %v", radiusM)
	}

	res := ResCoarse
	k := rings(ResCoarse, radiusM)
	for _, r := range Resolutions {
		if n := rings(r, radiusM); n <= MaxRings {
			res, k = r, n
			break
		}
	}

	origin, err := h3.LatLngToCell(h3.LatLng{Lat: center.Lat, Lng: center.Lng}, res)
	if err != nil {
		return Coverage{}, fmt.Errorf("h3 cell res=%d: %w", res, err)
	}
	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return Coverage{}, fmt.Errorf("h3 grid disk k=%d: %w", k, err)
	}

	seen := make(map[string]struct{}, len(disk))
	out := make([]string, 0, len(disk))
	for _, c := range disk {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return Coverage{Res: res, Rings: k, Cells: out}, nil
}

// rings returns how many grid rings around the center cell are needed so the
// disk contains the whole circle. Each ring advances at least 1.5 edge
// lengths; half of that is assumed to absorb cell size distortion, plus one
// ring for the center's offset inside its own cell.
func rings(res int, radiusM float64) int {
	step := 0.75 * edgeLengthM[res]
	return int(math.Ceil(radiusM/step)) + 1
}

// DistanceM is the great-circle distance in meters.
func DistanceM(a, b model.Coordinates) float64 {
	return h3.GreatCircleDistanceM(
		h3.LatLng{Lat: a.Lat, Lng: a.Lng},
		h3.LatLng{Lat: b.Lat, Lng: b.Lng},
	)
}

// mean earth radius used by h3 for great-circle math
const earthRadiusM = 6371007.180918475

// Destination returns the point reached by travelling distM meters from
// start along the initial bearing (degrees clockwise from north).
func Destination(start model.Coordinates, bearingDeg, distM float64) model.Coordinates {
	lat1 := start.Lat * math.Pi / 180
	lng1 := start.Lng * math.Pi / 180
	brg := bearingDeg * math.Pi / 180
	ang := distM / earthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)
	// normalize to [-180,180]
	lng2 = math.Mod(lng2+3*math.Pi, 2*math.Pi) - math.Pi

	return model.Coordinates{Lat: lat2 * 180 / math.Pi, Lng: lng2 * 180 / math.Pi}
}
