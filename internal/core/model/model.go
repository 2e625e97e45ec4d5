// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

type Category string

const (
	CategoryRestaurant Category = "restaurant"
	CategoryMosque     Category = "mosque"
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{CategoryRestaurant, CategoryMosque}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryRestaurant, CategoryMosque:
		return true
	}
	return false
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

type Cells []string

// CellKeys are the H3 cells a place falls into, one per indexed resolution.
type CellKeys struct {
	R5 string `db:"h3_r5" json:"-"`
	R7 string `db:"h3_r7" json:"-"`
	R9 string `db:"h3_r9" json:"-"`
}

type Place struct {
	ID          int64     `db:"id"          json:"id"`
	Name        string    `db:"name"        json:"name"`
	Category    Category  `db:"category"    json:"category"`
	Lat         float64   `db:"lat"         json:"lat"`
	Lng         float64   `db:"lng"         json:"lng"`
	City        string    `db:"city"        json:"city,omitempty"`
	Address     string    `db:"address"     json:"address,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	Phone       string    `db:"phone"       json:"phone,omitempty"`
	Website     string    `db:"website"     json:"website,omitempty"`
	Verified    bool      `db:"verified"    json:"verified"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`

	CellKeys

	// set only on proximity results
	DistanceMeters *float64 `db:"-" json:"distance_m,omitempty"`
	DistanceLabel  string   `db:"-" json:"distance,omitempty"`
}

func (p Place) Position() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// ListFilter narrows the center-less listing.
type ListFilter struct {
	Category *Category
	Verified *bool
	City     string
}

// Stats are the dashboard aggregate counts.
type Stats struct {
	Total      int              `json:"total"`
	Verified   int              `json:"verified"`
	ByCategory map[Category]int `json:"by_category"`
}
