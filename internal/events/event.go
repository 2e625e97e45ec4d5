// Package events carries place change notifications between service
// instances over Kafka so each one can retire its cached search results.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
)

const Version = 1

type Event struct {
	Version  int            `json:"version"`
	ID       string         `json:"id"`
	Op       string         `json:"op"`
	PlaceID  int64          `json:"place_id"`
	Lat      float64        `json:"lat"`
	Lng      float64        `json:"lng"`
	Category model.Category `json:"category"`
	TS       time.Time      `json:"ts"`
	Source   string         `json:"source,omitempty"`
}

// NewEvent stamps a fresh id and timestamp for a committed write.
func NewEvent(op, source string, p model.Place) Event {
	return Event{
		Version:  Version,
		ID:       uuid.NewString(),
		Op:       op,
		PlaceID:  p.ID,
		Lat:      p.Lat,
		Lng:      p.Lng,
		Category: p.Category,
		TS:       time.Now().UTC(),
		Source:   source,
	}
}

func (e Event) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("version must be %d", Version)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("id must be a uuid: %w", err)
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if e.PlaceID <= 0 {
		return fmt.Errorf("place_id is required")
	}
	if !(model.Coordinates{Lat: e.Lat, Lng: e.Lng}).Valid() {
		return fmt.Errorf("position out of range")
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}
