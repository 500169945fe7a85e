package stac

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks a search request before it is sent.
func (req *SearchRequest) Validate() error {
	if req == nil {
		return fmt.Errorf("search request cannot be nil")
	}

	if len(req.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	for i, coll := range req.Collections {
		if strings.TrimSpace(coll) == "" {
			return fmt.Errorf("collection at index %d cannot be empty", i)
		}
	}

	if req.DateTime != "" {
		if _, _, err := ParseDatetimeInterval(req.DateTime); err != nil {
			return fmt.Errorf("invalid datetime: %w", err)
		}
	}

	if len(req.BBox) > 0 {
		if err := ValidateBBox(req.BBox); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	}

	if req.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}

	for _, s := range req.Sortby {
		if s.Field == "" {
			return fmt.Errorf("sortby field cannot be empty")
		}
		if s.Direction != SortAsc && s.Direction != SortDesc {
			return fmt.Errorf("invalid sort direction %q for %s", s.Direction, s.Field)
		}
	}

	if req.Query != nil && req.Filter != nil {
		return fmt.Errorf("cannot specify both query and filter")
	}
	if req.Filter != nil && req.FilterLang == "" {
		return fmt.Errorf("filter-lang is required with a filter")
	}

	return nil
}

// ValidateBBox validates a 2D longitude/latitude bounding box.
func ValidateBBox(bbox []float64) error {
	if len(bbox) != 4 {
		return fmt.Errorf("bbox must have 4 coordinates, got %d", len(bbox))
	}
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]

	if west < -180 || west > 180 || east < -180 || east > 180 {
		return fmt.Errorf("longitudes must be between -180 and 180, got %f and %f", west, east)
	}
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return fmt.Errorf("latitudes must be between -90 and 90, got %f and %f", south, north)
	}
	if west > east {
		return fmt.Errorf("west longitude (%f) must be less than or equal to east longitude (%f)", west, east)
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than or equal to north latitude (%f)", south, north)
	}
	return nil
}

// ParseDatetimeInterval parses a datetime interval string into start and end times
// Supports formats:
// - "2023-01-01T00:00:00Z/2023-12-31T23:59:59Z" (closed interval)
// - "2023-01-01T00:00:00Z/.." (start time only)
// - "../2023-12-31T23:59:59Z" (end time only)
// - ".." or "../.." (open interval, both nil)
// A single instant is returned as both start and end.
func ParseDatetimeInterval(dt string) (start, end *time.Time, err error) {
	if dt == "" {
		return nil, nil, fmt.Errorf("datetime interval cannot be empty")
	}

	if dt == ".." || dt == "../.." {
		return nil, nil, nil
	}

	parts := strings.Split(dt, "/")
	switch len(parts) {
	case 1:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(dt))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid datetime format, expected RFC 3339: %w", err)
		}
		return &t, &t, nil
	case 2:
	default:
		return nil, nil, fmt.Errorf("invalid datetime interval format, expected 'start/end', got: %s", dt)
	}

	if start, err = parseBound(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("invalid start datetime: %w", err)
	}
	if end, err = parseBound(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("invalid end datetime: %w", err)
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, fmt.Errorf("start datetime (%s) must be before or equal to end datetime (%s)", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return start, end, nil
}

func parseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
