// Package daterange builds the STAC datetime intervals searched for each tile.
package daterange

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the timestamp layout used on both ends of a range.
const Layout = "2006-01-02T15:04:05Z"

// ErrInvalidPeriod is returned for months outside 1-12 or a period ending
// before it starts.
var ErrInvalidPeriod = errors.New("invalid period")

// ForPeriod returns one range per year from startYear to endYear, each running
// from the first day of startMonth to the last second of endMonth.
//
// When startMonth is after endMonth a range crosses a year boundary: it ends in
// the following year, and the last range starts in endYear-1 so that no range
// ends after endYear.
func ForPeriod(startYear, endYear, startMonth, endMonth int) ([]string, error) {
	if startMonth < 1 || startMonth > 12 || endMonth < 1 || endMonth > 12 {
		return nil, fmt.Errorf("%w: months must be in 1-12, got %d and %d", ErrInvalidPeriod, startMonth, endMonth)
	}
	if endYear < startYear {
		return nil, fmt.Errorf("%w: end year %d before start year %d", ErrInvalidPeriod, endYear, startYear)
	}

	bump := 0
	if startMonth > endMonth {
		bump = 1
	}

	var ranges []string
	for year := startYear; year <= endYear-bump; year++ {
		start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
		// day zero of the next month is the last day of endMonth
		end := time.Date(year+bump, time.Month(endMonth)+1, 0, 23, 59, 59, 0, time.UTC)
		ranges = append(ranges, Format(start, end))
	}
	return ranges, nil
}

// Format renders a closed interval.
func Format(start, end time.Time) string {
	return start.UTC().Format(Layout) + "/" + end.UTC().Format(Layout)
}
