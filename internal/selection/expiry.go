// Package selection picks the expiry and strikes traded on an entry date.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Selection errors.
var (
	ErrNoValidExpiry     = errors.New("no valid expiry")
	ErrNoStrikeAvailable = errors.New("no strike available")
)

// SelectExpiry returns the nearest expiry strictly after entryDate, skipping
// an expiry on the next calendar day. Only calendar days are compared.
// Returns ErrNoValidExpiry if none remain.
func SelectExpiry(entryDate time.Time, expiries []time.Time) (time.Time, error) {
	entry := civil(entryDate)
	nextDay := entry.AddDate(0, 0, 1)

	sorted := make([]time.Time, len(expiries))
	copy(sorted, expiries)
	sort.Slice(sorted, func(i, j int) bool { return civil(sorted[i]).Before(civil(sorted[j])) })

	for _, e := range sorted {
		d := civil(e)
		if !d.After(entry) || d.Equal(nextDay) {
			continue
		}
		return e, nil
	}
	return time.Time{}, fmt.Errorf("%w: %d expiries, none after %s excluding %s",
		ErrNoValidExpiry, len(expiries), entry.Format("2006-01-02"), nextDay.Format("2006-01-02"))
}

// civil drops the clock and zone so dates compare by calendar day.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
