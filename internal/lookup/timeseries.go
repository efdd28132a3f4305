package lookup

import (
	"errors"
	"sort"
	"time"

	"options-spread-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData = errors.New("no price data available")
	ErrStalePrice  = errors.New("price data is stale")
)

// PriceAtOrBefore returns the last point at or before target.
// Series must be sorted ascending by timestamp.
// Returns ErrNoPriceData if the series is empty or starts after target.
func PriceAtOrBefore(target time.Time, s domain.Series) (domain.PricePoint, error) {
	// index of first point strictly after target
	i := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(target) })
	if i == 0 {
		return domain.PricePoint{}, ErrNoPriceData
	}
	return s[i-1], nil
}

// FreshPriceAtOrBefore is PriceAtOrBefore with an age limit.
// Returns ErrStalePrice if the point is older than target-maxAge.
func FreshPriceAtOrBefore(target time.Time, s domain.Series, maxAge time.Duration) (domain.PricePoint, error) {
	p, err := PriceAtOrBefore(target, s)
	if err != nil {
		return p, err
	}
	if target.Sub(p.Timestamp) > maxAge {
		return p, ErrStalePrice
	}
	return p, nil
}

// FirstAtOrAfter returns the first point at or after target.
// Returns ErrNoPriceData if every point is before target.
func FirstAtOrAfter(target time.Time, s domain.Series) (domain.PricePoint, error) {
	i := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(target) })
	if i == len(s) {
		return domain.PricePoint{}, ErrNoPriceData
	}
	return s[i], nil
}

// Window returns the points with from <= timestamp <= to.
// The result shares the backing array with s.
func Window(s domain.Series, from, to time.Time) domain.Series {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(from) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(to) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi:hi]
}

// IsSorted reports whether timestamps are non-decreasing.
func IsSorted(s domain.Series) bool {
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp.Before(s[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Sort orders points by timestamp, keeping the input order of equal timestamps.
func Sort(s domain.Series) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
}
