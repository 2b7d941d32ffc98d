// Package expiry classifies food items by how many calendar days remain
// before they expire. Every freshness view goes through here.
package expiry

import (
	"math"
	"time"
)

// Tier is the freshness bucket of an item
type Tier string

const (
	Expired  Tier = "expired"
	Critical Tier = "critical"
	Warning  Tier = "warning"
	Good     Tier = "good"
)

const (
	criticalDays = 3
	warningDays  = 7
)

// DaysUntil returns the whole calendar days from now to expiry.
// expiry is a calendar date and its year/month/day are taken as-is; now is
// reduced to its date in its own location. Negative means already expired.
func DaysUntil(expiry, now time.Time) int {
	ey, em, ed := expiry.Date()
	ny, nm, nd := now.Date()

	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(math.Round(e.Sub(n).Hours() / 24))
}

// Classify buckets expiry relative to now
func Classify(expiry, now time.Time) Tier {
	return TierFor(DaysUntil(expiry, now))
}

// TierFor buckets a day count: <0 expired, 0..3 critical, 4..7 warning, >7 good
func TierFor(days int) Tier {
	switch {
	case days < 0:
		return Expired
	case days <= criticalDays:
		return Critical
	case days <= warningDays:
		return Warning
	default:
		return Good
	}
}

// ExpiringSoon reports whether the tier is critical or warning
func (t Tier) ExpiringSoon() bool {
	return t == Critical || t == Warning
}
