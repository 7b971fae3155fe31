package billing

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// The gateway occasionally sends zeroed or garbage timestamps. Anything that
// parses to before this floor (or absurdly far in the future) is rejected and
// replaced with the caller's fallback.
var (
	plausibleFloor   = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	plausibleCeiling = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// FallbackPeriod is the billing window assumed when the gateway gives no
// usable period end.
const FallbackPeriod = 30 * 24 * time.Hour

// ReconcileUnix validates a gateway Unix-seconds timestamp and returns it as
// a time, or the fallback when the value is implausible. It never panics; the
// context tag only feeds the diagnostic log.
func ReconcileUnix(sec int64, fallback time.Time, context string) time.Time {
	if sec <= 0 {
		log.Debugf("timestamp reconciler: non-positive value %d (%s), using fallback", sec, context)
		return fallback
	}
	return Reconcile(time.Unix(sec, 0).UTC(), fallback, context)
}

// Reconcile validates an already-parsed time against the plausibility bounds
// and returns it, or the fallback when out of range.
func Reconcile(value time.Time, fallback time.Time, context string) time.Time {
	if value.IsZero() || value.Before(plausibleFloor) || value.After(plausibleCeiling) {
		log.Warnf("timestamp reconciler: implausible value %v (%s), using fallback %v", value, context, fallback)
		return fallback
	}
	return value
}

// FallbackPeriodEnd computes the default period end for a given start.
func FallbackPeriodEnd(start time.Time) time.Time {
	return start.Add(FallbackPeriod)
}
