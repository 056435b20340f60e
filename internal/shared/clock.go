package shared

import "time"

// Clock supplies the current time. Services and sweeps take a Clock instead
// of calling time.Now inline so grace-period and due-date boundaries are
// deterministic under test.
type Clock func() time.Time

// SystemClock reads the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a Clock pinned to the given instant.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
