package registry

import "time"

// Clock supplies the logical time used for proposal expiry. The engine
// never reads the system clock directly so tests and hosts with their
// own notion of time can inject one.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now()
}
