// Package clock provides the monotonic wall-clock time source and the
// v4-style random identifier generator used throughout the service, so
// tests can substitute a deterministic clock without touching callers.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real returns the system clock, truncated to millisecond resolution to
// match the stored timestamp granularity.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// Fixed returns a Clock that always reports t, for deterministic tests.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// NewID returns a new v4-style random identifier as an opaque string, the
// same shape stored as every entity's "_id" field.
func NewID() string {
	return uuid.NewString()
}
