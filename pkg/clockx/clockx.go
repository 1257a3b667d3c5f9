// Package clockx is the single source of "now" for token lifecycles. All
// instants handed out are UTC and every stored timestamp must carry an
// explicit offset; a zone-less timestamp is rejected rather than guessed.
package clockx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrNaiveTimestamp reports a timestamp without timezone information.
var ErrNaiveTimestamp = errors.New("clockx: timestamp has no timezone")

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, normalised to UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.UTC()
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// StorageLayout is fixed width so stored values sort and compare as text.
const StorageLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Format renders t for storage in UTC using StorageLayout.
func Format(t time.Time) string {
	return t.UTC().Format(StorageLayout)
}

// Parse reads a stored timestamp. Values without an explicit offset (for
// example SQLite's CURRENT_TIMESTAMP "2006-01-02 15:04:05") fail with
// ErrNaiveTimestamp.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrNaiveTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if _, naiveErr := time.Parse("2006-01-02 15:04:05", s); naiveErr == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveTimestamp, s)
		}
		if _, naiveErr := time.Parse("2006-01-02T15:04:05", s); naiveErr == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveTimestamp, s)
		}
		return time.Time{}, fmt.Errorf("clockx: parse %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Before reports whether a is strictly before b. Both instants are
// normalised to UTC first; the zero time counts as naive.
func Before(a, b time.Time) (bool, error) {
	if a.IsZero() || b.IsZero() {
		return false, ErrNaiveTimestamp
	}
	return a.UTC().Before(b.UTC()), nil
}

// Expired reports whether now has reached expiresAt.
func Expired(now, expiresAt time.Time) (bool, error) {
	before, err := Before(now, expiresAt)
	if err != nil {
		return false, err
	}
	return !before, nil
}
