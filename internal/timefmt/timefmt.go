// Package timefmt renders timestamps for conversation listings.
package timefmt

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
)

const (
	timeLayout     = "15:04"
	dateTimeLayout = "Jan 2, 2006 15:04"
)

// Formatter formats times in a fixed location. Relative times older than a
// week fall back to the date-time form.
type Formatter struct {
	location *time.Location
	clock    clock.Clock
}

func NewFormatter(location *time.Location, clk clock.Clock) *Formatter {
	if location == nil {
		location = time.Local
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Formatter{location: location, clock: clk}
}

// Time formats the clock time, e.g. "14:05"
func (f *Formatter) Time(t time.Time) string {
	return t.In(f.location).Format(timeLayout)
}

// DateTime formats date and time, e.g. "Mar 1, 2026 14:05"
func (f *Formatter) DateTime(t time.Time) string {
	return t.In(f.location).Format(dateTimeLayout)
}

// Relative formats t against now with minute resolution, e.g. "5 minutes ago"
func (f *Formatter) Relative(t time.Time) string {
	now := f.clock.Now()
	elapsed := now.Sub(t)
	switch {
	case elapsed < 0:
		return f.DateTime(t)
	case elapsed < time.Minute:
		return "just now"
	case elapsed < 7*24*time.Hour:
		return humanize.RelTime(t.Truncate(time.Minute), now.Truncate(time.Minute), "ago", "from now")
	default:
		return f.DateTime(t)
	}
}
