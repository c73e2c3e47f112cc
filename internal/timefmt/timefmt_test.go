package timefmt

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestFormatter(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	clk := clock.NewMock()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk.Set(now)
	f := NewFormatter(jakarta, clk)

	if got := f.Time(now); got != "19:00" {
		t.Errorf("Time = %q", got)
	}
	if got := f.DateTime(now); got != "Mar 10, 2026 19:00" {
		t.Errorf("DateTime = %q", got)
	}

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{8 * 24 * time.Hour, "Mar 2, 2026 19:00"},
		{-time.Hour, "Mar 10, 2026 18:00"},
	}
	for _, tt := range tests {
		if got := f.Relative(now.Add(-tt.ago)); got != tt.want {
			t.Errorf("Relative(-%s) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
