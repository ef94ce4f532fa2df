package watch

import (
	"strings"
	"time"
)

// Ticker rotates on every scan so a frozen view is easy to spot.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Spinner lights up when the set of markers changes and fades over the
// following scans.
type Spinner struct {
	dots       int
	lastChange time.Time
}

func (s *Spinner) OnChange(now time.Time) {
	s.dots = 5
	s.lastChange = now
}

// Decay fades the dots by one for every two seconds since the last change.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	left := 5 - int(now.Sub(s.lastChange)/(2*time.Second))
	if left < 0 {
		left = 0
	}
	if left < s.dots {
		s.dots = left
	}
}

func (s Spinner) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < s.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (s Spinner) LastChange() time.Time {
	return s.lastChange
}
