package analytics

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidRange is returned when a custom window is missing a bound or is inverted.
var ErrInvalidRange = errors.New("invalid date range")

// Period names a time window preset.
type Period string

const (
	PeriodToday  Period = "today"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodYear   Period = "year"
	PeriodCustom Period = "custom"
)

var rollingSpans = map[Period]int{
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

// ParsePeriod maps a query value onto a Period. Empty input means week.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PeriodWeek, nil
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodYear, PeriodCustom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// WindowRequest is the caller's intent. From and To are only read for custom windows.
type WindowRequest struct {
	Period Period
	From   *time.Time
	To     *time.Time
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Period Period    `json:"period"`
}

// Key is a stable identifier suitable for cache keys.
func (w Window) Key() string {
	return fmt.Sprintf("%s:%d:%d", w.Period, w.Start.Unix(), w.End.Unix())
}

// Days returns the number of days the window touches, rounded up.
func (w Window) Days() int {
	if !w.End.After(w.Start) {
		return 0
	}
	return int(math.Ceil(w.End.Sub(w.Start).Hours() / 24))
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ResolveWindow turns a request into concrete bounds relative to now, in loc.
func ResolveWindow(req WindowRequest, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	period := req.Period
	if period == "" {
		period = PeriodWeek
	}

	switch period {
	case PeriodToday:
		start := dayStart(now)
		return Window{Start: start, End: start.AddDate(0, 0, 1), Period: period}, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		span := rollingSpans[period]
		return Window{Start: now.AddDate(0, 0, -span), End: now, Period: period}, nil
	case PeriodCustom:
		if req.From == nil || req.To == nil {
			return Window{}, fmt.Errorf("%w: custom period requires from and to", ErrInvalidRange)
		}
		from := dayStart(req.From.In(loc))
		to := dayStart(req.To.In(loc))
		if from.After(to) {
			return Window{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, from.Format(dateLayout), to.Format(dateLayout))
		}
		return Window{Start: from, End: to.AddDate(0, 0, 1), Period: period}, nil
	default:
		return Window{}, fmt.Errorf("%w: unknown period %q", ErrInvalidRange, period)
	}
}

// WindowResolver binds a timezone and an anchor granularity. Rolling windows are
// anchored to now truncated to Granularity so that close requests share bounds.
type WindowResolver struct {
	Location    *time.Location
	Granularity time.Duration
	Now         func() time.Time
}

// Resolve resolves req against the resolver's clock.
func (r WindowResolver) Resolve(req WindowRequest) (Window, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Granularity > 0 {
		now = now.Truncate(r.Granularity)
	}
	return ResolveWindow(req, now, r.Location)
}
