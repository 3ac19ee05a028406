package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// snapshot is an offline export of the record store: daily rows plus the
// class roster used to zero-fill classes without activity.
type snapshot struct {
	SchoolID string                   `json:"school_id"`
	Rows     []models.DailyEngagement `json:"rows"`
	Classes  []models.Class           `json:"classes"`
}

func loadSnapshot(path string) (*snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// windowFlags are shared by the offline analytics commands.
type windowFlags struct {
	period   string
	from     string
	to       string
	asOf     string
	timezone string
}

func (w windowFlags) resolve() (analytics.Window, error) {
	loc := time.UTC
	if w.timezone != "" {
		l, err := time.LoadLocation(w.timezone)
		if err != nil {
			return analytics.Window{}, fmt.Errorf("load timezone: %w", err)
		}
		loc = l
	}
	period, err := analytics.ParsePeriod(w.period)
	if err != nil {
		return analytics.Window{}, err
	}
	req := analytics.WindowRequest{Period: period}
	if w.from != "" {
		t, err := time.ParseInLocation("2006-01-02", w.from, loc)
		if err != nil {
			return analytics.Window{}, fmt.Errorf("parse --from: %w", err)
		}
		req.From = &t
	}
	if w.to != "" {
		t, err := time.ParseInLocation("2006-01-02", w.to, loc)
		if err != nil {
			return analytics.Window{}, fmt.Errorf("parse --to: %w", err)
		}
		req.To = &t
	}
	now := time.Now().In(loc)
	if w.asOf != "" {
		t, err := time.ParseInLocation("2006-01-02", w.asOf, loc)
		if err != nil {
			return analytics.Window{}, fmt.Errorf("parse --as-of: %w", err)
		}
		// end of the as-of day
		now = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return analytics.ResolveWindow(req, now, loc)
}
