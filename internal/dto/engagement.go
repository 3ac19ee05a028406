package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
)

const dateLayout = "2006-01-02"

// WindowQuery selects the reporting window. From and To are calendar dates
// and only apply to the custom period.
type WindowQuery struct {
	Period string `form:"period" json:"period" validate:"omitempty,oneof=today week month year custom"`
	From   string `form:"from" json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `form:"to" json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// Request converts the query into an engine window request. Dates are read in loc.
func (q WindowQuery) Request(loc *time.Location) (analytics.WindowRequest, error) {
	period, err := analytics.ParsePeriod(q.Period)
	if err != nil {
		return analytics.WindowRequest{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	req := analytics.WindowRequest{Period: period}
	if from := strings.TrimSpace(q.From); from != "" {
		t, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return analytics.WindowRequest{}, err
		}
		req.From = &t
	}
	if to := strings.TrimSpace(q.To); to != "" {
		t, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return analytics.WindowRequest{}, err
		}
		req.To = &t
	}
	return req, nil
}

// ListQuery carries the filter, sort and paging parameters of list endpoints.
// Multi-valued facets are comma separated.
type ListQuery struct {
	WindowQuery
	Search   string `form:"search" json:"search" validate:"max=100"`
	Grade    string `form:"grade" json:"grade"`
	Class    string `form:"class" json:"class"`
	Status   string `form:"status" json:"status"`
	Risk     string `form:"risk" json:"risk"`
	Sort     string `form:"sort" json:"sort" validate:"max=40"`
	Order    string `form:"order" json:"order" validate:"omitempty,oneof=asc desc ASC DESC"`
	Page     int    `form:"page" json:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=200"`
}

// Filters builds the engine filter state. The category facet is the grade for
// class lists and the class id for student lists, so at most one is set.
func (q ListQuery) Filters(defaultPageSize int) analytics.FilterState {
	state := analytics.DefaultFilterState()
	if defaultPageSize > 0 {
		state = state.WithPageSize(defaultPageSize)
	}
	state = state.WithSearch(strings.TrimSpace(q.Search))
	categories := splitList(q.Grade)
	if len(categories) == 0 {
		categories = splitList(q.Class)
	}
	state = state.
		WithCategories(categories...).
		WithStatuses(splitList(q.Status)...).
		WithRisk(splitList(q.Risk)...).
		WithSort(strings.TrimSpace(q.Sort), analytics.ParseSortDirection(q.Order))
	if q.PageSize > 0 {
		state = state.WithPageSize(q.PageSize)
	}
	if q.Page > 0 {
		state = state.WithPage(q.Page)
	}
	return state
}

// LeaderboardQuery bounds each leaderboard list.
type LeaderboardQuery struct {
	WindowQuery
	Limit int `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// TrendQuery selects a trend series.
type TrendQuery struct {
	WindowQuery
	Bucket  string `form:"bucket" json:"bucket" validate:"omitempty,oneof=week month"`
	Metric  string `form:"metric" json:"metric" validate:"omitempty,oneof=assessment_rate activity_rate webinar_rate overall_rate app_openings avg_wellbeing at_risk_count active_students"`
	ClassID string `form:"classId" json:"classId" validate:"max=64"`
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
