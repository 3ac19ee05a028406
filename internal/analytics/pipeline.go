package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// DefaultPageSize is used when a filter state carries no page size.
const DefaultPageSize = 20

// SortDirection orders a sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection returns desc for "desc" (any case) and asc otherwise.
func ParseSortDirection(raw string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// FilterState is the per-view query state. Every mutator except WithPage resets
// the page to 1.
type FilterState struct {
	SearchText    string        `json:"search_text"`
	Categories    []string      `json:"selected_categories"`
	Statuses      []string      `json:"selected_statuses"`
	Risk          []string      `json:"risk_filter"`
	SortKey       string        `json:"sort_key"`
	SortDirection SortDirection `json:"sort_direction"`
	Page          int           `json:"page"`
	PageSize      int           `json:"page_size"`
}

// DefaultFilterState returns an unfiltered first page.
func DefaultFilterState() FilterState {
	return FilterState{SortDirection: SortAsc, Page: 1, PageSize: DefaultPageSize}
}

func (f FilterState) WithSearch(text string) FilterState {
	f.SearchText = text
	f.Page = 1
	return f
}

func (f FilterState) WithCategories(categories ...string) FilterState {
	f.Categories = compact(categories)
	f.Page = 1
	return f
}

func (f FilterState) WithStatuses(statuses ...string) FilterState {
	f.Statuses = compact(statuses)
	f.Page = 1
	return f
}

func (f FilterState) WithRisk(levels ...string) FilterState {
	f.Risk = compact(levels)
	f.Page = 1
	return f
}

func (f FilterState) WithSort(key string, dir SortDirection) FilterState {
	f.SortKey = key
	f.SortDirection = dir
	f.Page = 1
	return f
}

func (f FilterState) WithPageSize(size int) FilterState {
	f.PageSize = size
	f.Page = 1
	return f
}

// WithPage moves to page without touching anything else.
func (f FilterState) WithPage(page int) FilterState {
	f.Page = page
	return f
}

// SameQuery reports whether both states select and order the same items,
// ignoring the page.
func (f FilterState) SameQuery(o FilterState) bool {
	return f.SearchText == o.SearchText &&
		equalSet(f.Categories, o.Categories) &&
		equalSet(f.Statuses, o.Statuses) &&
		equalSet(f.Risk, o.Risk) &&
		f.SortKey == o.SortKey &&
		f.SortDirection == o.SortDirection &&
		f.PageSize == o.PageSize
}

func (f FilterState) normalized() FilterState {
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.SortDirection != SortDesc {
		f.SortDirection = SortAsc
	}
	return f
}

// Page is one slice of a filtered, sorted list.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// Pagination converts the page metadata into the response model.
func (p Page[T]) Pagination() models.Pagination {
	return models.Pagination{Page: p.Page, PageSize: p.PageSize, TotalCount: p.TotalCount, TotalPages: p.TotalPages}
}

// Less reports whether a sorts before b.
type Less[T any] func(a, b T) bool

// Pipeline applies search, facets, sort and pagination in that order. Nil
// extractors disable the corresponding facet.
type Pipeline[T any] struct {
	Search      func(T) []string
	Category    func(T) string
	Status      func(T) string
	Risk        func(T) string
	Sorters     map[string]Less[T]
	DefaultSort string
	TieBreak    Less[T]
}

// Apply runs the pipeline. The input slice is not modified.
func (p Pipeline[T]) Apply(items []T, state FilterState) Page[T] {
	state = state.normalized()

	filtered := make([]T, 0, len(items))
	needle := strings.ToLower(strings.TrimSpace(state.SearchText))
	categories := toSet(state.Categories)
	statuses := toSet(state.Statuses)
	risks := toSet(state.Risk)
	for _, item := range items {
		if needle != "" && !p.matches(item, needle) {
			continue
		}
		if !facet(categories, p.Category, item) || !facet(statuses, p.Status, item) || !facet(risks, p.Risk, item) {
			continue
		}
		filtered = append(filtered, item)
	}

	p.sort(filtered, state)

	total := len(filtered)
	page := Page[T]{
		TotalCount: total,
		TotalPages: int(math.Ceil(float64(total) / float64(state.PageSize))),
		Page:       state.Page,
		PageSize:   state.PageSize,
	}
	start := (state.Page - 1) * state.PageSize
	if start >= total {
		page.Items = []T{}
		return page
	}
	end := start + state.PageSize
	if end > total {
		end = total
	}
	page.Items = filtered[start:end]
	return page
}

func (p Pipeline[T]) matches(item T, needle string) bool {
	if p.Search == nil {
		return true
	}
	for _, field := range p.Search(item) {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (p Pipeline[T]) sort(items []T, state FilterState) {
	less, ok := p.Sorters[state.SortKey]
	if !ok {
		less = p.Sorters[p.DefaultSort]
	}
	if less == nil && p.TieBreak == nil {
		return
	}
	desc := state.SortDirection == SortDesc
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if less != nil {
			if desc {
				a, b = b, a
			}
			if less(a, b) {
				return true
			}
			if less(b, a) {
				return false
			}
		}
		if p.TieBreak != nil {
			return p.TieBreak(items[i], items[j])
		}
		return false
	})
}

func facet[T any](selected map[string]struct{}, extract func(T) string, item T) bool {
	if len(selected) == 0 || extract == nil {
		return true
	}
	_, ok := selected[strings.ToLower(extract(item))]
	return ok
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func equalSet(a, b []string) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// Class list statuses.
const (
	StatusAtRisk  = "at_risk"
	StatusOnTrack = "on_track"
)

// Student list statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ClassPipeline filters class rollups: category is the grade, status is
// at_risk when any member is high risk.
func ClassPipeline() Pipeline[models.ClassRollup] {
	return Pipeline[models.ClassRollup]{
		Search: func(c models.ClassRollup) []string {
			return []string{c.ClassID, c.Grade, c.Section, c.TeacherName}
		},
		Category: func(c models.ClassRollup) string { return c.Grade },
		Status: func(c models.ClassRollup) string {
			if c.AtRiskCount > 0 {
				return StatusAtRisk
			}
			return StatusOnTrack
		},
		Sorters: map[string]Less[models.ClassRollup]{
			"class_id":        func(a, b models.ClassRollup) bool { return a.ClassID < b.ClassID },
			"grade":           func(a, b models.ClassRollup) bool { return a.Grade < b.Grade || (a.Grade == b.Grade && a.Section < b.Section) },
			"teacher":         func(a, b models.ClassRollup) bool { return a.TeacherName < b.TeacherName },
			"students":        func(a, b models.ClassRollup) bool { return a.TotalStudents < b.TotalStudents },
			"assessment_rate": func(a, b models.ClassRollup) bool { return a.Assessments.Rate < b.Assessments.Rate },
			"activity_rate":   func(a, b models.ClassRollup) bool { return a.Activities.Rate < b.Activities.Rate },
			"webinar_rate":    func(a, b models.ClassRollup) bool { return a.Webinars.Rate < b.Webinars.Rate },
			"at_risk":         func(a, b models.ClassRollup) bool { return a.AtRiskCount < b.AtRiskCount },
			"wellbeing":       func(a, b models.ClassRollup) bool { return a.AvgWellbeing < b.AvgWellbeing },
		},
		DefaultSort: "grade",
		TieBreak:    func(a, b models.ClassRollup) bool { return a.ClassID < b.ClassID },
	}
}

// StudentPipeline filters student standings: category is the class id, status
// is inactive once a student reaches inactiveThreshold idle days, risk is the risk level.
func StudentPipeline(inactiveThreshold int) Pipeline[models.StudentStanding] {
	if inactiveThreshold <= 0 {
		inactiveThreshold = DefaultInactiveDays
	}
	return Pipeline[models.StudentStanding]{
		Search: func(s models.StudentStanding) []string {
			return []string{s.StudentID, s.StudentName, s.ClassID}
		},
		Category: func(s models.StudentStanding) string { return s.ClassID },
		Status: func(s models.StudentStanding) string {
			if s.NeverActive || s.DaysInactive >= inactiveThreshold {
				return StatusInactive
			}
			return StatusActive
		},
		Risk: func(s models.StudentStanding) string { return string(s.RiskLevel) },
		Sorters: map[string]Less[models.StudentStanding]{
			"name":          func(a, b models.StudentStanding) bool { return a.StudentName < b.StudentName },
			"student_id":    func(a, b models.StudentStanding) bool { return a.StudentID < b.StudentID },
			"overall_rate":  func(a, b models.StudentStanding) bool { return a.OverallRate < b.OverallRate },
			"streak":        func(a, b models.StudentStanding) bool { return a.DailyStreak < b.DailyStreak },
			"app_openings":  func(a, b models.StudentStanding) bool { return a.DailyAppOpenings < b.DailyAppOpenings },
			"risk":          func(a, b models.StudentStanding) bool { return a.RiskLevel.Rank() < b.RiskLevel.Rank() },
			"days_inactive": func(a, b models.StudentStanding) bool { return inactivity(a) < inactivity(b) },
			"wellbeing":     func(a, b models.StudentStanding) bool { return wellbeingOrder(a) < wellbeingOrder(b) },
		},
		DefaultSort: "name",
		TieBreak:    func(a, b models.StudentStanding) bool { return a.StudentID < b.StudentID },
	}
}

func inactivity(s models.StudentStanding) int {
	if s.NeverActive {
		return math.MaxInt32
	}
	return s.DaysInactive
}

// absent scores sort below every reported score
func wellbeingOrder(s models.StudentStanding) float64 {
	if s.WellbeingScore == nil {
		return -1
	}
	return *s.WellbeingScore
}
