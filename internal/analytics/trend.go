package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// Bucket selects the trend resolution.
type Bucket string

const (
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Metric names a trend series.
type Metric string

const (
	MetricAssessmentRate Metric = "assessment_rate"
	MetricActivityRate   Metric = "activity_rate"
	MetricWebinarRate    Metric = "webinar_rate"
	MetricOverallRate    Metric = "overall_rate"
	MetricAppOpenings    Metric = "app_openings"
	MetricAvgWellbeing   Metric = "avg_wellbeing"
	MetricAtRiskCount    Metric = "at_risk_count"
	MetricActiveStudents Metric = "active_students"
)

// Metrics lists every supported series.
var Metrics = []Metric{
	MetricAssessmentRate, MetricActivityRate, MetricWebinarRate, MetricOverallRate,
	MetricAppOpenings, MetricAvgWellbeing, MetricAtRiskCount, MetricActiveStudents,
}

// ParseBucket defaults to week.
func ParseBucket(raw string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(raw))); b {
	case "":
		return BucketWeek, nil
	case BucketWeek, BucketMonth:
		return b, nil
	default:
		return "", fmt.Errorf("unknown bucket %q", raw)
	}
}

// ParseMetric defaults to overall_rate.
func ParseMetric(raw string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(raw)))
	if m == "" {
		return MetricOverallRate, nil
	}
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", raw)
}

// TrendPoints fixes how many points each bucket type produces.
type TrendPoints struct {
	Weekly  int
	Monthly int
}

// DefaultTrendPoints returns 4 weekly and 6 monthly points.
func DefaultTrendPoints() TrendPoints {
	return TrendPoints{Weekly: 4, Monthly: 6}
}

func (t TrendPoints) count(b Bucket) int {
	n := t.Weekly
	if b == BucketMonth {
		n = t.Monthly
	}
	if n <= 0 {
		d := DefaultTrendPoints()
		if b == BucketMonth {
			return d.Monthly
		}
		return d.Weekly
	}
	return n
}

// BuildSeries splits the window into equal sub-intervals and evaluates metric
// over each one independently. It always returns exactly the configured number
// of points; sub-intervals without activity are 0.
func BuildSeries(rows []models.DailyEngagement, window Window, bucket Bucket, metric Metric, points TrendPoints, policy RiskPolicy) ([]models.SeriesPoint, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if !window.End.After(window.Start) {
		return nil, fmt.Errorf("%w: empty window", ErrInvalidRange)
	}

	n := points.count(bucket)
	width := window.End.Sub(window.Start) / time.Duration(n)
	series := make([]models.SeriesPoint, 0, n)
	for i := 0; i < n; i++ {
		start := window.Start.Add(time.Duration(i) * width)
		end := start.Add(width)
		if i == n-1 {
			end = window.End
		}
		sub := Window{Start: start, End: end, Period: window.Period}
		series = append(series, models.SeriesPoint{
			BucketLabel: start.Format(dateLayout),
			Start:       start,
			End:         end,
			Value:       evaluate(rows, sub, metric, policy),
		})
	}
	return series, nil
}

func evaluate(rows []models.DailyEngagement, sub Window, metric Metric, policy RiskPolicy) float64 {
	if !hasActivity(rows, sub) {
		return 0
	}
	records := Collapse(rows, sub)
	overview := Overview("", records, policy)

	switch metric {
	case MetricAssessmentRate:
		return overview.Assessments.Rate
	case MetricActivityRate:
		return overview.Activities.Rate
	case MetricWebinarRate:
		return overview.Webinars.Rate
	case MetricOverallRate:
		done := overview.Assessments.Done + overview.Activities.Done + overview.Webinars.Done
		total := overview.Assessments.Total + overview.Activities.Total + overview.Webinars.Total
		return CompletionRate(done, total)
	case MetricAppOpenings:
		return float64(overview.Engagement.TotalAppOpenings)
	case MetricAvgWellbeing:
		return float64(overview.AvgWellbeing)
	case MetricAtRiskCount:
		return float64(overview.RiskDistribution.High)
	case MetricActiveStudents:
		active := 0
		for _, r := range records {
			if r.LastActive != nil && sub.Contains(*r.LastActive) {
				active++
			}
		}
		return float64(active)
	default:
		return 0
	}
}

func hasActivity(rows []models.DailyEngagement, w Window) bool {
	for _, row := range rows {
		if row.ActivityDate != nil && w.Contains(*row.ActivityDate) {
			return true
		}
	}
	return false
}
