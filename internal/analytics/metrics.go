// Package analytics is the pure computation engine behind the wellness dashboard:
// window resolution, rollups, risk classification, ranking, filtering, drill-down
// navigation, and trend series. Nothing in this package performs I/O.
package analytics

import (
	"math"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// RiskPolicy holds the thresholds used to classify students. Values are percentages.
type RiskPolicy struct {
	HighWellbeing    float64
	MediumWellbeing  float64
	HighEngagement   float64
	MediumEngagement float64
}

// DefaultRiskPolicy returns the stock thresholds.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		HighWellbeing:    40,
		MediumWellbeing:  70,
		HighEngagement:   30,
		MediumEngagement: 60,
	}
}

// CompletionRate returns done/total as a percentage. It is 0 when total is not
// positive and never negative.
func CompletionRate(done, total int) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// Level classifies a student with a known wellbeing score. Either axis alone is
// enough to raise the level.
func (p RiskPolicy) Level(wellbeing, engagementRate float64) models.RiskLevel {
	switch {
	case wellbeing < p.HighWellbeing || engagementRate < p.HighEngagement:
		return models.RiskHigh
	case wellbeing < p.MediumWellbeing || engagementRate < p.MediumEngagement:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Classify handles a possibly absent wellbeing score. An absent score is treated
// as at least medium risk; engagement may still escalate to high.
func (p RiskPolicy) Classify(wellbeing *float64, engagementRate float64) models.RiskLevel {
	if wellbeing != nil {
		return p.Level(*wellbeing, engagementRate)
	}
	if engagementRate < p.HighEngagement {
		return models.RiskHigh
	}
	return models.RiskMedium
}

// Streak counts consecutive active days ending on the day of asOf. Days missing
// from the log break the streak.
func Streak(log []models.DailyActivity, asOf time.Time) int {
	if len(log) == 0 {
		return 0
	}

	active := make(map[string]bool, len(log))
	earliest := dayStart(log[0].Date)
	for _, entry := range log {
		day := dayStart(entry.Date)
		key := day.Format(dateLayout)
		active[key] = active[key] || entry.Active()
		if day.Before(earliest) {
			earliest = day
		}
	}

	streak := 0
	for day := dayStart(asOf); !day.Before(earliest); day = day.AddDate(0, 0, -1) {
		if !active[day.Format(dateLayout)] {
			break
		}
		streak++
	}
	return streak
}

// WellbeingAggregate returns the arithmetic mean of the scores, or 0 for none.
func WellbeingAggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// RoundWellbeing rounds half away from zero.
func RoundWellbeing(v float64) int {
	return int(math.Round(v))
}

// OverallRate is the completion rate across all three channels combined.
func OverallRate(r models.EngagementRecord) float64 {
	var done, total int
	for _, ch := range models.Channels {
		c := r.Channel(ch)
		done += c.Completed
		total += c.Assigned
	}
	return CompletionRate(done, total)
}

// DaysInactive returns whole days between the last activity and asOf. The
// boolean is true when the student was never active.
func DaysInactive(lastActive *time.Time, asOf time.Time) (int, bool) {
	if lastActive == nil {
		return 0, true
	}
	last := dayStart(*lastActive)
	ref := dayStart(asOf.In(last.Location()))
	if !ref.After(last) {
		return 0, false
	}
	// calendar-day difference, immune to DST hour shifts
	days := 0
	for d := last; d.Before(ref); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days, false
}

// Normalize clamps counts so that 0 <= completed <= assigned and the streak is non-negative.
func Normalize(r models.EngagementRecord) models.EngagementRecord {
	r.Assessments = clampCount(r.Assessments)
	r.Activities = clampCount(r.Activities)
	r.Webinars = clampCount(r.Webinars)
	if r.DailyStreak < 0 {
		r.DailyStreak = 0
	}
	if r.DailyAppOpenings < 0 {
		r.DailyAppOpenings = 0
	}
	return r
}

func clampCount(c models.ChannelCount) models.ChannelCount {
	if c.Assigned < 0 {
		c.Assigned = 0
	}
	if c.Completed < 0 {
		c.Completed = 0
	}
	if c.Completed > c.Assigned {
		c.Completed = c.Assigned
	}
	return c
}

const dateLayout = "2006-01-02"

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
