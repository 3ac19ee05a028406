package analytics

import (
	"sort"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// DefaultInactiveDays is the at-risk inactivity threshold used when none is configured.
const DefaultInactiveDays = 7

// Rank classifies every record. asOf is normally the window end.
func Rank(records []models.EngagementRecord, asOf time.Time, policy RiskPolicy) []models.StudentStanding {
	out := make([]models.StudentStanding, 0, len(records))
	for _, raw := range records {
		r := Normalize(raw)
		rate := OverallRate(r)
		days, never := DaysInactive(r.LastActive, asOf)
		out = append(out, models.StudentStanding{
			EngagementRecord: r,
			OverallRate:      rate,
			RiskLevel:        policy.Classify(r.WellbeingScore, rate),
			DaysInactive:     days,
			NeverActive:      never,
		})
	}
	return out
}

// RankWindow ranks records as of the last instant of the window.
func RankWindow(records []models.EngagementRecord, window Window, policy RiskPolicy) []models.StudentStanding {
	return Rank(records, lastInstant(window), policy)
}

// TopPerformers returns up to n students ordered by overall rate, then streak,
// then student id.
func TopPerformers(standings []models.StudentStanding, n int) []models.StudentStanding {
	out := cloneStandings(standings)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OverallRate != b.OverallRate {
			return a.OverallRate > b.OverallRate
		}
		if a.DailyStreak != b.DailyStreak {
			return a.DailyStreak > b.DailyStreak
		}
		return a.StudentID < b.StudentID
	})
	return limit(out, n)
}

// AtRisk returns students that are high risk or inactive for at least threshold
// days. Never-active students always qualify and sort first.
func AtRisk(standings []models.StudentStanding, threshold int) []models.StudentStanding {
	if threshold <= 0 {
		threshold = DefaultInactiveDays
	}
	out := make([]models.StudentStanding, 0)
	for _, s := range standings {
		if s.RiskLevel == models.RiskHigh || s.NeverActive || s.DaysInactive >= threshold {
			out = append(out, s)
		}
	}
	sortByInactivity(out)
	return out
}

// NonSubmitters returns students with assigned assessments and none completed.
func NonSubmitters(standings []models.StudentStanding) []models.StudentStanding {
	out := make([]models.StudentStanding, 0)
	for _, s := range standings {
		if s.Assessments.Assigned > 0 && s.Assessments.Completed == 0 {
			out = append(out, s)
		}
	}
	sortByInactivity(out)
	return out
}

// Distribution counts standings per risk level.
func Distribution(standings []models.StudentStanding) models.RiskDistribution {
	var d models.RiskDistribution
	for _, s := range standings {
		d.Add(s.RiskLevel)
	}
	return d
}

// BuildLeaderboard assembles every ranked view. n bounds each list; 0 means unbounded.
func BuildLeaderboard(standings []models.StudentStanding, n, inactiveThreshold int) models.Leaderboard {
	return models.Leaderboard{
		TopPerformers: TopPerformers(standings, n),
		AtRisk:        limit(AtRisk(standings, inactiveThreshold), n),
		NonSubmitters: limit(NonSubmitters(standings), n),
		Distribution:  Distribution(standings),
	}
}

func sortByInactivity(out []models.StudentStanding) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NeverActive != b.NeverActive {
			return a.NeverActive
		}
		if a.DaysInactive != b.DaysInactive {
			return a.DaysInactive > b.DaysInactive
		}
		return a.StudentID < b.StudentID
	})
}

func cloneStandings(in []models.StudentStanding) []models.StudentStanding {
	out := make([]models.StudentStanding, len(in))
	copy(out, in)
	return out
}

func limit(in []models.StudentStanding, n int) []models.StudentStanding {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}
