package analytics

import (
	"sort"
	"time"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

// GroupBy selects the rollup key.
type GroupBy string

const (
	GroupByClass  GroupBy = "class"
	GroupBySchool GroupBy = "school"
)

func (g GroupBy) key(r models.EngagementRecord) string {
	if g == GroupBySchool {
		return r.SchoolID
	}
	return r.ClassID
}

type accumulator struct {
	rollup models.Rollup
	scores []float64
}

func (a *accumulator) add(r models.EngagementRecord, policy RiskPolicy) {
	a.rollup.TotalStudents++
	addChannel(&a.rollup.Assessments, r.Assessments)
	addChannel(&a.rollup.Activities, r.Activities)
	addChannel(&a.rollup.Webinars, r.Webinars)
	a.rollup.AppOpenings += r.DailyAppOpenings

	level := policy.Classify(r.WellbeingScore, OverallRate(r))
	a.rollup.Risk.Add(level)
	if level == models.RiskHigh {
		a.rollup.AtRiskCount++
	}
	if r.WellbeingScore != nil {
		a.scores = append(a.scores, *r.WellbeingScore)
	}
}

func (a *accumulator) finish() models.Rollup {
	out := a.rollup
	finishChannel(&out.Assessments)
	finishChannel(&out.Activities)
	finishChannel(&out.Webinars)
	out.WellbeingReported = len(a.scores)
	out.AvgWellbeing = RoundWellbeing(WellbeingAggregate(a.scores))
	return out
}

func addChannel(stats *models.ChannelStats, c models.ChannelCount) {
	stats.Done += c.Completed
	stats.Total += c.Assigned
}

func finishChannel(stats *models.ChannelStats) {
	stats.Rate = CompletionRate(stats.Done, stats.Total)
}

// Aggregate produces one rollup per distinct group key, sorted by key. Groups
// with no members never appear.
func Aggregate(records []models.EngagementRecord, groupBy GroupBy, policy RiskPolicy) []models.Rollup {
	groups := make(map[string]*accumulator)
	for _, raw := range records {
		r := Normalize(raw)
		k := groupBy.key(r)
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{rollup: models.Rollup{Key: k}}
			groups[k] = acc
		}
		acc.add(r, policy)
	}

	out := make([]models.Rollup, 0, len(groups))
	for _, acc := range groups {
		out = append(out, acc.finish())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ClassRollups aggregates by class and left-joins the roster: roster classes
// without members are zero-filled, unknown classes keep only their id.
func ClassRollups(records []models.EngagementRecord, classes []models.Class, policy RiskPolicy) []models.ClassRollup {
	return JoinRoster(Aggregate(records, GroupByClass, policy), classes)
}

// JoinRoster enriches class-keyed rollups with roster metadata. Output follows
// roster order, then unknown classes by id.
func JoinRoster(rollups []models.Rollup, classes []models.Class) []models.ClassRollup {
	byKey := make(map[string]models.Rollup, len(rollups))
	for _, r := range rollups {
		byKey[r.Key] = r
	}

	out := make([]models.ClassRollup, 0, len(classes)+len(rollups))
	seen := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		if _, dup := seen[class.ID]; dup {
			continue
		}
		seen[class.ID] = struct{}{}
		cr := toClassRollup(class.ID, byKey[class.ID])
		cr.Grade = class.Grade
		cr.Section = class.Section
		cr.TeacherID = class.TeacherID
		cr.TeacherName = class.TeacherName
		out = append(out, cr)
	}
	for _, r := range rollups {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		out = append(out, toClassRollup(r.Key, r))
	}
	return out
}

func toClassRollup(id string, r models.Rollup) models.ClassRollup {
	return models.ClassRollup{
		ClassID:           id,
		TotalStudents:     r.TotalStudents,
		Assessments:       r.Assessments,
		Activities:        r.Activities,
		Webinars:          r.Webinars,
		AppOpenings:       r.AppOpenings,
		AtRiskCount:       r.AtRiskCount,
		AvgWellbeing:      r.AvgWellbeing,
		WellbeingReported: r.WellbeingReported,
	}
}

// Overview totals every record in scope into a school-level summary.
func Overview(schoolID string, records []models.EngagementRecord, policy RiskPolicy) models.SchoolOverview {
	acc := &accumulator{rollup: models.Rollup{Key: schoolID}}
	classes := make(map[string]struct{})
	for _, raw := range records {
		r := Normalize(raw)
		acc.add(r, policy)
		classes[r.ClassID] = struct{}{}
	}
	r := acc.finish()

	return models.SchoolOverview{
		SchoolID:         schoolID,
		TotalStudents:    r.TotalStudents,
		TotalClasses:     len(classes),
		RiskDistribution: r.Risk,
		Engagement: models.EngagementTotals{
			TotalAppOpenings:          r.AppOpenings,
			TotalAssessmentsCompleted: r.Assessments.Done,
			TotalActivitiesCompleted:  r.Activities.Done,
		},
		Assessments:       r.Assessments,
		Activities:        r.Activities,
		Webinars:          r.Webinars,
		AvgWellbeing:      r.AvgWellbeing,
		WellbeingReported: r.WellbeingReported,
	}
}

// Collapse folds daily rows into one record per student for the window. Only
// rows inside the window feed totals and wellbeing. Earlier rows are history:
// together with a row's LastActive they place the student's last active day
// and streak, which may predate the window. Rows with a nil date only
// establish membership.
func Collapse(rows []models.DailyEngagement, window Window) []models.EngagementRecord {
	type state struct {
		record models.EngagementRecord
		scores []float64
		log    []models.DailyActivity
	}

	students := make(map[string]*state)
	for _, row := range rows {
		st, ok := students[row.StudentID]
		if !ok {
			st = &state{record: models.EngagementRecord{
				StudentID:   row.StudentID,
				StudentName: row.StudentName,
				ClassID:     row.ClassID,
				SchoolID:    row.SchoolID,
				Active:      row.Active,
			}}
			students[row.StudentID] = st
		}
		rec := &st.record
		if row.LastActive != nil && row.LastActive.Before(window.End) {
			seen(rec, *row.LastActive)
		}
		if row.ActivityDate == nil || !row.ActivityDate.Before(window.End) {
			continue
		}

		entry := models.DailyActivity{
			Date:              *row.ActivityDate,
			ActivityCompleted: row.ActivityCompleted(),
			AppOpened:         row.AppOpenings > 0,
		}
		st.log = append(st.log, entry)
		if entry.Active() {
			seen(rec, entry.Date)
		}
		if !window.Contains(*row.ActivityDate) {
			continue
		}

		rec.Assessments = rec.Assessments.Add(row.Assessments)
		rec.Activities = rec.Activities.Add(row.Activities)
		rec.Webinars = rec.Webinars.Add(row.Webinars)
		rec.DailyAppOpenings += row.AppOpenings
		if row.WellbeingScore != nil {
			st.scores = append(st.scores, *row.WellbeingScore)
		}
	}

	asOf := lastInstant(window)
	out := make([]models.EngagementRecord, 0, len(students))
	for _, st := range students {
		if len(st.scores) > 0 {
			mean := WellbeingAggregate(st.scores)
			st.record.WellbeingScore = &mean
		}
		st.record.DailyStreak = Streak(st.log, asOf)
		out = append(out, Normalize(st.record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func seen(rec *models.EngagementRecord, day time.Time) {
	if rec.LastActive == nil || day.After(*rec.LastActive) {
		d := day
		rec.LastActive = &d
	}
}

// ActivityLog extracts the per-day activity entries of rows inside the window.
func ActivityLog(rows []models.DailyEngagement, window Window) []models.DailyActivity {
	log := make([]models.DailyActivity, 0, len(rows))
	for _, row := range rows {
		if row.ActivityDate == nil || !window.Contains(*row.ActivityDate) {
			continue
		}
		log = append(log, models.DailyActivity{
			Date:              *row.ActivityDate,
			ActivityCompleted: row.ActivityCompleted(),
			AppOpened:         row.AppOpenings > 0,
		})
	}
	sort.SliceStable(log, func(i, j int) bool { return log[i].Date.Before(log[j].Date) })
	return log
}

func lastInstant(w Window) time.Time {
	if w.End.IsZero() {
		return time.Now()
	}
	return w.End.Add(-time.Nanosecond)
}
