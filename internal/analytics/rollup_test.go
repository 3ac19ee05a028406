package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

func record(id, class string, assessments models.ChannelCount, wellbeing *float64) models.EngagementRecord {
	return models.EngagementRecord{
		StudentID:      id,
		StudentName:    "Student " + id,
		ClassID:        class,
		SchoolID:       "school-1",
		Active:         true,
		Assessments:    assessments,
		Activities:     models.ChannelCount{Assigned: 4, Completed: 3},
		Webinars:       models.ChannelCount{Assigned: 1, Completed: 1},
		WellbeingScore: wellbeing,
	}
}

func sampleRecords() []models.EngagementRecord {
	return []models.EngagementRecord{
		record("s1", "7A", models.ChannelCount{Assigned: 2, Completed: 2}, floatPtr(80)),
		record("s2", "7A", models.ChannelCount{Assigned: 2, Completed: 1}, floatPtr(35)),
		record("s3", "7A", models.ChannelCount{Assigned: 2, Completed: 0}, nil),
		record("s4", "8B", models.ChannelCount{Assigned: 3, Completed: 3}, floatPtr(90)),
	}
}

func TestAggregateClassAssessmentRate(t *testing.T) {
	rollups := Aggregate(sampleRecords(), GroupByClass, DefaultRiskPolicy())
	require.Len(t, rollups, 2)

	a := rollups[0]
	assert.Equal(t, "7A", a.Key)
	assert.Equal(t, 3, a.TotalStudents)
	assert.Equal(t, models.ChannelStats{Done: 3, Total: 6, Rate: 50}, a.Assessments)
	assert.Equal(t, 1, a.AtRiskCount)
	assert.Equal(t, 2, a.WellbeingReported)
	assert.Equal(t, 58, a.AvgWellbeing)
	assert.Equal(t, 3, a.Risk.Total())
}

func TestAggregateConservesTotals(t *testing.T) {
	records := sampleRecords()
	rollups := Aggregate(records, GroupByClass, DefaultRiskPolicy())

	for _, ch := range models.Channels {
		var recDone, recTotal, rollDone, rollTotal int
		for _, r := range records {
			recDone += r.Channel(ch).Completed
			recTotal += r.Channel(ch).Assigned
		}
		for _, r := range rollups {
			stats := map[models.Channel]models.ChannelStats{
				models.ChannelAssessments: r.Assessments,
				models.ChannelActivities:  r.Activities,
				models.ChannelWebinars:    r.Webinars,
			}[ch]
			rollDone += stats.Done
			rollTotal += stats.Total
		}
		assert.Equal(t, recDone, rollDone, ch)
		assert.Equal(t, recTotal, rollTotal, ch)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	records := sampleRecords()
	reversed := make([]models.EngagementRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	assert.Equal(t, Aggregate(records, GroupByClass, DefaultRiskPolicy()), Aggregate(reversed, GroupByClass, DefaultRiskPolicy()))
	assert.Empty(t, Aggregate(nil, GroupByClass, DefaultRiskPolicy()))
}

func TestClassRollupsLeftJoinRoster(t *testing.T) {
	classes := []models.Class{
		{ID: "7A", Grade: "7", Section: "A", TeacherName: "Ibu Sari"},
		{ID: "9C", Grade: "9", Section: "C", TeacherName: "Pak Budi"},
	}
	out := ClassRollups(sampleRecords(), classes, DefaultRiskPolicy())
	require.Len(t, out, 3)

	assert.Equal(t, "7A", out[0].ClassID)
	assert.Equal(t, "Ibu Sari", out[0].TeacherName)
	assert.Equal(t, 3, out[0].TotalStudents)

	assert.Equal(t, "9C", out[1].ClassID)
	assert.Zero(t, out[1].TotalStudents)
	assert.Zero(t, out[1].WellbeingReported)
	assert.Equal(t, "9", out[1].Grade)

	assert.Equal(t, "8B", out[2].ClassID)
	assert.Empty(t, out[2].Grade)
	assert.Equal(t, 1, out[2].TotalStudents)
}

func TestOverviewDistributionSumsToStudents(t *testing.T) {
	o := Overview("school-1", sampleRecords(), DefaultRiskPolicy())

	assert.Equal(t, 4, o.TotalStudents)
	assert.Equal(t, 2, o.TotalClasses)
	assert.Equal(t, o.TotalStudents, o.RiskDistribution.Total())
	assert.Equal(t, 6, o.Engagement.TotalAssessmentsCompleted)
	assert.Equal(t, 12, o.Engagement.TotalActivitiesCompleted)
	assert.Equal(t, 3, o.WellbeingReported)

	empty := Overview("school-1", nil, DefaultRiskPolicy())
	assert.Zero(t, empty.TotalStudents)
	assert.Zero(t, empty.Assessments.Rate)
	assert.Zero(t, empty.WellbeingReported)
}

func dailyRow(student, class string, date *time.Time, assessments models.ChannelCount, opens int, wellbeing *float64) models.DailyEngagement {
	return models.DailyEngagement{
		StudentID:      student,
		StudentName:    "Student " + student,
		ClassID:        class,
		SchoolID:       "school-1",
		Active:         true,
		ActivityDate:   date,
		Assessments:    assessments,
		AppOpenings:    opens,
		WellbeingScore: wellbeing,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCollapse(t *testing.T) {
	window := Window{Start: day(2024, 3, 1), End: day(2024, 3, 8), Period: PeriodWeek}
	rows := []models.DailyEngagement{
		dailyRow("s1", "7A", timePtr(day(2024, 3, 5)), models.ChannelCount{Assigned: 1, Completed: 1}, 2, floatPtr(60)),
		dailyRow("s1", "7A", timePtr(day(2024, 3, 6)), models.ChannelCount{Assigned: 1}, 1, nil),
		dailyRow("s1", "7A", timePtr(day(2024, 3, 7)), models.ChannelCount{Assigned: 1, Completed: 1}, 0, floatPtr(80)),
		dailyRow("s1", "7A", timePtr(day(2024, 2, 20)), models.ChannelCount{Assigned: 9, Completed: 9}, 9, floatPtr(10)),
		dailyRow("s2", "7B", nil, models.ChannelCount{}, 0, nil),
	}

	records := Collapse(rows, window)
	require.Len(t, records, 2)

	s1 := records[0]
	assert.Equal(t, "s1", s1.StudentID)
	assert.Equal(t, models.ChannelCount{Assigned: 3, Completed: 2}, s1.Assessments)
	assert.Equal(t, 3, s1.DailyAppOpenings)
	assert.Equal(t, 3, s1.DailyStreak)
	require.NotNil(t, s1.LastActive)
	assert.Equal(t, day(2024, 3, 7), *s1.LastActive)
	require.NotNil(t, s1.WellbeingScore)
	assert.Equal(t, 70.0, *s1.WellbeingScore)

	s2 := records[1]
	assert.Equal(t, "s2", s2.StudentID)
	assert.Nil(t, s2.LastActive)
	assert.Nil(t, s2.WellbeingScore)
	assert.Zero(t, s2.DailyStreak)
}

func TestCollapseTodayKeepsEarlierActivity(t *testing.T) {
	window := Window{Start: day(2024, 3, 15), End: day(2024, 3, 16), Period: PeriodToday}
	rows := []models.DailyEngagement{
		dailyRow("s1", "7A", timePtr(day(2024, 3, 14)), models.ChannelCount{Assigned: 1, Completed: 1}, 1, floatPtr(20)),
		dailyRow("s2", "7A", timePtr(day(2024, 3, 13)), models.ChannelCount{}, 1, nil),
		dailyRow("s2", "7A", timePtr(day(2024, 3, 14)), models.ChannelCount{}, 2, nil),
		dailyRow("s2", "7A", timePtr(day(2024, 3, 15)), models.ChannelCount{Assigned: 1, Completed: 1}, 1, floatPtr(75)),
		dailyRow("s3", "7B", nil, models.ChannelCount{}, 0, nil),
		dailyRow("s4", "7B", nil, models.ChannelCount{}, 0, nil),
	}
	rows[4].LastActive = timePtr(day(2024, 2, 1))

	records := Collapse(rows, window)
	require.Len(t, records, 4)

	s1 := records[0]
	require.NotNil(t, s1.LastActive)
	assert.Equal(t, day(2024, 3, 14), *s1.LastActive)
	assert.Zero(t, s1.Assessments.Assigned, "days before the window stay out of the totals")
	assert.Zero(t, s1.DailyAppOpenings)
	assert.Nil(t, s1.WellbeingScore)
	assert.Zero(t, s1.DailyStreak)

	s2 := records[1]
	assert.Equal(t, 3, s2.DailyStreak, "streak runs back past the window start")
	assert.Equal(t, 1, s2.DailyAppOpenings)

	s3 := records[2]
	require.NotNil(t, s3.LastActive)
	assert.Equal(t, day(2024, 2, 1), *s3.LastActive)
	assert.Nil(t, records[3].LastActive)

	standings := RankWindow(records, window, DefaultRiskPolicy())
	byID := map[string]models.StudentStanding{}
	for _, st := range standings {
		byID[st.StudentID] = st
	}
	assert.False(t, byID["s1"].NeverActive)
	assert.Equal(t, 1, byID["s1"].DaysInactive)
	assert.False(t, byID["s3"].NeverActive)
	assert.True(t, byID["s4"].NeverActive)

	atRisk := AtRisk(standings, DefaultInactiveDays)
	ids := make([]string, 0, len(atRisk))
	for _, st := range atRisk {
		ids = append(ids, st.StudentID)
	}
	assert.NotContains(t, ids, "s2")
	assert.Contains(t, ids, "s3")
	assert.Contains(t, ids, "s4")
}

func TestActivityLogSortsAndFilters(t *testing.T) {
	window := Window{Start: day(2024, 3, 1), End: day(2024, 3, 8)}
	rows := []models.DailyEngagement{
		dailyRow("s1", "7A", timePtr(day(2024, 3, 6)), models.ChannelCount{}, 1, nil),
		dailyRow("s1", "7A", timePtr(day(2024, 3, 2)), models.ChannelCount{Assigned: 1, Completed: 1}, 0, nil),
		dailyRow("s1", "7A", timePtr(day(2024, 3, 9)), models.ChannelCount{}, 1, nil),
		dailyRow("s1", "7A", nil, models.ChannelCount{}, 0, nil),
	}
	log := ActivityLog(rows, window)
	require.Len(t, log, 2)
	assert.Equal(t, day(2024, 3, 2), log[0].Date)
	assert.True(t, log[0].ActivityCompleted)
	assert.True(t, log[1].AppOpened)
}
