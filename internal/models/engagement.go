package models

import "time"

// RiskLevel is the three-valued wellness/engagement risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels: low < medium < high. Unknown values rank as medium.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskHigh:
		return 2
	default:
		return 1
	}
}

// Channel names an engagement channel.
type Channel string

const (
	ChannelAssessments Channel = "assessments"
	ChannelActivities  Channel = "activities"
	ChannelWebinars    Channel = "webinars"
)

// Channels lists all engagement channels in display order.
var Channels = []Channel{ChannelAssessments, ChannelActivities, ChannelWebinars}

// ChannelCount holds assigned/completed counts for one channel.
type ChannelCount struct {
	Assigned  int `json:"assigned"`
	Completed int `json:"completed"`
}

// Add returns the element-wise sum.
func (c ChannelCount) Add(o ChannelCount) ChannelCount {
	return ChannelCount{Assigned: c.Assigned + o.Assigned, Completed: c.Completed + o.Completed}
}

// EngagementRecord summarises one student over one time window.
// WellbeingScore is nil when the student has no reported score in the window.
type EngagementRecord struct {
	StudentID        string       `json:"student_id"`
	StudentName      string       `json:"student_name,omitempty"`
	ClassID          string       `json:"class_id"`
	SchoolID         string       `json:"school_id"`
	Active           bool         `json:"active"`
	Assessments      ChannelCount `json:"assessments"`
	Activities       ChannelCount `json:"activities"`
	Webinars         ChannelCount `json:"webinars"`
	DailyAppOpenings int          `json:"daily_app_openings"`
	DailyStreak      int          `json:"daily_streak"`
	LastActive       *time.Time   `json:"last_active,omitempty"`
	WellbeingScore   *float64     `json:"wellbeing_score,omitempty"`
}

// Channel returns the counts for the named channel.
func (r EngagementRecord) Channel(ch Channel) ChannelCount {
	switch ch {
	case ChannelAssessments:
		return r.Assessments
	case ChannelActivities:
		return r.Activities
	case ChannelWebinars:
		return r.Webinars
	default:
		return ChannelCount{}
	}
}

// DailyEngagement is one student-day row from the record store. ActivityDate is nil
// for enrolled students with no activity inside the queried range. LastActive is
// the student's latest active day before the range end over all history, nil
// when there is none.
type DailyEngagement struct {
	StudentID      string       `db:"student_id" json:"student_id"`
	StudentName    string       `db:"student_name" json:"student_name"`
	ClassID        string       `db:"class_id" json:"class_id"`
	SchoolID       string       `db:"school_id" json:"school_id"`
	Active         bool         `db:"active" json:"active"`
	ActivityDate   *time.Time   `db:"activity_date" json:"activity_date,omitempty"`
	Assessments    ChannelCount `db:"-" json:"assessments"`
	Activities     ChannelCount `db:"-" json:"activities"`
	Webinars       ChannelCount `db:"-" json:"webinars"`
	AppOpenings    int          `db:"app_openings" json:"app_openings"`
	WellbeingScore *float64     `db:"wellbeing_score" json:"wellbeing_score,omitempty"`
	LastActive     *time.Time   `db:"last_active" json:"last_active,omitempty"`
}

// ActivityCompleted reports whether any channel item was completed that day.
func (d DailyEngagement) ActivityCompleted() bool {
	return d.Assessments.Completed+d.Activities.Completed+d.Webinars.Completed > 0
}

// DailyActivity is one entry of a student's activity log used for streaks.
type DailyActivity struct {
	Date              time.Time `json:"date"`
	ActivityCompleted bool      `json:"activity_completed"`
	AppOpened         bool      `json:"app_opened"`
}

// Active reports whether the day counts towards a streak.
func (d DailyActivity) Active() bool {
	return d.ActivityCompleted || d.AppOpened
}

// ChannelStats is the rollup triple for a channel. Rate is a percentage in [0,100].
type ChannelStats struct {
	Done  int     `json:"done"`
	Total int     `json:"total"`
	Rate  float64 `json:"rate"`
}

// Class is a roster entry used to left-join rollups.
type Class struct {
	ID          string `db:"id" json:"id"`
	SchoolID    string `db:"school_id" json:"school_id"`
	Grade       string `db:"grade" json:"grade"`
	Section     string `db:"section" json:"section"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// Rollup is the grouping-agnostic aggregate produced by the aggregator.
type Rollup struct {
	Key               string           `json:"key"`
	TotalStudents     int              `json:"total_students"`
	Assessments       ChannelStats     `json:"assessments"`
	Activities        ChannelStats     `json:"activities"`
	Webinars          ChannelStats     `json:"webinars"`
	AppOpenings       int              `json:"app_openings"`
	AtRiskCount       int              `json:"at_risk_count"`
	AvgWellbeing      int              `json:"avg_wellbeing"`
	WellbeingReported int              `json:"wellbeing_reported"`
	Risk              RiskDistribution `json:"risk_distribution"`
}

// ClassRollup is a class-level rollup enriched with roster metadata.
type ClassRollup struct {
	ClassID           string       `json:"class_id"`
	Grade             string       `json:"grade,omitempty"`
	Section           string       `json:"section,omitempty"`
	TeacherID         string       `json:"teacher_id,omitempty"`
	TeacherName       string       `json:"teacher_name,omitempty"`
	TotalStudents     int          `json:"total_students"`
	Assessments       ChannelStats `json:"assessments"`
	Activities        ChannelStats `json:"activities"`
	Webinars          ChannelStats `json:"webinars"`
	AppOpenings       int          `json:"app_openings"`
	AtRiskCount       int          `json:"at_risk_count"`
	AvgWellbeing      int          `json:"avg_wellbeing"`
	WellbeingReported int          `json:"wellbeing_reported"`
}

// RiskDistribution counts students per risk level.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Total returns the number of classified students.
func (d RiskDistribution) Total() int {
	return d.Low + d.Medium + d.High
}

// Add increments the bucket for level.
func (d *RiskDistribution) Add(level RiskLevel) {
	switch level {
	case RiskLow:
		d.Low++
	case RiskHigh:
		d.High++
	default:
		d.Medium++
	}
}

// EngagementTotals summarises raw engagement volume.
type EngagementTotals struct {
	TotalAppOpenings          int `json:"total_app_openings"`
	TotalAssessmentsCompleted int `json:"total_assessments_completed"`
	TotalActivitiesCompleted  int `json:"total_activities_completed"`
}

// SchoolOverview aggregates every class in scope.
type SchoolOverview struct {
	SchoolID          string           `json:"school_id"`
	TotalStudents     int              `json:"total_students"`
	TotalClasses      int              `json:"total_classes"`
	RiskDistribution  RiskDistribution `json:"risk_distribution"`
	Engagement        EngagementTotals `json:"engagement"`
	Assessments       ChannelStats     `json:"assessments"`
	Activities        ChannelStats     `json:"activities"`
	Webinars          ChannelStats     `json:"webinars"`
	AvgWellbeing      int              `json:"avg_wellbeing"`
	WellbeingReported int              `json:"wellbeing_reported"`
}

// StudentStanding is a classified student used by leaderboards and student lists.
type StudentStanding struct {
	EngagementRecord
	OverallRate  float64   `json:"overall_rate"`
	RiskLevel    RiskLevel `json:"risk_level"`
	DaysInactive int       `json:"days_inactive"`
	NeverActive  bool      `json:"never_active"`
}

// Leaderboard bundles the ranked views for one scope.
type Leaderboard struct {
	TopPerformers []StudentStanding `json:"top_performers"`
	AtRisk        []StudentStanding `json:"at_risk"`
	NonSubmitters []StudentStanding `json:"non_submitters"`
	Distribution  RiskDistribution  `json:"risk_distribution"`
}

// StudentHistory is the student-detail payload: classified record plus day log.
type StudentHistory struct {
	Standing StudentStanding   `json:"standing"`
	Days     []DailyEngagement `json:"days"`
}

// ClassDetail is a class rollup with its (paginated) student standings.
type ClassDetail struct {
	Rollup   ClassRollup       `json:"rollup"`
	Students []StudentStanding `json:"students"`
}

// SeriesPoint is one bucket of a trend series.
type SeriesPoint struct {
	BucketLabel string    `json:"bucket_label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Value       float64   `json:"value"`
}

// EngagementFilter scopes record store queries to a window and an entity.
// HistoryFrom, when before Start, widens the returned days backwards so that
// streaks and inactivity can look past the window start.
type EngagementFilter struct {
	SchoolID    string
	ClassID     string
	StudentID   string
	Search      string
	Start       time.Time
	End         time.Time
	HistoryFrom time.Time
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
