package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

// dailyEngagementSelect returns student-days in [$1, $2) plus, per student, the
// latest active day before $2 over all history.
const dailyEngagementSelect = `SELECT s.id AS student_id, s.full_name AS student_name, s.class_id, s.school_id, s.active,
        d.activity_date,
        COALESCE(d.assessments_assigned, 0) AS assessments_assigned, COALESCE(d.assessments_completed, 0) AS assessments_completed,
        COALESCE(d.activities_assigned, 0) AS activities_assigned, COALESCE(d.activities_completed, 0) AS activities_completed,
        COALESCE(d.webinars_assigned, 0) AS webinars_assigned, COALESCE(d.webinars_completed, 0) AS webinars_completed,
        COALESCE(d.app_openings, 0) AS app_openings, d.wellbeing_score,
        la.last_active
        FROM students s
        LEFT JOIN engagement_daily d ON d.student_id = s.id AND d.activity_date >= $1 AND d.activity_date < $2
        LEFT JOIN LATERAL (
            SELECT MAX(h.activity_date) AS last_active FROM engagement_daily h
            WHERE h.student_id = s.id AND h.activity_date < $2
              AND (COALESCE(h.app_openings, 0) > 0
                OR COALESCE(h.assessments_completed, 0) + COALESCE(h.activities_completed, 0) + COALESCE(h.webinars_completed, 0) > 0)
        ) la ON TRUE
        WHERE 1=1`

type dailyEngagementRow struct {
	StudentID            string     `db:"student_id"`
	StudentName          string     `db:"student_name"`
	ClassID              string     `db:"class_id"`
	SchoolID             string     `db:"school_id"`
	Active               bool       `db:"active"`
	ActivityDate         *time.Time `db:"activity_date"`
	AssessmentsAssigned  int        `db:"assessments_assigned"`
	AssessmentsCompleted int        `db:"assessments_completed"`
	ActivitiesAssigned   int        `db:"activities_assigned"`
	ActivitiesCompleted  int        `db:"activities_completed"`
	WebinarsAssigned     int        `db:"webinars_assigned"`
	WebinarsCompleted    int        `db:"webinars_completed"`
	AppOpenings          int        `db:"app_openings"`
	WellbeingScore       *float64   `db:"wellbeing_score"`
	LastActive           *time.Time `db:"last_active"`
}

// EngagementRepository reads the engagement record store.
type EngagementRepository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewEngagementRepository instantiates the repository. Activity dates are
// returned as midnight in loc.
func NewEngagementRepository(db *sqlx.DB, loc *time.Location) *EngagementRepository {
	if loc == nil {
		loc = time.Local
	}
	return &EngagementRepository{db: db, loc: loc}
}

// DailyEngagement returns one row per student-day inside [Start, End), reaching
// back to HistoryFrom when that is earlier. Students without activity in range
// yield a single row with a nil date.
func (r *EngagementRepository) DailyEngagement(ctx context.Context, filter models.EngagementFilter) ([]models.DailyEngagement, error) {
	start := filter.Start
	if !filter.HistoryFrom.IsZero() && filter.HistoryFrom.Before(start) {
		start = filter.HistoryFrom
	}
	from, to := r.dateBounds(start, filter.End)

	var builder strings.Builder
	builder.WriteString(dailyEngagementSelect)
	args := []interface{}{from, to}
	if filter.SchoolID != "" {
		args = append(args, filter.SchoolID)
		builder.WriteString(fmt.Sprintf(" AND s.school_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		builder.WriteString(fmt.Sprintf(" AND s.class_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND s.id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		builder.WriteString(fmt.Sprintf(" AND (s.full_name ILIKE $%d OR s.id ILIKE $%d)", len(args), len(args)))
	}
	builder.WriteString(" ORDER BY s.id, d.activity_date")

	var rows []dailyEngagementRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query daily engagement: %w", err)
	}

	result := make([]models.DailyEngagement, 0, len(rows))
	for _, row := range rows {
		result = append(result, r.toModel(row))
	}
	return result, nil
}

// ListClasses returns the class roster of a school.
func (r *EngagementRepository) ListClasses(ctx context.Context, schoolID, search string) ([]models.Class, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT id, school_id, grade, section, COALESCE(teacher_id, '') AS teacher_id, COALESCE(teacher_name, '') AS teacher_name
        FROM classes WHERE school_id = $1`)
	args := []interface{}{schoolID}
	if search = strings.TrimSpace(search); search != "" {
		args = append(args, "%"+search+"%")
		builder.WriteString(fmt.Sprintf(" AND (id ILIKE $%d OR grade ILIKE $%d OR section ILIKE $%d OR teacher_name ILIKE $%d)", len(args), len(args), len(args), len(args)))
	}
	builder.WriteString(" ORDER BY grade, section, id")

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// GetClass loads a single roster entry.
func (r *EngagementRepository) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	const query = `SELECT id, school_id, grade, section, COALESCE(teacher_id, '') AS teacher_id, COALESCE(teacher_name, '') AS teacher_name
        FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &class, nil
}

// ActiveSchools lists schools with at least one active student.
func (r *EngagementRepository) ActiveSchools(ctx context.Context) ([]string, error) {
	var schools []string
	if err := r.db.SelectContext(ctx, &schools, "SELECT DISTINCT school_id FROM students WHERE active = TRUE ORDER BY school_id"); err != nil {
		return nil, fmt.Errorf("list active schools: %w", err)
	}
	return schools, nil
}

// Ping checks connectivity for readiness probes.
func (r *EngagementRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// dateBounds converts an instant window into inclusive/exclusive calendar dates
// covering every day it touches.
func (r *EngagementRepository) dateBounds(start, end time.Time) (string, string) {
	const layout = "2006-01-02"
	if start.IsZero() || end.IsZero() {
		now := time.Now().In(r.loc)
		return now.AddDate(0, 0, -7).Format(layout), now.AddDate(0, 0, 1).Format(layout)
	}
	from := start.In(r.loc)
	last := end.In(r.loc).Add(-time.Nanosecond)
	return from.Format(layout), last.AddDate(0, 0, 1).Format(layout)
}

func (r *EngagementRepository) toModel(row dailyEngagementRow) models.DailyEngagement {
	out := models.DailyEngagement{
		StudentID:      row.StudentID,
		StudentName:    row.StudentName,
		ClassID:        row.ClassID,
		SchoolID:       row.SchoolID,
		Active:         row.Active,
		Assessments:    models.ChannelCount{Assigned: row.AssessmentsAssigned, Completed: row.AssessmentsCompleted},
		Activities:     models.ChannelCount{Assigned: row.ActivitiesAssigned, Completed: row.ActivitiesCompleted},
		Webinars:       models.ChannelCount{Assigned: row.WebinarsAssigned, Completed: row.WebinarsCompleted},
		AppOpenings:    row.AppOpenings,
		WellbeingScore: row.WellbeingScore,
	}
	out.ActivityDate = r.localDate(row.ActivityDate)
	out.LastActive = r.localDate(row.LastActive)
	return out
}

// localDate reads a DATE column as midnight in the configured zone.
func (r *EngagementRepository) localDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	return &date
}
