package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

const fixtureSnapshot = `{
  "school_id": "sch-1",
  "classes": [
    {"id": "7A", "school_id": "sch-1", "grade": "7", "section": "A", "teacher_name": "Dewi"},
    {"id": "8A", "school_id": "sch-1", "grade": "8", "section": "A"}
  ],
  "rows": [
    {"student_id": "st-1", "student_name": "Alice", "class_id": "7A", "school_id": "sch-1", "active": true,
     "activity_date": "2024-03-14T00:00:00Z", "assessments": {"assigned": 2, "completed": 2},
     "activities": {"assigned": 1, "completed": 1}, "webinars": {"assigned": 0, "completed": 0},
     "app_openings": 2, "wellbeing_score": 82},
    {"student_id": "st-2", "student_name": "Bima", "class_id": "7A", "school_id": "sch-1", "active": true,
     "activity_date": "2024-03-12T00:00:00Z", "assessments": {"assigned": 2, "completed": 0},
     "activities": {"assigned": 0, "completed": 0}, "webinars": {"assigned": 0, "completed": 0},
     "app_openings": 0, "wellbeing_score": 30}
  ]
}`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureSnapshot), 0o600))
	return path
}

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.Bytes(), err
}

func TestRollupByClass(t *testing.T) {
	out, err := run(t, "rollup", "-f", writeFixture(t), "--as-of", "2024-03-15")
	require.NoError(t, err)

	var rollups []models.ClassRollup
	require.NoError(t, json.Unmarshal(out, &rollups))
	require.Len(t, rollups, 2)
	assert.Equal(t, "7A", rollups[0].ClassID)
	assert.Equal(t, 2, rollups[0].TotalStudents)
	assert.Equal(t, "8A", rollups[1].ClassID)
	assert.Equal(t, 0, rollups[1].TotalStudents)
}

func TestRollupBySchool(t *testing.T) {
	out, err := run(t, "rollup", "-f", writeFixture(t), "--group", "school", "--as-of", "2024-03-15")
	require.NoError(t, err)

	var overview models.SchoolOverview
	require.NoError(t, json.Unmarshal(out, &overview))
	assert.Equal(t, "sch-1", overview.SchoolID)
	assert.Equal(t, 2, overview.TotalStudents)
}

func TestLeaderboard(t *testing.T) {
	out, err := run(t, "leaderboard", "-f", writeFixture(t), "--as-of", "2024-03-15", "--limit", "1")
	require.NoError(t, err)

	var board models.Leaderboard
	require.NoError(t, json.Unmarshal(out, &board))
	require.Len(t, board.TopPerformers, 1)
	assert.Equal(t, "st-1", board.TopPerformers[0].StudentID)
	require.Len(t, board.NonSubmitters, 1)
	assert.Equal(t, "st-2", board.NonSubmitters[0].StudentID)
}

func TestTrendProducesFixedPoints(t *testing.T) {
	out, err := run(t, "trend", "-f", writeFixture(t), "--as-of", "2024-03-15", "--metric", "app_openings")
	require.NoError(t, err)

	var series []models.SeriesPoint
	require.NoError(t, json.Unmarshal(out, &series))
	require.Len(t, series, 4)
	assert.Equal(t, 7*24*time.Hour, series[3].End.Sub(series[0].Start), "points partition the week asked for")
	var total float64
	for _, p := range series {
		total += p.Value
	}
	assert.Equal(t, float64(2), total)
}

func TestCommandErrors(t *testing.T) {
	path := writeFixture(t)

	_, err := run(t, "rollup", "-f", path, "--group", "grade")
	assert.Error(t, err)

	_, err = run(t, "trend", "-f", path, "--bucket", "day")
	assert.Error(t, err)

	_, err = run(t, "leaderboard", "-f", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = run(t, "rollup", "-f", path, "--period", "custom", "--from", "2024-03-10", "--to", "2024-03-01")
	assert.Error(t, err)
}

func TestTokenWritesOnlyTheToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "--subject", "prefetch-bot", "--role", "service")
	require.NoError(t, err)

	var issued models.IssuedToken
	require.NoError(t, json.Unmarshal(out, &issued), "stdout is a single JSON document")
	assert.NotEmpty(t, issued.Token)

	_, err = run(t, "token", "--subject", "u1", "--role", "teacher")
	assert.Error(t, err)
}
