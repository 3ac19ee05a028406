package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

func TestBuildSeriesKeepsEmptyBuckets(t *testing.T) {
	window := Window{Start: day(2024, 3, 1), End: day(2024, 3, 31), Period: PeriodMonth}
	rows := []models.DailyEngagement{
		dailyRow("s1", "7A", timePtr(day(2024, 3, 2)), models.ChannelCount{Assigned: 2, Completed: 1}, 3, floatPtr(60)),
		dailyRow("s2", "7A", timePtr(day(2024, 3, 3)), models.ChannelCount{Assigned: 2, Completed: 2}, 1, nil),
		dailyRow("s1", "7A", timePtr(day(2024, 3, 12)), models.ChannelCount{Assigned: 4, Completed: 1}, 0, nil),
		dailyRow("s3", "7A", nil, models.ChannelCount{}, 0, nil),
	}

	series, err := BuildSeries(rows, window, BucketWeek, MetricAssessmentRate, DefaultTrendPoints(), DefaultRiskPolicy())
	require.NoError(t, err)
	require.Len(t, series, 4)

	assert.Equal(t, "2024-03-01", series[0].BucketLabel)
	assert.Equal(t, 75.0, series[0].Value)
	assert.Equal(t, 25.0, series[1].Value)
	assert.Equal(t, 0.0, series[2].Value)
	assert.Equal(t, 0.0, series[3].Value, "trailing gap is a zero point")
	assert.Equal(t, window.End, series[3].End)
	assert.Equal(t, series[0].End, series[1].Start)
}

func TestBuildSeriesMetrics(t *testing.T) {
	window := Window{Start: day(2024, 1, 1), End: day(2024, 1, 7)}
	rows := []models.DailyEngagement{
		dailyRow("s1", "7A", timePtr(day(2024, 1, 2)), models.ChannelCount{Assigned: 1, Completed: 1}, 4, floatPtr(30)),
		dailyRow("s2", "7A", timePtr(day(2024, 1, 2)), models.ChannelCount{Assigned: 1}, 2, floatPtr(91)),
	}
	points := TrendPoints{Weekly: 1, Monthly: 1}

	value := func(m Metric) float64 {
		series, err := BuildSeries(rows, window, BucketWeek, m, points, DefaultRiskPolicy())
		require.NoError(t, err)
		require.Len(t, series, 1)
		return series[0].Value
	}

	assert.Equal(t, 6.0, value(MetricAppOpenings))
	assert.Equal(t, 61.0, value(MetricAvgWellbeing))
	assert.Equal(t, 2.0, value(MetricActiveStudents))
	assert.Equal(t, 2.0, value(MetricAtRiskCount))
	assert.Equal(t, 50.0, value(MetricOverallRate))
}

func TestBuildSeriesMonthlyPointCount(t *testing.T) {
	window := Window{Start: day(2024, 1, 1), End: day(2024, 6, 30), Period: PeriodCustom}

	series, err := BuildSeries(nil, window, BucketMonth, MetricOverallRate, DefaultTrendPoints(), DefaultRiskPolicy())
	require.NoError(t, err)
	assert.Len(t, series, 6)
	for _, p := range series {
		assert.Zero(t, p.Value)
	}
}

func TestBuildSeriesRejectsUnknownMetric(t *testing.T) {
	window := Window{Start: day(2024, 1, 1), End: day(2024, 1, 7)}
	_, err := BuildSeries(nil, window, BucketWeek, Metric("mood"), DefaultTrendPoints(), DefaultRiskPolicy())
	assert.Error(t, err)

	_, err = BuildSeries(nil, Window{}, BucketWeek, MetricOverallRate, DefaultTrendPoints(), DefaultRiskPolicy())
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseBucketAndMetric(t *testing.T) {
	b, err := ParseBucket("")
	require.NoError(t, err)
	assert.Equal(t, BucketWeek, b)
	_, err = ParseBucket("day")
	assert.Error(t, err)

	m, err := ParseMetric("App_Openings")
	require.NoError(t, err)
	assert.Equal(t, MetricAppOpenings, m)
}
