package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/middleware"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

type apiEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

var testWindow = analytics.Window{
	Start:  time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	End:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	Period: analytics.PeriodWeek,
}

type fakeEngagementSrv struct {
	err         error
	lastScope   string
	lastSchool  string
	lastID      string
	lastReq     analytics.WindowRequest
	lastFilters analytics.FilterState
	lastLimit   int
	lastTrend   service.TrendQuery
}

func (f *fakeEngagementSrv) Overview(_ context.Context, schoolID string, req analytics.WindowRequest) (*service.View[models.SchoolOverview], error) {
	f.lastSchool, f.lastReq = schoolID, req
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[models.SchoolOverview]{Data: models.SchoolOverview{SchoolID: schoolID, TotalStudents: 3}, Window: testWindow, CacheHit: true}, nil
}

func (f *fakeEngagementSrv) Classes(_ context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[[]models.ClassRollup], error) {
	f.lastSchool, f.lastReq, f.lastFilters = schoolID, req, filters
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[[]models.ClassRollup]{
		Data:       []models.ClassRollup{{ClassID: "7A"}},
		Window:     testWindow,
		Pagination: &models.Pagination{Page: filters.Page, PageSize: filters.PageSize, TotalCount: 1, TotalPages: 1},
	}, nil
}

func (f *fakeEngagementSrv) Class(_ context.Context, scopeSchool, classID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[models.ClassDetail], error) {
	f.lastScope, f.lastID, f.lastReq, f.lastFilters = scopeSchool, classID, req, filters
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[models.ClassDetail]{Data: models.ClassDetail{Rollup: models.ClassRollup{ClassID: classID}}, Window: testWindow}, nil
}

func (f *fakeEngagementSrv) Students(_ context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[[]models.StudentStanding], error) {
	f.lastSchool, f.lastReq, f.lastFilters = schoolID, req, filters
	return &service.View[[]models.StudentStanding]{Data: []models.StudentStanding{}, Window: testWindow}, f.err
}

func (f *fakeEngagementSrv) Student(_ context.Context, scopeSchool, studentID string, req analytics.WindowRequest) (*service.View[models.StudentHistory], error) {
	f.lastScope, f.lastID, f.lastReq = scopeSchool, studentID, req
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[models.StudentHistory]{Window: testWindow}, nil
}

func (f *fakeEngagementSrv) Leaderboard(_ context.Context, schoolID string, req analytics.WindowRequest, limit int) (*service.View[models.Leaderboard], error) {
	f.lastSchool, f.lastReq, f.lastLimit = schoolID, req, limit
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[models.Leaderboard]{Window: testWindow}, nil
}

func (f *fakeEngagementSrv) Trend(_ context.Context, q service.TrendQuery) (*service.View[[]models.SeriesPoint], error) {
	f.lastTrend = q
	if f.err != nil {
		return nil, f.err
	}
	return &service.View[[]models.SeriesPoint]{Data: make([]models.SeriesPoint, 4), Window: testWindow}, nil
}

func (f *fakeEngagementSrv) Refresh(_ context.Context, schoolID string) (int, error) {
	f.lastSchool = schoolID
	return 4, f.err
}

func newEngagementRouter(srv *fakeEngagementSrv) *gin.Engine {
	return newScopedEngagementRouter(srv, &models.JWTClaims{UserID: "u1", Role: models.RoleCounselor, SchoolID: "sch-1"})
}

func newScopedEngagementRouter(srv *fakeEngagementSrv, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewEngagementHandler(srv, validator.New(), time.UTC, 20)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	r.GET("/schools/:schoolId/overview", h.Overview)
	r.GET("/schools/:schoolId/classes", h.Classes)
	r.GET("/schools/:schoolId/students", h.Students)
	r.GET("/schools/:schoolId/leaderboard", h.Leaderboard)
	r.GET("/schools/:schoolId/trend", h.Trend)
	r.POST("/schools/:schoolId/refresh", h.Refresh)
	r.GET("/classes/:classId", h.Class)
	r.GET("/students/:studentId", h.Student)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestEngagementHandlerOverview(t *testing.T) {
	srv := &fakeEngagementSrv{}
	rec := serve(newEngagementRouter(srv), http.MethodGet, "/schools/sch-1/overview?period=month")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sch-1", srv.lastSchool)
	assert.Equal(t, analytics.PeriodMonth, srv.lastReq.Period)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	window := env.Meta["window"].(map[string]interface{})
	assert.Equal(t, "2024-03-08T00:00:00Z", window["start"])
	assert.Contains(t, string(env.Data), `"total_students":3`)
}

func TestEngagementHandlerCustomWindow(t *testing.T) {
	srv := &fakeEngagementSrv{}
	rec := serve(newEngagementRouter(srv), http.MethodGet, "/students/st-1?period=custom&from=2024-03-01&to=2024-03-10")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "st-1", srv.lastID)
	require.NotNil(t, srv.lastReq.From)
	require.NotNil(t, srv.lastReq.To)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *srv.lastReq.From)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *srv.lastReq.To)
}

func TestEngagementHandlerRejectsBadQuery(t *testing.T) {
	r := newEngagementRouter(&fakeEngagementSrv{})

	cases := []string{
		"/schools/sch-1/overview?period=decade",
		"/schools/sch-1/overview?period=custom&from=03/01/2024",
		"/schools/sch-1/classes?pageSize=1000",
		"/schools/sch-1/classes?order=sideways",
		"/schools/sch-1/leaderboard?limit=500",
		"/schools/sch-1/trend?metric=grades",
		"/schools/sch-1/trend?bucket=day",
	}
	for _, path := range cases {
		rec := serve(r, http.MethodGet, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code, path)
	}
}

func TestEngagementHandlerClassesFilters(t *testing.T) {
	srv := &fakeEngagementSrv{}
	rec := serve(newEngagementRouter(srv), http.MethodGet, "/schools/sch-1/classes?search=%20bu%20&grade=7,8&status=at_risk&sort=wellbeing&order=desc&page=2&pageSize=5")

	require.Equal(t, http.StatusOK, rec.Code)
	f := srv.lastFilters
	assert.Equal(t, "bu", f.SearchText)
	assert.Equal(t, []string{"7", "8"}, f.Categories)
	assert.Equal(t, []string{"at_risk"}, f.Statuses)
	assert.Equal(t, "wellbeing", f.SortKey)
	assert.Equal(t, analytics.SortDesc, f.SortDirection)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 5, f.PageSize)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
}

func TestEngagementHandlerStudentsDefaults(t *testing.T) {
	srv := &fakeEngagementSrv{}
	rec := serve(newEngagementRouter(srv), http.MethodGet, "/schools/sch-1/students?class=7A&risk=high,medium")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"7A"}, srv.lastFilters.Categories)
	assert.Equal(t, []string{"high", "medium"}, srv.lastFilters.Risk)
	assert.Equal(t, 1, srv.lastFilters.Page)
	assert.Equal(t, 20, srv.lastFilters.PageSize)
	assert.Equal(t, analytics.PeriodWeek, srv.lastReq.Period)
}

func TestEngagementHandlerLeaderboardAndTrend(t *testing.T) {
	srv := &fakeEngagementSrv{}
	r := newEngagementRouter(srv)

	rec := serve(r, http.MethodGet, "/schools/sch-1/leaderboard?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, srv.lastLimit)

	rec = serve(r, http.MethodGet, "/schools/sch-1/trend?bucket=month&metric=avg_wellbeing&classId=7A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.TrendQuery{
		SchoolID: "sch-1",
		ClassID:  "7A",
		Window:   analytics.WindowRequest{Period: analytics.PeriodWeek},
		Bucket:   analytics.BucketMonth,
		Metric:   analytics.MetricAvgWellbeing,
	}, srv.lastTrend)

	rec = serve(r, http.MethodGet, "/schools/sch-1/trend")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.BucketWeek, srv.lastTrend.Bucket)
	assert.Equal(t, analytics.MetricOverallRate, srv.lastTrend.Metric)
}

func TestEngagementHandlerRefresh(t *testing.T) {
	srv := &fakeEngagementSrv{}
	rec := serve(newEngagementRouter(srv), http.MethodPost, "/schools/sch-1/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sch-1", srv.lastSchool)
	assert.JSONEq(t, `{"removed":4}`, string(decodeEnvelope(t, rec).Data))
}

func TestEngagementHandlerServiceErrors(t *testing.T) {
	srv := &fakeEngagementSrv{err: appErrors.Clone(appErrors.ErrUpstreamFetch, "engagement store unavailable")}
	r := newEngagementRouter(srv)

	rec := serve(r, http.MethodGet, "/schools/sch-1/overview")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	srv.err = appErrors.Clone(appErrors.ErrNotFound, "class not found")
	rec = serve(r, http.MethodGet, "/classes/zz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))

	srv.err = appErrors.Clone(appErrors.ErrInvalidRange, "from must not be after to")
	rec = serve(r, http.MethodGet, "/schools/sch-1/leaderboard?period=custom&from=2024-03-10&to=2024-03-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RANGE", decodeEnvelope(t, rec).Error.Code)
}

func TestEngagementHandlerRecordLookupsCarryScope(t *testing.T) {
	srv := &fakeEngagementSrv{}

	rec := serve(newEngagementRouter(srv), http.MethodGet, "/classes/7A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sch-1", srv.lastScope)

	rec = serve(newEngagementRouter(srv), http.MethodGet, "/students/st-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sch-1", srv.lastScope)

	srv.lastScope = "unset"
	rec = serve(newScopedEngagementRouter(srv, &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin, SchoolID: "sch-9"}), http.MethodGet, "/classes/7A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, srv.lastScope)
}

func TestEngagementHandlerRecordLookupsWithoutSchool(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleCounselor, models.RoleTeacher} {
		srv := &fakeEngagementSrv{}
		r := newScopedEngagementRouter(srv, &models.JWTClaims{UserID: "u1", Role: role})

		for _, path := range []string{"/classes/7A", "/students/st-1"} {
			rec := serve(r, http.MethodGet, path)
			assert.Equal(t, http.StatusForbidden, rec.Code, path)
		}
		assert.Empty(t, srv.lastID, role)
	}

	rec := serve(newScopedEngagementRouter(&fakeEngagementSrv{}, nil), http.MethodGet, "/students/st-1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEngagementHandlerForeignRecord(t *testing.T) {
	srv := &fakeEngagementSrv{err: appErrors.Clone(appErrors.ErrForbidden, "school outside of token scope")}
	rec := serve(newEngagementRouter(srv), http.MethodGet, "/classes/other-7A")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, rec).Error.Code)
}
