package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

const feasibilityPayload = `{
	"cohorts":[{"id":"g10","name":"Grade 10","courses":[{"id":"math","name":"Mathematics"}]}],
	"faculty":[{"id":"f1","name":"A. Rahman"}],
	"classrooms":[{"name":"R101"}],
	"days":["Mon","Tue"],
	"timeSlots":[{"label":"P1","start":"07:00","end":"07:45"}],
	"assignments":[{"id":"a1","courseId":"math","facultyId":"f1","timesPerWeek":2}]
}`

func newTestRouter(t *testing.T, tokens *service.TokenService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	runs := repository.NewMemoryRunRepository()
	metricsSvc := service.NewMetricsService()
	params := timetable.DefaultParams()
	params.PopulationSize, params.Generations, params.EliteSize = 20, 10, 2
	timetableSvc := service.NewTimetableService(runs, nil, nil, metricsSvc, nil, zap.NewNop(), service.TimetableServiceConfig{Params: params})

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	exportSvc := service.NewExportService(runs, store, storage.NewSignedURLSigner("secret", time.Hour), service.ExportConfig{}, zap.NewNop(), nil, nil)

	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	return newRouter(cfg, zap.NewNop(), routerDeps{
		timetables: handler.NewTimetableHandler(timetableSvc),
		exports:    handler.NewExportHandler(exportSvc),
		metrics:    handler.NewMetricsHandler(metricsSvc, nil),
		metricsSvc: metricsSvc,
		tokens:     tokens,
	})
}

func postJSON(router *gin.Engine, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterOpenWhenAuthDisabled(t *testing.T) {
	router := newTestRouter(t, nil)

	w := postJSON(router, "/api/v1/timetables/feasibility", feasibilityPayload, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterEnforcesRolesWhenAuthEnabled(t *testing.T) {
	tokens := service.NewTokenService("secret")
	router := newTestRouter(t, tokens)

	w := postJSON(router, "/api/v1/timetables/feasibility", feasibilityPayload, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	teacher, err := tokens.Issue("t1", models.RoleTeacher, time.Hour)
	require.NoError(t, err)
	w = postJSON(router, "/api/v1/timetables/feasibility", feasibilityPayload, teacher)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timetables", nil)
	req.Header.Set("Authorization", "Bearer "+teacher)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "teachers may read runs")

	admin, err := tokens.Issue("a1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	w = postJSON(router, "/api/v1/timetables/feasibility", feasibilityPayload, admin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(router, "/api/v1/timetables/jobs", feasibilityPayload, admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no queue is configured")
}

func TestRouterDownloadNeedsOnlySignedToken(t *testing.T) {
	router := newTestRouter(t, service.NewTokenService("secret"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/bogus", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGeneratorParamsKeepsDefaultsForZeroValues(t *testing.T) {
	params := generatorParams(config.GeneratorConfig{PopulationSize: 50, MutationRate: 0.3})
	defaults := timetable.DefaultParams()

	assert.Equal(t, 50, params.PopulationSize)
	assert.Equal(t, 0.3, params.MutationRate)
	assert.Equal(t, defaults.Generations, params.Generations)
	assert.Equal(t, defaults.EliteSize, params.EliteSize)
	assert.NoError(t, params.Validate())
}
