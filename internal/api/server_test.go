package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wildfire-analytics/internal/cache"
	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
)

type fakeTasks struct {
	tasks map[string]*domain.Task
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (*domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTasks) ListTasks(_ context.Context, limit int) ([]domain.Task, error) {
	out := []domain.Task{}
	for _, t := range f.tasks {
		if len(out) == limit {
			break
		}
		out = append(out, *t)
	}
	return out, nil
}

type fakeQueue struct {
	enqueued []domain.JobType
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.JobType, _ domain.Arguments) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, job)
	return fmt.Sprintf("task-%d", len(q.enqueued)), nil
}

type fakeIncidents struct {
	mu      sync.Mutex
	fires   []domain.FireIncident
	lists   int
	created []*domain.FireIncident
}

func (f *fakeIncidents) CreateIncident(_ context.Context, incident *domain.FireIncident) error {
	incident.ID = "new-fire"
	f.created = append(f.created, incident)
	return nil
}

func (f *fakeIncidents) ListIncidents(_ context.Context, filter domain.IncidentFilter, offset, limit int) ([]domain.FireIncident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	out := []domain.FireIncident{}
	for _, fire := range f.fires {
		if filter.State != "" && fire.State != filter.State {
			continue
		}
		out = append(out, fire)
	}
	if offset >= len(out) {
		return []domain.FireIncident{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIncidents) CountIncidents(_ context.Context, filter domain.IncidentFilter) (int, error) {
	n := 0
	for _, fire := range f.fires {
		if filter.State == "" || fire.State == filter.State {
			n++
		}
	}
	return n, nil
}

func (f *fakeIncidents) Summary(context.Context) (*domain.SummaryStats, error) {
	return &domain.SummaryStats{
		TotalFires:       len(f.fires),
		TotalAcresBurned: 1234.5,
		FiresByState:     []domain.GroupTotals{{State: "CA", Count: len(f.fires), Acres: 1234.5}},
	}, nil
}

func (f *fakeIncidents) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeAnalysis struct {
	gotType  domain.AnalysisType
	gotLimit int
}

func (f *fakeAnalysis) ListAnalysisResults(_ context.Context, analysisType domain.AnalysisType, limit int) ([]domain.AnalysisResult, error) {
	f.gotType, f.gotLimit = analysisType, limit
	cluster := 2
	return []domain.AnalysisResult{{AnalysisType: analysisType, ClusterID: &cluster, Metadata: map[string]any{}}}, nil
}

type fakeRisk struct {
	gotState string
	gotAsOf  time.Time
}

func (f *fakeRisk) CurrentAssessments(_ context.Context, state string, asOf time.Time) ([]domain.RiskAssessment, error) {
	f.gotState, f.gotAsOf = state, asOf
	return []domain.RiskAssessment{{RegionID: "CA_BUT", State: "CA", County: "Butte", RiskLevel: domain.RiskExtreme, RiskScore: 10}}, nil
}

func ptr[T any](v T) *T { return &v }

// grid returns n geolocated fires on two tight spots.
func grid(n int) []domain.FireIncident {
	fires := make([]domain.FireIncident, n)
	for i := range fires {
		lat, lon := 39.7, -121.6
		if i%2 == 1 {
			lat, lon = 34.1, -118.2
		}
		fires[i] = domain.FireIncident{
			ID:            fmt.Sprintf("fire-%03d", i),
			FireYear:      2000 + i%20,
			FireSizeAcres: ptr(float64(10 + i*i%97)),
			Latitude:      ptr(lat + float64(i%5)*0.01),
			Longitude:     ptr(lon - float64(i%7)*0.01),
			State:         "CA",
			County:        "Butte",
		}
	}
	return fires
}

type testEnv struct {
	server    *Server
	tasks     *fakeTasks
	queue     *fakeQueue
	incidents *fakeIncidents
	analysis  *fakeAnalysis
	risk      *fakeRisk
	cache     *cache.MemoryCache
}

func newTestEnv(t *testing.T, fires []domain.FireIncident) *testEnv {
	t.Helper()
	env := &testEnv{
		tasks: &fakeTasks{tasks: map[string]*domain.Task{
			"task-1": {ID: "task-1", JobType: domain.JobRisk, Queue: domain.QueueRisk, Status: domain.TaskStatusSucceeded},
		}},
		queue:     &fakeQueue{},
		incidents: &fakeIncidents{fires: fires},
		analysis:  &fakeAnalysis{},
		risk:      &fakeRisk{},
		cache:     cache.NewMemoryCache(),
	}
	env.server = NewServer(Dependencies{
		Tasks:     env.tasks,
		Queue:     env.queue,
		Incidents: env.incidents,
		Analysis:  env.analysis,
		Risk:      env.risk,
		Cache:     env.cache,
		Checks: map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		},
	}, config.Default(), zap.NewNop())
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"job_type":  "forecast",
		"arguments": map[string]any{"forecast_periods": 6},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[createTaskResponse](t, rec)
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, domain.QueueAnalytics, resp.Queue)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, []domain.JobType{domain.JobForecast}, env.queue.enqueued)
}

func TestCreateTask_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"unknown job type", map[string]any{"job_type": "billing"}},
		{"missing job type", map[string]any{}},
		{"unknown field", map[string]any{"job_type": "risk", "priority": 1}},
		{"bad argument", map[string]any{"job_type": "clustering", "arguments": map[string]any{"eps": -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.queue.enqueued)
		})
	}
}

func TestCreateTask_BrokerDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.queue.err = errors.New("redis: connection refused")

	rec := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"job_type": "risk"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/tasks/task-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TaskStatusSucceeded, decode[domain.Task](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks_LimitOutOfRangeFallsBack(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/tasks?limit=5000", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.EqualValues(t, 50, resp["limit"])
	assert.EqualValues(t, 1, resp["count"])
}

func TestListFires_PaginatesAndCaches(t *testing.T) {
	env := newTestEnv(t, grid(7))

	rec := env.do(t, http.MethodGet, "/api/v1/fires?page=2&per_page=3&state=ca", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[domain.FirePage](t, rec)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Fires, 3)
	assert.Equal(t, "fire-003", page.Fires[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/fires?page=2&per_page=3&state=CA", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.incidents.listCalls(), "second request is served from cache")

	var cached domain.FirePage
	hit, err := env.cache.Get(context.Background(), cache.FiresKey(2, 3, "CA", 0, ""), &cached)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestListFires_EmptyPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/fires", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fires":[],"total":0,"pages":0,"current_page":1}`, rec.Body.String())
}

func TestListFires_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, q := range []string{"page=0", "per_page=abc", "state=California", "year=1200"} {
		rec := env.do(t, http.MethodGet, "/api/v1/fires?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCreateFire(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/fires", map[string]any{
		"fire_name":       "Camp",
		"fire_year":       2018,
		"fire_size_acres": 153336,
		"latitude":        39.81,
		"longitude":       -121.44,
		"state":           "ca",
		"county":          "Butte",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "new-fire", decode[map[string]string](t, rec)["id"])
	require.Len(t, env.incidents.created, 1)
	assert.Equal(t, "CA", env.incidents.created[0].State)
	assert.InDelta(t, 153336, *env.incidents.created[0].FireSizeAcres, 1e-9)
}

func TestCreateFire_InvalidCoordinates(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/fires", map[string]any{
		"fire_year": 2018,
		"state":     "CA",
		"latitude":  123.0,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.incidents.created)
}

func TestFireClusters(t *testing.T) {
	env := newTestEnv(t, grid(20))

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/clusters", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ClustersResponse](t, rec)
	require.Len(t, resp.Clusters, 20)
	assert.Empty(t, resp.Message)
	assert.Equal(t, resp.Clusters[0].Cluster, resp.Clusters[2].Cluster)
	assert.NotEqual(t, resp.Clusters[0].Cluster, resp.Clusters[1].Cluster)

	env.do(t, http.MethodGet, "/api/v1/analytics/clusters", nil)
	assert.Equal(t, 1, env.incidents.listCalls())
}

func TestFireClusters_InsufficientIsNotCached(t *testing.T) {
	env := newTestEnv(t, grid(9))

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/clusters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ClustersResponse](t, rec)
	assert.Empty(t, resp.Clusters)
	assert.Equal(t, "Insufficient data for clustering", resp.Message)

	env.do(t, http.MethodGet, "/api/v1/analytics/clusters", nil)
	assert.Equal(t, 2, env.incidents.listCalls())
	assert.Zero(t, env.cache.Len())
}

func TestPCAAnalysis(t *testing.T) {
	env := newTestEnv(t, grid(60))

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/pca", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PCAResponse](t, rec)
	assert.Len(t, resp.PCAData, 60)
	require.Len(t, resp.ExplainedVariance, 2)
	assert.GreaterOrEqual(t, resp.ExplainedVariance[0], resp.ExplainedVariance[1])
}

func TestPCAAnalysis_Insufficient(t *testing.T) {
	env := newTestEnv(t, grid(49))

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/pca", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PCAResponse](t, rec)
	assert.Empty(t, resp.PCAData)
	assert.Equal(t, "Insufficient data for PCA", resp.Message)
}

func TestSummaryStats(t *testing.T) {
	env := newTestEnv(t, grid(3))

	rec := env.do(t, http.MethodGet, "/api/v1/stats/summary", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.SummaryStats](t, rec)
	assert.Equal(t, 3, stats.TotalFires)
	assert.Equal(t, 1, env.cache.Len())
}

func TestAnalysisResults(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/results/dbscan_clustering?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AnalysisDBSCAN, env.analysis.gotType)
	assert.Equal(t, 10, env.analysis.gotLimit)

	rec = env.do(t, http.MethodGet, "/api/v1/analytics/results/kmeans", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCurrentRisk(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	rec := env.do(t, http.MethodGet, "/api/v1/risk/current?state=ca", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CA", env.risk.gotState)
	assert.Equal(t, 2026, env.risk.gotAsOf.Year())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.deps.Checks["rethinkdb"] = func(context.Context) error { return errors.New("connection refused") }
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Equal(t, "connection refused", resp["checks"].(map[string]any)["rethinkdb"])
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", decode[map[string]string](t, rec)["error"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/tasks", nil)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthRouter(t *testing.T) {
	checks := map[string]HealthCheck{
		"redis":     func(context.Context) error { return nil },
		"rethinkdb": func(context.Context) error { return errors.New("no route to host") },
	}
	router := NewHealthRouter("wildfire-worker", checks, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "wildfire-worker", resp["service"])
	assert.Equal(t, map[string]any{"redis": "ok", "rethinkdb": "no route to host"}, resp["checks"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}
