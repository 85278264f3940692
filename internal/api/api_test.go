package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fox-gonic/fox"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memManager is an in-memory schedule manager keyed by "<context>/<id>".
type memManager struct {
	mu       sync.Mutex
	targets  map[string][]schedule.ScheduleDescriptor
	queryErr error
	failOp   string
	calls    []string
}

func key(kind schedule.Context, id int) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (m *memManager) FindSchedules(ctx context.Context, c schedule.Criteria) ([]schedule.ScheduleDescriptor, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.targets[key(c.Kind, c.TargetID)], nil
}

func (m *memManager) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	if op == m.failOp {
		return errors.New("agent unreachable")
	}
	return nil
}

func (m *memManager) EnableForResource(context.Context, int, []int) error {
	return m.record("enableForResource")
}
func (m *memManager) EnableForGroup(context.Context, int, []int) error {
	return m.record("enableForGroup")
}
func (m *memManager) DisableForResource(context.Context, int, []int) error {
	return m.record("disableForResource")
}
func (m *memManager) DisableForGroup(context.Context, int, []int) error {
	return m.record("disableForGroup")
}
func (m *memManager) SetIntervalForResource(context.Context, int, []int, int64) error {
	return m.record("setIntervalForResource")
}
func (m *memManager) SetIntervalForGroup(context.Context, int, []int, int64) error {
	return m.record("setIntervalForGroup")
}

type staticLister struct {
	entries []schedule.ChangeEntry
	err     error
}

func (s staticLister) ListChanges(ctx context.Context, kind schedule.Context, id, limit int) ([]schedule.ChangeEntry, error) {
	if len(s.entries) > limit {
		return s.entries[:limit], s.err
	}
	return s.entries, s.err
}

func newTestServer(t *testing.T, mgr *memManager, changes []NamedLister) *fox.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := fox.New()
	_, err := NewApi(router, Deps{
		Query:          mgr,
		Applier:        schedule.NewResolver(mgr, mgr, nil),
		Changes:        changes,
		Gatherer:       prometheus.NewRegistry(),
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return router
}

func newManager() *memManager {
	return &memManager{targets: map[string][]schedule.ScheduleDescriptor{
		"resource/10": {
			{DefinitionID: 1, DisplayName: "CPU Load"},
			{DefinitionID: 2, DisplayName: "Free Memory"},
		},
		"group/5": {
			{DefinitionID: 1, DisplayName: "CPU Load"},
		},
	}}
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListSchedules(t *testing.T) {
	router := newTestServer(t, newManager(), nil)

	w := do(router, http.MethodGet, "/v1/schedules/resource/10", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.SchedulesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, schedule.ContextResource, resp.Context)
	assert.Len(t, resp.Schedules, 2)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = do(router, http.MethodGet, "/v1/schedules/platform/10", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), model.ErrorCodeUnsupportedContext)

	w = do(router, http.MethodGet, "/v1/schedules/group/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), model.ErrorCodeInvalidParameter)
}

func TestListSchedules_QueryFailure(t *testing.T) {
	mgr := newManager()
	mgr.queryErr = errors.New("connection refused")
	w := do(newTestServer(t, mgr, nil), http.MethodGet, "/v1/schedules/group/5", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), model.ErrorCodeRemoteCallFailed)
}

func TestUpdateSchedules(t *testing.T) {
	mgr := newManager()
	router := newTestServer(t, mgr, nil)

	w := do(router, http.MethodPut, "/v1/schedules/resource/10",
		`{"schedules": {"CPU Load": "disabled", "Free Memory": "15m", "Gone": "enabled"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Outcome)
	require.Len(t, resp.Outcome.Dispatched, 2)
	assert.Equal(t, schedule.ActionDisable, resp.Outcome.Dispatched[0].Action)
	assert.Equal(t, int64(900000), resp.Outcome.Dispatched[1].IntervalMillis)
	assert.Equal(t, []string{"Gone"}, resp.Outcome.Unmatched)
	assert.Equal(t, []string{"disableForResource", "setIntervalForResource"}, mgr.calls)
}

func TestUpdateSchedules_DryRun(t *testing.T) {
	mgr := newManager()
	w := do(newTestServer(t, mgr, nil), http.MethodPut, "/v1/schedules/group/5",
		`{"schedules": {"CPU Load": {"amount": 1, "unit": "hours"}}, "dryRun": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.DryRun)
	require.Len(t, resp.Outcome.Planned, 1)
	assert.Equal(t, int64(3600000), resp.Outcome.Planned[0].IntervalMillis)
	assert.Empty(t, mgr.calls)
}

func TestUpdateSchedules_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		failOp string
		status int
		code   string
	}{
		{name: "empty schedules", path: "/v1/schedules/resource/10", body: `{"schedules": {}}`, status: http.StatusBadRequest, code: model.ErrorCodeInvalidParameter},
		{name: "bad directive", path: "/v1/schedules/resource/10", body: `{"schedules": {"CPU Load": "sometimes"}}`, status: http.StatusBadRequest, code: model.ErrorCodeInvalidParameter},
		{name: "interval out of range", path: "/v1/schedules/resource/10", body: `{"schedules": {"X": {"amount": 5124095576031, "unit": "hours"}}}`, status: http.StatusBadRequest, code: model.ErrorCodeInvalidParameter},
		{name: "not json", path: "/v1/schedules/resource/10", body: `{`, status: http.StatusBadRequest, code: model.ErrorCodeInvalidParameter},
		{name: "unsupported context", path: "/v1/schedules/autogroup/10", body: `{"schedules": {"CPU Load": "enabled"}}`, status: http.StatusBadRequest, code: model.ErrorCodeUnsupportedContext},
		{name: "remote failure", path: "/v1/schedules/resource/10", body: `{"schedules": {"CPU Load": "enabled", "Free Memory": "disabled"}}`, failOp: "enableForResource", status: http.StatusBadGateway, code: model.ErrorCodeRemoteCallFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newManager()
			mgr.failOp = tt.failOp
			w := do(newTestServer(t, mgr, nil), http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestUpdateSchedules_PartialFailureKeepsOutcome(t *testing.T) {
	mgr := newManager()
	mgr.failOp = "enableForResource"
	w := do(newTestServer(t, mgr, nil), http.MethodPut, "/v1/schedules/resource/10",
		`{"schedules": {"CPU Load": "enabled", "Free Memory": "disabled"}}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp model.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Outcome)
	require.Len(t, resp.Outcome.Dispatched, 2)
	assert.NotEmpty(t, resp.Outcome.Dispatched[0].Error)
	assert.Empty(t, resp.Outcome.Dispatched[1].Error)
	assert.Equal(t, []string{"enableForResource", "disableForResource"}, mgr.calls)
}

func TestListChanges(t *testing.T) {
	entry := schedule.ChangeEntry{ID: "c1", Context: schedule.ContextGroup, TargetID: 5, Action: schedule.ActionEnable, DefinitionIDs: []int{1}}
	router := newTestServer(t, newManager(), []NamedLister{
		{Name: "redis", Lister: staticLister{}},
		{Name: "postgres", Lister: staticLister{entries: []schedule.ChangeEntry{entry, entry}}},
	})

	w := do(router, http.MethodGet, "/v1/schedules/group/5/changes?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.ChangesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "postgres", resp.Source)
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, "c1", resp.Changes[0].ID)

	w = do(router, http.MethodGet, "/v1/schedules/group/5/changes?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListChanges_SourcesFail(t *testing.T) {
	router := newTestServer(t, newManager(), []NamedLister{
		{Name: "redis", Lister: staticLister{err: errors.New("redis down")}},
	})
	w := do(router, http.MethodGet, "/v1/schedules/resource/10/changes", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	empty := newTestServer(t, newManager(), nil)
	w = do(empty, http.MethodGet, "/v1/schedules/resource/10/changes", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changes":[]`)
}

func TestConvertInterval(t *testing.T) {
	router := newTestServer(t, newManager(), nil)

	w := do(router, http.MethodGet, "/v1/intervals/15/minutes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.IntervalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(900000), resp.IntervalMillis)

	w = do(router, http.MethodGet, "/v1/intervals/1/hours", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"intervalMillis":3600000`)

	for _, path := range []string{"/v1/intervals/0/minutes", "/v1/intervals/x/minutes", "/v1/intervals/2/fortnights", "/v1/intervals/5124095576031/hours"} {
		w = do(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := fox.New()
	healthy := true
	mgr := newManager()
	_, err := NewApi(router, Deps{
		Query:   mgr,
		Applier: schedule.NewResolver(mgr, mgr, nil),
		Health: func(ctx context.Context) error {
			if !healthy {
				return errors.New("database unreachable")
			}
			return nil
		},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz", "").Code)
	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/metrics", "").Code)
}

func TestNewApi_RequiresDeps(t *testing.T) {
	_, err := NewApi(fox.New(), Deps{})
	assert.Error(t, err)
}
