package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/schedules/group/5", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_ = json.NewEncoder(w).Encode(model.ResolveResponse{
			DryRun:  true,
			Outcome: &schedule.Outcome{Context: schedule.ContextGroup, TargetID: 5, Candidates: 3},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	resp, err := c.Apply(context.Background(), &schedule.UpdateRequest{
		Context:   schedule.ContextGroup,
		TargetID:  5,
		Schedules: map[string]schedule.Directive{"CPU Load": schedule.IntervalMillis(60000)},
	}, true)
	require.NoError(t, err)
	assert.True(t, resp.DryRun)
	assert.Equal(t, 3, resp.Outcome.Candidates)
	assert.Equal(t, true, gotBody["dryRun"])
	assert.Equal(t, map[string]any{"CPU Load": map[string]any{"intervalMillis": float64(60000)}}, gotBody["schedules"])
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(model.ResolveResponse{
			Outcome: &schedule.Outcome{TargetID: 10, Dispatched: []schedule.GroupResult{
				{ActionGroup: schedule.ActionGroup{Action: schedule.ActionEnable, DefinitionIDs: []int{1}}},
				{ActionGroup: schedule.ActionGroup{Action: schedule.ActionDisable, DefinitionIDs: []int{2}}, Error: "agent unreachable"},
			}},
			Error:   &model.ErrorDetail{Code: model.ErrorCodeRemoteCallFailed, Message: "agent unreachable"},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0).Apply(context.Background(), &schedule.UpdateRequest{Context: schedule.ContextResource, TargetID: 10}, false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, model.ErrorCodeRemoteCallFailed, apiErr.Detail.Code)
	require.NotNil(t, apiErr.Outcome)
	assert.Equal(t, 10, apiErr.Outcome.TargetID)
	failed := apiErr.Outcome.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, schedule.ActionDisable, failed[0].Action)
}

func TestPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0).Interval(context.Background(), 1, "hours")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not here", apiErr.Detail.Message)
}

func TestChangesAndInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/schedules/resource/7/changes":
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(model.ChangesResponse{Source: "redis", Changes: []schedule.ChangeEntry{{ID: "x"}}})
		case "/v1/intervals/15/minutes":
			_ = json.NewEncoder(w).Encode(model.IntervalResponse{Amount: 15, Unit: schedule.UnitMinutes, IntervalMillis: 900000})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	changes, err := c.Changes(context.Background(), schedule.ContextResource, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, "redis", changes.Source)

	iv, err := c.Interval(context.Background(), 15, "minutes")
	require.NoError(t, err)
	assert.Equal(t, int64(900000), iv.IntervalMillis)
}
