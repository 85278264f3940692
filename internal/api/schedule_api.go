package api

import (
	"net/http"
	"strconv"

	"github.com/fox-gonic/fox"
	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rs/zerolog/log"
)

const (
	defaultChangesLimit = 20
	maxChangesLimit     = 500
)

// setupScheduleRouters 设置调度相关路由
func (api *Api) setupScheduleRouters(router *fox.Engine) {
	router.GET("/v1/schedules/:context/:id", api.ListSchedules)
	router.PUT("/v1/schedules/:context/:id", api.UpdateSchedules)
	router.GET("/v1/schedules/:context/:id/changes", api.ListChanges)
}

// ListSchedules 查询目标的调度（GET /v1/schedules/:context/:id）
func (api *Api) ListSchedules(c *fox.Context) {
	kind, id, ok := parseTarget(c)
	if !ok {
		return
	}
	ctx, cancel, reqID := api.requestContext(c)
	defer cancel()

	descriptors, err := api.deps.Query.FindSchedules(ctx, schedule.Criteria{
		Kind:                         kind,
		TargetID:                     id,
		IncludeDefinitionDisplayName: true,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", reqID).Str("context", string(kind)).Int("target_id", id).Msg("find schedules failed")
		status, detail := classifyError(&schedule.RemoteCallError{Op: "findSchedules", Err: err})
		c.JSON(status, model.ErrorResponse{Error: detail})
		return
	}
	if descriptors == nil {
		descriptors = []schedule.ScheduleDescriptor{}
	}
	c.JSON(http.StatusOK, model.SchedulesResponse{Context: kind, TargetID: id, Schedules: descriptors})
}

// UpdateSchedules 应用调度覆盖（PUT /v1/schedules/:context/:id）
// dryRun 为 true 时只返回计划，不发起任何批量调用
func (api *Api) UpdateSchedules(c *fox.Context) {
	kind, id, ok := parseTarget(c)
	if !ok {
		return
	}
	var body model.UpdateSchedulesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
			"Invalid request body: "+err.Error(), map[string]string{"parameter": "schedules"})
		return
	}
	ctx, cancel, reqID := api.requestContext(c)
	defer cancel()

	req := &schedule.UpdateRequest{Context: kind, TargetID: id, Schedules: body.Schedules}
	var (
		out *schedule.Outcome
		err error
	)
	if body.DryRun {
		out, err = api.deps.Applier.Preview(ctx, req)
	} else {
		out, err = api.deps.Applier.Resolve(ctx, req)
	}
	if err != nil {
		status, detail := classifyError(err)
		log.Warn().Err(err).
			Str("request_id", reqID).
			Str("context", string(kind)).
			Int("target_id", id).
			Int("status", status).
			Msg("schedule update failed")
		c.JSON(status, model.ResolveResponse{DryRun: body.DryRun, Outcome: out, Error: &detail})
		return
	}
	c.JSON(http.StatusOK, model.ResolveResponse{DryRun: body.DryRun, Outcome: out})
}

// ListChanges 查询最近的调度变更（GET /v1/schedules/:context/:id/changes）
// 依次尝试各来源，返回第一个非空结果
func (api *Api) ListChanges(c *fox.Context) {
	kind, id, ok := parseTarget(c)
	if !ok {
		return
	}
	limit := defaultChangesLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
				"参数 'limit' 必须为正整数", map[string]string{"parameter": "limit", "value": s})
			return
		}
		limit = min(n, maxChangesLimit)
	}
	ctx, cancel, reqID := api.requestContext(c)
	defer cancel()

	resp := model.ChangesResponse{Context: kind, TargetID: id, Changes: []schedule.ChangeEntry{}}
	var lastErr error
	for _, src := range api.deps.Changes {
		entries, err := src.Lister.ListChanges(ctx, kind, id, limit)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("request_id", reqID).Str("source", src.Name).Msg("list changes failed; trying next source")
			continue
		}
		if len(entries) > 0 {
			resp.Source = src.Name
			resp.Changes = entries
			break
		}
	}
	if resp.Source == "" && lastErr != nil {
		SendErrorResponse(c, http.StatusBadGateway, model.ErrorCodeRemoteCallFailed, lastErr.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, resp)
}
