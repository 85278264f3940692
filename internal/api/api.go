package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fox-gonic/fox"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-Id"

// Deps 路由依赖；Gatherer 为空时不注册 /metrics
type Deps struct {
	Query          schedule.QueryService
	Applier        schedule.Applier
	Changes        []NamedLister
	Health         func(ctx context.Context) error
	Gatherer       prometheus.Gatherer
	MetricsPath    string
	RequestTimeout time.Duration
}

// NamedLister 变更记录来源，按顺序查询
type NamedLister struct {
	Name   string
	Lister schedule.ChangeLister
}

// Api 调度同步 HTTP API
type Api struct {
	deps   Deps
	router *fox.Engine
}

// NewApi 创建 API 并注册路由
func NewApi(router *fox.Engine, deps Deps) (*Api, error) {
	if deps.Query == nil || deps.Applier == nil {
		return nil, errors.New("api: query service and applier are required")
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	api := &Api{deps: deps, router: router}
	api.setupRouters(router)
	return api, nil
}

// setupRouters 设置路由
func (api *Api) setupRouters(router *fox.Engine) {
	router.GET("/healthz", api.Healthz)
	if api.deps.Gatherer != nil {
		h := promhttp.HandlerFor(api.deps.Gatherer, promhttp.HandlerOpts{})
		router.GET(api.deps.MetricsPath, func(c *fox.Context) {
			h.ServeHTTP(c.Writer, c.Request)
		})
	}
	api.setupScheduleRouters(router)
	api.setupIntervalRouters(router)
}

// Healthz 健康检查（GET /healthz）
func (api *Api) Healthz(c *fox.Context) {
	if api.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := api.deps.Health(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			SendErrorResponse(c, http.StatusServiceUnavailable, model.ErrorCodeUnavailable, err.Error(), nil)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ========== 通用辅助方法 ==========

// SendErrorResponse 发送错误响应
func SendErrorResponse(c *fox.Context, statusCode int, errorCode, message string, extras map[string]string) {
	c.JSON(statusCode, model.ErrorResponse{Error: errorDetail(errorCode, message, extras)})
}

func errorDetail(code, message string, extras map[string]string) model.ErrorDetail {
	d := model.ErrorDetail{Code: code, Message: message}
	if extras != nil {
		d.Parameter = extras["parameter"]
		d.Value = extras["value"]
	}
	return d
}

// requestContext 返回带超时的请求上下文，并写入请求 ID
func (api *Api) requestContext(c *fox.Context) (context.Context, context.CancelFunc, string) {
	reqID := c.Request.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Writer.Header().Set(requestIDHeader, reqID)
	ctx := c.Request.Context()
	if api.deps.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, api.deps.RequestTimeout)
		return ctx, cancel, reqID
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, reqID
}

// parseTarget 解析 :context/:id 路径参数
func parseTarget(c *fox.Context) (schedule.Context, int, bool) {
	kind := schedule.ParseContext(c.Param("context"))
	if kind != schedule.ContextResource && kind != schedule.ContextGroup {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeUnsupportedContext,
			(&schedule.UnsupportedContextError{Context: kind}).Error(),
			map[string]string{"parameter": "context", "value": c.Param("context")})
		return "", 0, false
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		SendErrorResponse(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter,
			"参数 'id' 必须为正整数", map[string]string{"parameter": "id", "value": c.Param("id")})
		return "", 0, false
	}
	return kind, id, true
}

// classifyError 将解析错误映射为 HTTP 状态码与错误详情
func classifyError(err error) (int, model.ErrorDetail) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorDetail(model.ErrorCodeInvalidParameter, err.Error(),
			map[string]string{"parameter": verr.Field})
	case errors.Is(err, schedule.ErrUnsupportedContext):
		return http.StatusBadRequest, errorDetail(model.ErrorCodeUnsupportedContext, err.Error(), nil)
	case errors.Is(err, schedule.ErrRemoteCall):
		return http.StatusBadGateway, errorDetail(model.ErrorCodeRemoteCallFailed, err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, errorDetail(model.ErrorCodeRequestTimeout, err.Error(), nil)
	default:
		return http.StatusInternalServerError, errorDetail(model.ErrorCodeInternalError, err.Error(), nil)
	}
}
