package model

import "github.com/rhq-project/rhq-sub002/internal/measurement/schedule"

// 错误码常量
const (
	ErrorCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrorCodeUnsupportedContext = "UNSUPPORTED_CONTEXT"
	ErrorCodeRemoteCallFailed   = "REMOTE_CALL_FAILED"
	ErrorCodeRequestTimeout     = "REQUEST_TIMEOUT"
	ErrorCodeUnavailable        = "UNAVAILABLE"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Parameter string `json:"parameter,omitempty"`
	Value     string `json:"value,omitempty"`
}

// UpdateSchedulesRequest PUT /v1/schedules/:context/:id 请求体
type UpdateSchedulesRequest struct {
	Schedules map[string]schedule.Directive `json:"schedules"`
	DryRun    bool                          `json:"dryRun"`
}

// ResolveResponse 调度更新结果；部分失败时同时带有 error
type ResolveResponse struct {
	DryRun  bool              `json:"dryRun,omitempty"`
	Outcome *schedule.Outcome `json:"outcome,omitempty"`
	Error   *ErrorDetail      `json:"error,omitempty"`
}

// SchedulesResponse GET /v1/schedules/:context/:id 响应
type SchedulesResponse struct {
	Context   schedule.Context              `json:"context"`
	TargetID  int                           `json:"targetId"`
	Schedules []schedule.ScheduleDescriptor `json:"schedules"`
}

// ChangesResponse GET /v1/schedules/:context/:id/changes 响应
type ChangesResponse struct {
	Context  schedule.Context       `json:"context"`
	TargetID int                    `json:"targetId"`
	Source   string                 `json:"source"`
	Changes  []schedule.ChangeEntry `json:"changes"`
}

// IntervalResponse GET /v1/intervals/:amount/:unit 响应
type IntervalResponse struct {
	Amount         int64                 `json:"amount"`
	Unit           schedule.IntervalUnit `json:"unit"`
	IntervalMillis int64                 `json:"intervalMillis"`
}
