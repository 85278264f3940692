package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
)

const namespace = "schedsync"

// Collector 调度同步指标，同时作为 ChangeRecorder 接收每一次批量调用
type Collector struct {
	dispatchTotal       *prometheus.CounterVec
	dispatchDefinitions *prometheus.CounterVec
	unmatchedTotal      *prometheus.CounterVec
	resolveDuration     *prometheus.HistogramVec
}

// NewCollector 创建并注册指标
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Batch schedule calls issued, by context, action and outcome.",
			},
			[]string{"context", "action", "outcome"},
		),
		dispatchDefinitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_definitions_total",
				Help:      "Measurement definitions carried by issued batch calls.",
			},
			[]string{"context", "action"},
		),
		unmatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmatched_directives_total",
				Help:      "Directives whose display name matched no schedule of the target.",
			},
			[]string{"context"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Duration of schedule update resolution, including all batch calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"context", "result"},
		),
	}
	for _, col := range []prometheus.Collector{c.dispatchTotal, c.dispatchDefinitions, c.unmatchedTotal, c.resolveDuration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) RecordChange(_ context.Context, ch schedule.Change) error {
	outcome := "ok"
	if ch.Err != nil {
		outcome = "error"
	}
	kind := contextLabel(ch.Context)
	action := ch.Group.Action.String()
	c.dispatchTotal.WithLabelValues(kind, action, outcome).Inc()
	c.dispatchDefinitions.WithLabelValues(kind, action).Add(float64(len(ch.Group.DefinitionIDs)))
	return nil
}

// Instrument 包装 Applier，记录耗时与未匹配的指令数
func (c *Collector) Instrument(next schedule.Applier) schedule.Applier {
	return &instrumented{next: next, c: c}
}

type instrumented struct {
	next schedule.Applier
	c    *Collector
}

func (i *instrumented) Resolve(ctx context.Context, req *schedule.UpdateRequest) (*schedule.Outcome, error) {
	start := time.Now()
	out, err := i.next.Resolve(ctx, req)
	kind := "unknown"
	if req != nil {
		kind = contextLabel(req.Context)
	}
	i.c.resolveDuration.WithLabelValues(kind, ResultLabel(err)).Observe(time.Since(start).Seconds())
	if out != nil && len(out.Unmatched) > 0 {
		i.c.unmatchedTotal.WithLabelValues(kind).Add(float64(len(out.Unmatched)))
	}
	return out, err
}

func (i *instrumented) Preview(ctx context.Context, req *schedule.UpdateRequest) (*schedule.Outcome, error) {
	return i.next.Preview(ctx, req)
}

// ResultLabel classifies a Resolve error for the result label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, schedule.ErrRemoteCall):
		return "remote_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, schedule.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, schedule.ErrUnsupportedContext):
		return "unsupported"
	default:
		return "error"
	}
}

// unsupported contexts share one label value to keep cardinality bounded
func contextLabel(c schedule.Context) string {
	switch c {
	case schedule.ContextResource, schedule.ContextGroup:
		return string(c)
	default:
		return "unsupported"
	}
}
