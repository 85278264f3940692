package enforcer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rhq-project/rhq-sub002/internal/measurement/profile"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 2 * time.Minute

// Result is the result of applying one profile.
type Result struct {
	Profile string
	Outcome *schedule.Outcome
	Err     error
}

// Enforcer re-applies profiles on their cron expressions. Resolving is idempotent, so
// each run puts back any schedule that drifted from the profile.
type Enforcer struct {
	applier  schedule.Applier
	profiles []profile.Profile
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// New creates an enforcer. timeout bounds a single profile run; zero uses two minutes.
func New(applier schedule.Applier, profiles []profile.Profile, timeout time.Duration) *Enforcer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Enforcer{applier: applier, profiles: profiles, timeout: timeout}
}

// Start registers every profile that has a cron expression and starts the scheduler.
// Runs of the same profile never overlap. Runs stop when ctx is done.
func (e *Enforcer) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("enforcer already started")
	}

	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))
	scheduled := 0
	for _, p := range e.profiles {
		if p.Cron == "" {
			continue
		}
		p := p
		job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
			if ctx.Err() != nil {
				return
			}
			e.apply(ctx, p)
		}))
		if _, err := c.AddJob(p.Cron, job); err != nil {
			return fmt.Errorf("schedule profile %q: %w", p.Name, err)
		}
		scheduled++
	}
	c.Start()
	e.cron = c
	e.started = true
	log.Info().Int("profiles", len(e.profiles)).Int("scheduled", scheduled).Msg("schedule enforcer started")
	return nil
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (e *Enforcer) Stop(ctx context.Context) {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.started = false
	e.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		log.Info().Msg("schedule enforcer stopped")
	case <-ctx.Done():
		log.Warn().Msg("timeout waiting for running enforcement jobs")
	}
}

// RunOnce applies every profile now, in file order, and returns one result each.
func (e *Enforcer) RunOnce(ctx context.Context) []Result {
	results := make([]Result, 0, len(e.profiles))
	for _, p := range e.profiles {
		if ctx.Err() != nil {
			results = append(results, Result{Profile: p.Name, Err: ctx.Err()})
			continue
		}
		results = append(results, e.apply(ctx, p))
	}
	return results
}

// Apply applies the named profile now.
func (e *Enforcer) Apply(ctx context.Context, name string) (Result, error) {
	p, ok := profile.Find(e.profiles, name)
	if !ok {
		return Result{}, fmt.Errorf("profile %q not found", name)
	}
	return e.apply(ctx, p), nil
}

func (e *Enforcer) apply(ctx context.Context, p profile.Profile) Result {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := e.applier.Resolve(runCtx, p.Request())
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev = ev.Str("profile", p.Name).
		Str("context", string(p.Context)).
		Int("target_id", p.TargetID).
		Dur("took", time.Since(start))
	if out != nil {
		ev = ev.Int("dispatched", len(out.Dispatched)).Int("unmatched", len(out.Unmatched))
	}
	ev.Msg("profile enforced")
	return Result{Profile: p.Name, Outcome: out, Err: err}
}

// cronLogger routes robfig/cron logs to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
