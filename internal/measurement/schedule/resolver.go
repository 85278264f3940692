package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Outcome describes what a Resolve call did. Planned is only filled by Preview. Dispatched lists every batch call that
// was issued, in order, with its error if it failed. Skipped lists groups that were
// never issued because the context was done.
type Outcome struct {
	Context    Context       `json:"context"`
	TargetID   int           `json:"targetId"`
	Candidates int           `json:"candidates"`
	Planned    []ActionGroup `json:"planned,omitempty"`
	Dispatched []GroupResult `json:"dispatched"`
	Skipped    []ActionGroup `json:"skipped,omitempty"`
	Unmatched  []string      `json:"unmatched,omitempty"`
}

// GroupResult is the result of one batch call.
type GroupResult struct {
	ActionGroup
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Failed returns the groups whose batch call returned an error. Outcomes decoded
// from JSON only carry the error text, so that counts as well.
func (o *Outcome) Failed() []GroupResult {
	if o == nil {
		return nil
	}
	var out []GroupResult
	for _, r := range o.Dispatched {
		if r.Err != nil || r.Error != "" {
			out = append(out, r)
		}
	}
	return out
}

// mutationSet binds the three batch operations of one context.
type mutationSet struct {
	kind        Context
	enable      func(ctx context.Context, id int, defs []int) error
	disable     func(ctx context.Context, id int, defs []int) error
	setInterval func(ctx context.Context, id int, defs []int, millis int64) error
}

func (m mutationSet) opName(a ActionKind) string {
	suffix := "ForResource"
	if m.kind == ContextGroup {
		suffix = "ForGroup"
	}
	switch a {
	case ActionEnable:
		return "enable" + suffix
	case ActionDisable:
		return "disable" + suffix
	default:
		return "setInterval" + suffix
	}
}

func (m mutationSet) invoke(ctx context.Context, targetID int, g ActionGroup) error {
	switch g.Action {
	case ActionEnable:
		return m.enable(ctx, targetID, g.DefinitionIDs)
	case ActionDisable:
		return m.disable(ctx, targetID, g.DefinitionIDs)
	default:
		return m.setInterval(ctx, targetID, g.DefinitionIDs, g.IntervalMillis)
	}
}

// Applier resolves update requests. *Resolver and its instrumented wrappers satisfy it.
type Applier interface {
	Resolve(ctx context.Context, req *UpdateRequest) (*Outcome, error)
	Preview(ctx context.Context, req *UpdateRequest) (*Outcome, error)
}

// Resolver turns an UpdateRequest into the minimal set of batch calls against the
// schedule manager. It holds no per-call state and is safe for concurrent use when
// its collaborators are.
type Resolver struct {
	query     QueryService
	mutations MutationService
	recorder  ChangeRecorder
}

// NewResolver wires a resolver. recorder may be nil.
func NewResolver(query QueryService, mutations MutationService, recorder ChangeRecorder) *Resolver {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Resolver{query: query, mutations: mutations, recorder: recorder}
}

// Resolve validates req, looks up the target's schedules and dispatches one batch call
// per action group. Malformed requests fail before any remote call. Once dispatch has
// started each group is independent: a failed group does not stop or undo the others,
// and all failures are returned joined. A done ctx stops dispatch before the next call.
func (r *Resolver) Resolve(ctx context.Context, req *UpdateRequest) (*Outcome, error) {
	set, out, groups, err := r.prepare(ctx, req)
	if err != nil {
		return out, err
	}

	var errs []error
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			out.Skipped = append(out.Skipped, groups[i:]...)
			errs = append(errs, err)
			log.Warn().Err(err).Int("skipped_groups", len(groups)-i).Msg("schedule dispatch interrupted")
			break
		}
		res := GroupResult{ActionGroup: g}
		if callErr := set.invoke(ctx, req.TargetID, g); callErr != nil {
			group := g
			rerr := &RemoteCallError{Op: set.opName(g.Action), Group: &group, Err: callErr}
			res.Err = rerr
			res.Error = rerr.Error()
			errs = append(errs, rerr)
			log.Error().Err(callErr).
				Str("context", string(req.Context)).
				Int("target_id", req.TargetID).
				Str("action", g.Action.String()).
				Ints("definition_ids", g.DefinitionIDs).
				Msg("schedule batch call failed")
		} else {
			log.Info().
				Str("context", string(req.Context)).
				Int("target_id", req.TargetID).
				Str("action", g.Action.String()).
				Int64("interval_ms", g.IntervalMillis).
				Ints("definition_ids", g.DefinitionIDs).
				Msg("schedule batch call applied")
		}
		out.Dispatched = append(out.Dispatched, res)
		r.record(ctx, Change{Context: req.Context, TargetID: req.TargetID, Group: g, Err: res.Err, At: time.Now().UTC()})
	}
	return out, errors.Join(errs...)
}

// Preview runs validation, the schedule lookup and planning but issues no batch call.
// The groups Resolve would dispatch are returned in Outcome.Planned.
func (r *Resolver) Preview(ctx context.Context, req *UpdateRequest) (*Outcome, error) {
	_, out, groups, err := r.prepare(ctx, req)
	if err != nil {
		return out, err
	}
	out.Planned = groups
	return out, nil
}

func (r *Resolver) prepare(ctx context.Context, req *UpdateRequest) (mutationSet, *Outcome, []ActionGroup, error) {
	if err := validateRequest(req); err != nil {
		log.Warn().Err(err).Msg("rejecting schedule update request")
		return mutationSet{}, nil, nil, err
	}
	set, err := r.mutationsFor(req.Context)
	if err != nil {
		log.Warn().Err(err).Int("target_id", req.TargetID).Msg("rejecting schedule update request")
		return mutationSet{}, nil, nil, err
	}

	out := &Outcome{Context: req.Context, TargetID: req.TargetID, Dispatched: []GroupResult{}}
	if err := ctx.Err(); err != nil {
		return set, out, nil, err
	}
	descriptors, err := r.query.FindSchedules(ctx, Criteria{
		Kind:                         req.Context,
		TargetID:                     req.TargetID,
		IncludeDefinitionDisplayName: true,
	})
	if err != nil {
		return set, out, nil, &RemoteCallError{Op: "findSchedules", Err: err}
	}
	out.Candidates = len(descriptors)

	groups, unmatched := Plan(req.Schedules, descriptors)
	out.Unmatched = unmatched
	if len(unmatched) > 0 {
		log.Debug().
			Str("context", string(req.Context)).
			Int("target_id", req.TargetID).
			Strs("names", unmatched).
			Msg("schedule directives matched no definition; ignored")
	}
	return set, out, groups, nil
}

func (r *Resolver) record(ctx context.Context, c Change) {
	if err := r.recorder.RecordChange(context.WithoutCancel(ctx), c); err != nil {
		log.Warn().Err(err).Str("action", c.Group.Action.String()).Msg("record schedule change failed")
	}
}

func (r *Resolver) mutationsFor(c Context) (mutationSet, error) {
	switch c {
	case ContextResource:
		return mutationSet{
			kind:        ContextResource,
			enable:      r.mutations.EnableForResource,
			disable:     r.mutations.DisableForResource,
			setInterval: r.mutations.SetIntervalForResource,
		}, nil
	case ContextGroup:
		return mutationSet{
			kind:        ContextGroup,
			enable:      r.mutations.EnableForGroup,
			disable:     r.mutations.DisableForGroup,
			setInterval: r.mutations.SetIntervalForGroup,
		}, nil
	default:
		return mutationSet{}, &UnsupportedContextError{Context: c}
	}
}

func validateRequest(req *UpdateRequest) error {
	if req == nil {
		return &ValidationError{Field: "request", Reason: "is required"}
	}
	if req.TargetID <= 0 {
		return &ValidationError{Field: "targetId", Reason: "must be a positive id"}
	}
	if len(req.Schedules) == 0 {
		return &ValidationError{Field: "schedules", Reason: "must not be empty"}
	}
	names := make([]string, 0, len(req.Schedules))
	for name := range req.Schedules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "schedules", Reason: "contains an empty display name"}
		}
		if err := req.Schedules[name].validate(); err != nil {
			return &ValidationError{Field: "schedules[" + name + "]", Reason: err.Error()}
		}
	}
	return nil
}
