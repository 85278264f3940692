package schedule

import (
	"context"
	"fmt"
	"strings"
)

// Context selects the identifier space of an UpdateRequest target and the family of
// mutation calls used for it.
type Context string

const (
	ContextResource Context = "resource"
	ContextGroup    Context = "group"
)

// ParseContext maps user input onto a Context. Unknown values are returned as-is so the
// resolver can reject them with an UnsupportedContextError carrying the original text.
func ParseContext(s string) Context {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resource", "resources":
		return ContextResource
	case "group", "groups", "compatible-group", "compatiblegroup":
		return ContextGroup
	default:
		return Context(s)
	}
}

// DirectiveKind enumerates what a request wants done to a schedule.
type DirectiveKind int

const (
	DirectiveEnabled DirectiveKind = iota + 1
	DirectiveDisabled
	DirectiveInterval
)

// Directive is one entry of UpdateRequest.Schedules. The zero value is invalid.
type Directive struct {
	Kind           DirectiveKind
	IntervalMillis int64 // only meaningful for DirectiveInterval
}

var (
	Enabled  = Directive{Kind: DirectiveEnabled}
	Disabled = Directive{Kind: DirectiveDisabled}
)

// IntervalMillis builds a set-interval directive.
func IntervalMillis(n int64) Directive {
	return Directive{Kind: DirectiveInterval, IntervalMillis: n}
}

func (d Directive) String() string {
	switch d.Kind {
	case DirectiveEnabled:
		return "enabled"
	case DirectiveDisabled:
		return "disabled"
	case DirectiveInterval:
		return fmt.Sprintf("interval(%dms)", d.IntervalMillis)
	default:
		return "invalid"
	}
}

func (d Directive) validate() error {
	switch d.Kind {
	case DirectiveEnabled, DirectiveDisabled:
		return nil
	case DirectiveInterval:
		if d.IntervalMillis <= 0 {
			return fmt.Errorf("interval must be a positive number of milliseconds, got %d", d.IntervalMillis)
		}
		return nil
	default:
		return fmt.Errorf("unknown directive kind %d", d.Kind)
	}
}

// UpdateRequest is a sparse overlay of directives keyed by metric display name.
// Schedules not named in the request are left untouched.
type UpdateRequest struct {
	Context   Context              `json:"context" yaml:"context"`
	TargetID  int                  `json:"targetId" yaml:"target_id"`
	Schedules map[string]Directive `json:"schedules" yaml:"schedules"`
}

// ScheduleDescriptor is a schedule returned by the query collaborator.
type ScheduleDescriptor struct {
	DefinitionID int    `json:"definitionId"`
	DisplayName  string `json:"displayName"`
}

// Criteria is the provider-neutral query handed to QueryService.
type Criteria struct {
	Kind                         Context
	TargetID                     int
	IncludeDefinitionDisplayName bool
}

// ActionKind is the mutation an ActionGroup maps to.
type ActionKind int

const (
	ActionEnable ActionKind = iota + 1
	ActionDisable
	ActionSetInterval
)

func (k ActionKind) String() string {
	switch k {
	case ActionEnable:
		return "enable"
	case ActionDisable:
		return "disable"
	case ActionSetInterval:
		return "set_interval"
	default:
		return "unknown"
	}
}

func (k ActionKind) MarshalText() ([]byte, error) {
	if k < ActionEnable || k > ActionSetInterval {
		return nil, fmt.Errorf("invalid action kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ActionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "enable":
		*k = ActionEnable
	case "disable":
		*k = ActionDisable
	case "set_interval":
		*k = ActionSetInterval
	default:
		return fmt.Errorf("unknown action %q", string(text))
	}
	return nil
}

// ActionGroup collects the definition ids sharing one action. Interval groups are keyed
// by their millis value, so two different intervals form two groups.
type ActionGroup struct {
	Action         ActionKind `json:"action"`
	IntervalMillis int64      `json:"intervalMillis,omitempty"`
	DefinitionIDs  []int      `json:"definitionIds"`
}

func (g ActionGroup) String() string {
	if g.Action == ActionSetInterval {
		return fmt.Sprintf("%s(%dms)%v", g.Action, g.IntervalMillis, g.DefinitionIDs)
	}
	return fmt.Sprintf("%s%v", g.Action, g.DefinitionIDs)
}

// QueryService looks up the schedules defined on a resource or a compatible group.
type QueryService interface {
	FindSchedules(ctx context.Context, criteria Criteria) ([]ScheduleDescriptor, error)
}

// MutationService is the remote schedule manager. Resource and group variants have the
// same semantics over different id spaces.
type MutationService interface {
	EnableForResource(ctx context.Context, resourceID int, definitionIDs []int) error
	EnableForGroup(ctx context.Context, groupID int, definitionIDs []int) error
	DisableForResource(ctx context.Context, resourceID int, definitionIDs []int) error
	DisableForGroup(ctx context.Context, groupID int, definitionIDs []int) error
	SetIntervalForResource(ctx context.Context, resourceID int, definitionIDs []int, millis int64) error
	SetIntervalForGroup(ctx context.Context, groupID int, definitionIDs []int, millis int64) error
}
