package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	promModel "github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// IntervalUnit is the unit of an IntervalSpec amount.
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
)

var unitMillis = map[IntervalUnit]int64{
	UnitSeconds: 1000,
	UnitMinutes: 60 * 1000,
	UnitHours:   60 * 60 * 1000,
}

// ParseIntervalUnit accepts the plural, singular and short forms of a unit.
func ParseIntervalUnit(s string) (IntervalUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seconds", "second", "sec", "secs", "s":
		return UnitSeconds, nil
	case "minutes", "minute", "min", "mins", "m":
		return UnitMinutes, nil
	case "hours", "hour", "hr", "hrs", "h":
		return UnitHours, nil
	default:
		return "", fmt.Errorf("unknown interval unit %q", s)
	}
}

// IntervalSpec is a human friendly collection interval.
type IntervalSpec struct {
	Amount int64        `json:"amount" yaml:"amount"`
	Unit   IntervalUnit `json:"unit" yaml:"unit"`
}

// Millis converts the interval to milliseconds.
func (s IntervalSpec) Millis() (int64, error) {
	mult, ok := unitMillis[s.Unit]
	if !ok {
		return 0, fmt.Errorf("unknown interval unit %q", s.Unit)
	}
	if s.Amount <= 0 {
		return 0, fmt.Errorf("interval amount must be positive, got %d", s.Amount)
	}
	if s.Amount > math.MaxInt64/mult {
		return 0, fmt.Errorf("interval %d %s is out of range", s.Amount, s.Unit)
	}
	return s.Amount * mult, nil
}

// Directive converts the interval into a set-interval directive.
func (s IntervalSpec) Directive() (Directive, error) {
	ms, err := s.Millis()
	if err != nil {
		return Directive{}, err
	}
	return IntervalMillis(ms), nil
}

// ParseDirective reads the textual form used by profiles, the CLI and the HTTP API:
// "enabled"/"disabled" (and on/off), a duration such as "15m" or "1h", or a bare
// integer number of milliseconds.
func ParseDirective(s string) (Directive, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	switch text {
	case "":
		return Directive{}, fmt.Errorf("empty directive")
	case "enabled", "enable", "on", "true":
		return Enabled, nil
	case "disabled", "disable", "off", "false":
		return Disabled, nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n <= 0 {
			return Directive{}, fmt.Errorf("interval must be positive, got %d", n)
		}
		return IntervalMillis(n), nil
	}
	d, err := promModel.ParseDuration(text)
	if err != nil {
		return Directive{}, fmt.Errorf("invalid directive %q: %w", s, err)
	}
	ms := time.Duration(d).Milliseconds()
	if ms <= 0 {
		return Directive{}, fmt.Errorf("interval must be positive, got %q", s)
	}
	return IntervalMillis(ms), nil
}

// structured form of an interval directive in JSON and YAML documents
type intervalObject struct {
	Amount int64  `json:"amount,omitempty" yaml:"amount"`
	Unit   string `json:"unit,omitempty" yaml:"unit"`
	Millis int64  `json:"intervalMillis,omitempty" yaml:"interval_millis"`
}

func (o intervalObject) directive() (Directive, error) {
	if o.Millis != 0 {
		if o.Amount != 0 || o.Unit != "" {
			return Directive{}, fmt.Errorf("interval must use either intervalMillis or amount/unit")
		}
		if o.Millis < 0 {
			return Directive{}, fmt.Errorf("interval must be positive, got %d", o.Millis)
		}
		return IntervalMillis(o.Millis), nil
	}
	unit, err := ParseIntervalUnit(o.Unit)
	if err != nil {
		return Directive{}, err
	}
	return IntervalSpec{Amount: o.Amount, Unit: unit}.Directive()
}

func (d Directive) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DirectiveEnabled, DirectiveDisabled:
		return json.Marshal(d.String())
	case DirectiveInterval:
		return json.Marshal(intervalObject{Millis: d.IntervalMillis})
	default:
		return nil, fmt.Errorf("cannot marshal invalid directive")
	}
}

func (d *Directive) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := ParseDirective(text)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("interval must be positive, got %d", n)
		}
		*d = IntervalMillis(n)
		return nil
	}
	var obj intervalObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid directive %s: %w", string(data), err)
	}
	parsed, err := obj.directive()
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Directive) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseDirective(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = parsed
		return nil
	case yaml.MappingNode:
		var obj intervalObject
		if err := value.Decode(&obj); err != nil {
			return err
		}
		parsed, err := obj.directive()
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("line %d: directive must be a string or a mapping", value.Line)
	}
}
