package profile

import (
	"fmt"
	"os"
	"strings"

	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Profile is a named schedule overlay for one target. Cron is optional; profiles
// without it are only applied on demand.
type Profile struct {
	Name      string                        `yaml:"name" json:"name"`
	Cron      string                        `yaml:"cron,omitempty" json:"cron,omitempty"`
	Context   schedule.Context              `yaml:"context" json:"context"`
	TargetID  int                           `yaml:"target_id" json:"targetId"`
	Schedules map[string]schedule.Directive `yaml:"schedules" json:"schedules"`
}

type file struct {
	Profiles []Profile `yaml:"profiles"`
}

// Request builds the update request for the profile.
func (p Profile) Request() *schedule.UpdateRequest {
	return &schedule.UpdateRequest{
		Context:   p.Context,
		TargetID:  p.TargetID,
		Schedules: p.Schedules,
	}
}

// Load reads and validates a profile file.
func Load(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file %s: %w", path, err)
	}
	profiles, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile file %s: %w", path, err)
	}
	return profiles, nil
}

// Parse decodes a profile document. Contexts are normalized and cron expressions are
// checked here so a bad file is rejected before anything is scheduled.
func Parse(data []byte) ([]Profile, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("profile #%d: name is required", i+1)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("profile %q: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}

		p.Context = schedule.ParseContext(string(p.Context))
		if p.Context != schedule.ContextResource && p.Context != schedule.ContextGroup {
			return nil, fmt.Errorf("profile %q: %w", p.Name, &schedule.UnsupportedContextError{Context: p.Context})
		}
		if p.TargetID <= 0 {
			return nil, fmt.Errorf("profile %q: target_id must be positive", p.Name)
		}
		if len(p.Schedules) == 0 {
			return nil, fmt.Errorf("profile %q: schedules must not be empty", p.Name)
		}
		if p.Cron != "" {
			if _, err := cron.ParseStandard(p.Cron); err != nil {
				return nil, fmt.Errorf("profile %q: invalid cron %q: %w", p.Name, p.Cron, err)
			}
		}
	}
	return f.Profiles, nil
}

// Find returns the profile with the given name.
func Find(profiles []Profile, name string) (Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
