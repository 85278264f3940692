package schedule

import (
	"sort"
)

// Plan matches descriptors against the requested directives and partitions the matched
// definition ids into action groups. Groups come back in dispatch order: enable,
// disable, then set-interval groups by ascending interval. Descriptors not named in
// the request are skipped; request names that matched no descriptor are returned sorted
// in unmatched. A definition is dispatched once; a second requested name that reports
// the same definition with a different directive is dropped and listed in unmatched.
func Plan(schedules map[string]Directive, descriptors []ScheduleDescriptor) (groups []ActionGroup, unmatched []string) {
	var enable, disable []int
	intervals := map[int64][]int{}
	seenName := make(map[string]bool, len(schedules))
	seenDef := make(map[int]Directive, len(descriptors))

	for _, d := range descriptors {
		dir, ok := schedules[d.DisplayName]
		if !ok {
			continue
		}
		if prev, dup := seenDef[d.DefinitionID]; dup {
			if prev == dir {
				seenName[d.DisplayName] = true
			}
			continue
		}
		seenName[d.DisplayName] = true
		seenDef[d.DefinitionID] = dir
		switch dir.Kind {
		case DirectiveEnabled:
			enable = append(enable, d.DefinitionID)
		case DirectiveDisabled:
			disable = append(disable, d.DefinitionID)
		case DirectiveInterval:
			intervals[dir.IntervalMillis] = append(intervals[dir.IntervalMillis], d.DefinitionID)
		}
	}

	if len(enable) > 0 {
		groups = append(groups, ActionGroup{Action: ActionEnable, DefinitionIDs: enable})
	}
	if len(disable) > 0 {
		groups = append(groups, ActionGroup{Action: ActionDisable, DefinitionIDs: disable})
	}
	millis := make([]int64, 0, len(intervals))
	for ms := range intervals {
		millis = append(millis, ms)
	}
	sort.Slice(millis, func(i, j int) bool { return millis[i] < millis[j] })
	for _, ms := range millis {
		groups = append(groups, ActionGroup{Action: ActionSetInterval, IntervalMillis: ms, DefinitionIDs: intervals[ms]})
	}

	for name := range schedules {
		if !seenName[name] {
			unmatched = append(unmatched, name)
		}
	}
	sort.Strings(unmatched)
	return groups, unmatched
}
