package main

import (
	"bytes"
	"testing"

	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"CPU Load=15m", "Swap Used = disabled", "a=b=on", "Free Memory=60000"})
	require.NoError(t, err)
	assert.Equal(t, map[string]schedule.Directive{
		"CPU Load":    schedule.IntervalMillis(900000),
		"Swap Used":   schedule.Disabled,
		"a=b":         schedule.Enabled,
		"Free Memory": schedule.IntervalMillis(60000),
	}, got)

	for _, bad := range [][]string{{"CPU Load"}, {"=on"}, {"A=sometimes"}, {"A=on", "A=off"}} {
		_, err := parseAssignments(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTarget(t *testing.T) {
	kind, id, err := parseTarget("Group", "42")
	require.NoError(t, err)
	assert.Equal(t, schedule.ContextGroup, kind)
	assert.Equal(t, 42, id)

	_, _, err = parseTarget("platform", "42")
	assert.ErrorIs(t, err, schedule.ErrUnsupportedContext)
	_, _, err = parseTarget("resource", "-1")
	assert.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, "web", &schedule.Outcome{
		Context:    schedule.ContextGroup,
		TargetID:   5,
		Candidates: 2,
		Dispatched: []schedule.GroupResult{
			{ActionGroup: schedule.ActionGroup{Action: schedule.ActionEnable, DefinitionIDs: []int{1}}},
			{ActionGroup: schedule.ActionGroup{Action: schedule.ActionDisable, DefinitionIDs: []int{2}}, Error: "boom"},
		},
		Unmatched: []string{"Z", "A"},
	})
	out := buf.String()
	assert.Contains(t, out, "web (group 5): 2 candidate schedule(s)")
	assert.Contains(t, out, "FAILED: boom")
	assert.Contains(t, out, "unmatched: A, Z")
}
