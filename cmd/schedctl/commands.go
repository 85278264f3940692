package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/client"
	"github.com/rhq-project/rhq-sub002/internal/measurement/profile"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	profilesFile string
	profileName  string
	dryRun       bool
	changesLimit int
)

var applyCmd = &cobra.Command{
	Use:          "apply -f profiles.yaml",
	Short:        "Apply schedule profiles from a YAML file",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := profile.Load(profilesFile)
		if err != nil {
			return err
		}
		if profileName != "" {
			p, ok := profile.Find(profiles, profileName)
			if !ok {
				return fmt.Errorf("profile %q not found in %s", profileName, profilesFile)
			}
			profiles = []profile.Profile{p}
		}
		c := newClient()
		var failed []string
		for _, p := range profiles {
			log.Debug().Str("profile", p.Name).Bool("dry_run", dryRun).Msg("applying profile")
			resp, err := c.Apply(cmd.Context(), p.Request(), dryRun)
			if err != nil {
				failed = append(failed, p.Name)
				fmt.Fprintf(cmd.ErrOrStderr(), "profile %s: %v\n", p.Name, err)
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Outcome != nil {
					printOutcome(cmd.OutOrStdout(), p.Name, apiErr.Outcome)
				}
				continue
			}
			if err := printResolve(cmd.OutOrStdout(), p.Name, resp); err != nil {
				return err
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d profile(s) failed: %s", len(failed), strings.Join(failed, ", "))
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:          "set <resource|group> <id> <name>=<enabled|disabled|interval>...",
	Short:        "Apply directives to one resource or group",
	Example:      `  schedctl set group 10001 "CPU Load=15m" "Swap Used=disabled"`,
	Args:         cobra.MinimumNArgs(3),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := parseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		schedules, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}
		resp, err := newClient().Apply(cmd.Context(), &schedule.UpdateRequest{Context: kind, TargetID: id, Schedules: schedules}, dryRun)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Outcome != nil {
				printOutcome(cmd.OutOrStdout(), "", apiErr.Outcome)
			}
			return err
		}
		return printResolve(cmd.OutOrStdout(), "", resp)
	},
}

var listCmd = &cobra.Command{
	Use:          "list <resource|group> <id>",
	Short:        "List the measurement schedules of a target",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := parseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		resp, err := newClient().ListSchedules(cmd.Context(), kind, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEFINITION\tNAME")
		for _, d := range resp.Schedules {
			fmt.Fprintf(w, "%d\t%s\n", d.DefinitionID, d.DisplayName)
		}
		return w.Flush()
	},
}

var changesCmd = &cobra.Command{
	Use:          "changes <resource|group> <id>",
	Short:        "Show recent schedule changes of a target",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := parseTarget(args[0], args[1])
		if err != nil {
			return err
		}
		resp, err := newClient().Changes(cmd.Context(), kind, id, changesLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tINTERVAL_MS\tDEFINITIONS\tERROR")
		for _, e := range resp.Changes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", e.At.Format("2006-01-02T15:04:05Z07:00"), e.Action, e.IntervalMillis, e.DefinitionIDs, e.Error)
		}
		return w.Flush()
	},
}

var intervalCmd = &cobra.Command{
	Use:          "interval <amount> <seconds|minutes|hours>",
	Short:        "Convert an interval to milliseconds",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		resp, err := newClient().Interval(cmd.Context(), amount, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.IntervalMillis)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVarP(&profilesFile, "file", "f", "", "profile YAML file")
	applyCmd.Flags().StringVar(&profileName, "profile", "", "apply only the named profile")
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only; issue no batch calls")
	_ = applyCmd.MarkFlagRequired("file")

	setCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only; issue no batch calls")
	changesCmd.Flags().IntVar(&changesLimit, "limit", 20, "maximum number of changes")
}

func parseTarget(kindArg, idArg string) (schedule.Context, int, error) {
	kind := schedule.ParseContext(kindArg)
	if kind != schedule.ContextResource && kind != schedule.ContextGroup {
		return "", 0, &schedule.UnsupportedContextError{Context: kind}
	}
	id, err := strconv.Atoi(idArg)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid id %q: must be a positive integer", idArg)
	}
	return kind, id, nil
}

// parseAssignments reads "Display Name=directive" arguments. The last '=' separates
// the name so names may contain '='.
func parseAssignments(args []string) (map[string]schedule.Directive, error) {
	out := make(map[string]schedule.Directive, len(args))
	for _, arg := range args {
		i := strings.LastIndex(arg, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid assignment %q: want <name>=<directive>", arg)
		}
		name := strings.TrimSpace(arg[:i])
		d, err := schedule.ParseDirective(arg[i+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", arg, err)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate assignment for %q", name)
		}
		out[name] = d
	}
	return out, nil
}

func printResolve(w io.Writer, name string, resp *model.ResolveResponse) error {
	if jsonOutput {
		return printJSON(w, resp)
	}
	if resp.Outcome != nil {
		printOutcome(w, name, resp.Outcome)
	}
	return nil
}

func printOutcome(w io.Writer, name string, o *schedule.Outcome) {
	header := fmt.Sprintf("%s %d", o.Context, o.TargetID)
	if name != "" {
		header = name + " (" + header + ")"
	}
	fmt.Fprintf(w, "%s: %d candidate schedule(s)\n", header, o.Candidates)
	for _, g := range o.Planned {
		fmt.Fprintf(w, "  plan     %s\n", g)
	}
	for _, r := range o.Dispatched {
		status := "ok"
		if r.Error != "" {
			status = "FAILED: " + r.Error
		}
		fmt.Fprintf(w, "  applied  %s  %s\n", r.ActionGroup, status)
	}
	for _, g := range o.Skipped {
		fmt.Fprintf(w, "  skipped  %s\n", g)
	}
	if len(o.Unmatched) > 0 {
		names := append([]string(nil), o.Unmatched...)
		sort.Strings(names)
		fmt.Fprintf(w, "  unmatched: %s\n", strings.Join(names, ", "))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
