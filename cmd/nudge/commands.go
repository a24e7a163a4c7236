package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/completion"
	"github.com/hray3182/nudge/internal/notify"
	"github.com/hray3182/nudge/internal/rrule"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 50
)

func (a *app) previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <daily|weekly|custom|none> <rrule|\"YYYY-MM-DD HH:MM\"> [count]",
		Short: "Print the next occurrences of a recurrence rule",
		Example: `  nudge preview weekly "FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=7;BYMINUTE=30"
  nudge preview none "2026-11-02 09:00"`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := defaultPreviewCount
			if len(args) == 3 {
				v, err := strconv.Atoi(args[2])
				if err != nil || v < 1 || v > maxPreviewCount {
					return fmt.Errorf("count must be between 1 and %d", maxPreviewCount)
				}
				n = v
			}
			loc := a.cfg.Location()
			rule, err := parseRuleArgs(args[0], args[1], loc)
			if err != nil {
				return err
			}
			return writePreview(cmd.OutOrStdout(), rule, clock.NewSystem(loc).Now(), n, loc)
		},
	}
}

// parseRuleArgs reads a rule the way it is stored: an RRULE value for
// recurring frequencies and a local instant for one-shots.
func parseRuleArgs(freqArg, ruleArg string, loc *time.Location) (rrule.Rule, error) {
	freq, err := rrule.ParseFrequency(freqArg)
	if err != nil {
		return rrule.Rule{}, err
	}
	var at time.Time
	if freq == rrule.None {
		at, err = time.ParseInLocation("2006-01-02 15:04", ruleArg, loc)
		if err != nil {
			return rrule.Rule{}, &rrule.ParseError{Field: "at", Value: ruleArg, Err: err}
		}
	}
	return rrule.Parse(freq, ruleArg, at)
}

func writePreview(w io.Writer, rule rrule.Rule, after time.Time, n int, loc *time.Location) error {
	times, err := rrule.Occurrences(rule, after, n, loc)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, rrule.Describe(rule, loc))
	if len(times) == 0 {
		fmt.Fprintln(w, "  no upcoming occurrences")
		return nil
	}
	for _, t := range times {
		fmt.Fprintf(w, "  %s\n", t.In(loc).Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	return nil
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <source-id>",
		Short: "Print streak and completion rates for a routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openBackend(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			clk := clock.NewSystem(a.cfg.Location())
			tracker := completion.NewTracker(store, clk, notify.NewLog(a.logger), store, a.logger)
			stats, err := tracker.Stats(ctx, args[0], civil.DateOf(clk.Now()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source:          %s\n", stats.SourceID)
			fmt.Fprintf(out, "As of:           %s\n", stats.AsOf)
			fmt.Fprintf(out, "Done today:      %t\n", stats.CompletedToday)
			fmt.Fprintf(out, "Current streak:  %d\n", stats.CurrentStreak)
			fmt.Fprintf(out, "Longest streak:  %d\n", stats.LongestStreak)
			fmt.Fprintf(out, "Completions:     %d\n", stats.TotalCompletions)
			fmt.Fprintf(out, "Last 7 days:     %.0f%%\n", stats.WeekRate*100)
			fmt.Fprintf(out, "Last 30 days:    %.0f%%\n", stats.MonthRate*100)
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openBackend(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("migrations applied", "storage", a.cfg.StorageDriver)
			return store.Close()
		},
	}
}
