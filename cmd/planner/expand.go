package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	appLog "planner/internal/log"
	"planner/internal/model"
	"planner/internal/schedule"
)

// windowFlags is the --from/--to pair shared by expand and export xlsx.
type windowFlags struct {
	from string
	to   string
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.from, "from", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&w.to, "to", "", "day after the last, YYYY-MM-DD (default from + list_days)")
}

// resolve returns the half-open window between local midnights.
func (w *windowFlags) resolve(a *app) (schedule.Window, *time.Location, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", a.cfg.Timezone)
	}

	start := schedule.DayWindow(time.Now(), loc).Start
	if w.from != "" {
		if start, err = time.ParseInLocation(time.DateOnly, w.from, loc); err != nil {
			return schedule.Window{}, nil, fmt.Errorf("--from: %w", err)
		}
	}
	end := start.AddDate(0, 0, a.cfg.ListDays)
	if w.to != "" {
		if end, err = time.ParseInLocation(time.DateOnly, w.to, loc); err != nil {
			return schedule.Window{}, nil, fmt.Errorf("--to: %w", err)
		}
	}

	win := schedule.Window{Start: start, End: end}
	if !win.Valid() {
		return schedule.Window{}, nil, fmt.Errorf("--to %s is before --from %s", w.to, w.from)
	}
	return win, loc, nil
}

func expandCmd(a *app) *cobra.Command {
	var (
		window windowFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the occurrences in a window, marking conflicts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			win, loc, err := window.resolve(a)
			if err != nil {
				return err
			}
			svc, closeStore, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			res := svc.Occurrences(win.Start, win.End)
			schedule.SortOccurrences(res.Occurrences)
			for _, id := range res.Truncated {
				appLog.Info("series truncated at iteration cap", "id", id, "cap", schedule.MaxIterations)
			}
			conflicts := schedule.ConflictSet(res.Occurrences)

			if asJSON {
				return writeOccurrencesJSON(cmd.OutOrStdout(), res.Occurrences, conflicts)
			}
			return writeOccurrencesTable(cmd.OutOrStdout(), res.Occurrences, conflicts, loc)
		},
	}
	window.register(cmd)
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func writeOccurrencesTable(w io.Writer, occs []model.Occurrence, conflicts map[string]bool, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tSTART\tEND\tPRIORITY\tDONE\tTITLE\tID")
	for _, o := range occs {
		mark := ""
		if conflicts[o.ID.String()] {
			mark = "!"
		}
		done := ""
		if o.Completed {
			done = "x"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			o.Start.In(loc).Format("Mon 2006-01-02 15:04"),
			o.End.In(loc).Format("15:04"),
			o.Priority, done, o.Title, o.ID)
	}
	return tw.Flush()
}

func writeOccurrencesJSON(w io.Writer, occs []model.Occurrence, conflicts map[string]bool) error {
	type row struct {
		model.Occurrence
		Conflict bool `json:"conflict"`
	}
	rows := make([]row, len(occs))
	for i, o := range occs {
		rows[i] = row{Occurrence: o, Conflict: conflicts[o.ID.String()]}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
