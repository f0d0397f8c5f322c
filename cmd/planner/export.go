package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"planner/internal/export"
	"planner/internal/ics"
	"planner/internal/schedule"
)

func exportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as iCalendar or occurrences as a spreadsheet",
	}
	cmd.AddCommand(exportICSCmd(a))
	cmd.AddCommand(exportXLSXCmd(a))
	return cmd
}

func exportICSCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "ics <out|->",
		Short: "Write every series as a VEVENT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			out := ics.Export(svc.Tasks(), name, time.Now())
			return writeOutput(cmd, args[0], func(w io.Writer) error {
				_, err := io.WriteString(w, out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Planner", "calendar name")
	return cmd
}

func exportXLSXCmd(a *app) *cobra.Command {
	var window windowFlags

	cmd := &cobra.Command{
		Use:   "xlsx <out|->",
		Short: "Write the occurrences in a window as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			conflicts := schedule.ConflictSet(res.Occurrences)

			return writeOutput(cmd, args[0], func(w io.Writer) error {
				return export.WriteOccurrences(w, res.Occurrences, conflicts, loc)
			})
		},
	}
	window.register(cmd)
	return cmd
}

// writeOutput writes to stdout for "-", otherwise to path.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}
