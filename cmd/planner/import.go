package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"planner/internal/ics"
	"planner/internal/importer"
)

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|file.ics|url>...",
		Short: "Import tasks from extracted drafts, calendar files or calendar URLs",
		Long: `Import tasks into the planner.

Sources:
  *.json          drafts as an array or {"tasks": [...]}
  *.ics           an iCalendar file
  http(s)://...   a remote iCalendar feed (cached with ETag/Last-Modified)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			var (
				errs  []error
				feeds []ics.Source
			)
			add := func(name string, drafts []importer.Draft) {
				tasks, err := svc.Import(ctx, drafts)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d of %d\n", name, len(tasks), len(drafts))
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
				}
			}

			for _, arg := range args {
				if isURL(arg) {
					feeds = append(feeds, ics.Source{URL: arg})
					continue
				}
				drafts, err := readDrafts(arg)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", arg, err))
					continue
				}
				add(arg, drafts)
			}

			if len(feeds) > 0 {
				results, err := ics.NewFetcher(a.cfg.ICSCacheDir).FetchAll(ctx, feeds)
				if err != nil {
					errs = append(errs, err)
				}
				for _, res := range results {
					drafts, err := draftsFromICS(res.Source, res.Body)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", res.Source.ID, err))
						continue
					}
					add(res.Source.ID, drafts)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// readDrafts reads a local .ics or JSON drafts file.
func readDrafts(arg string) ([]importer.Draft, error) {
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(arg), ".ics") {
		return draftsFromICS(ics.Source{ID: filepath.Base(arg)}, data)
	}
	return importer.DecodeDrafts(bytes.NewReader(data))
}

func draftsFromICS(src ics.Source, body []byte) ([]importer.Draft, error) {
	events, err := ics.ParseICS(src, body)
	if err != nil {
		return nil, err
	}
	return ics.ToDrafts(events), nil
}
