package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "planner/internal/log"
	"planner/internal/reminder"
	"planner/internal/web"
)

func serveCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API and the reminder scanner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return runServe(a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(a *app) error {
	cfg := a.cfg
	appLog.Info("planner starting", "version", Version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"storage", cfg.Storage.Driver,
		"reminder_schedule", cfg.Reminder.Schedule,
		"webhook", cfg.Reminder.WebhookURL != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	svc, closeStore, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}

	feed := reminder.NewFeed(0)
	notifiers := reminder.Multi{reminder.LogNotifier{}, feed}
	if cfg.Reminder.WebhookURL != "" {
		notifiers = append(notifiers, reminder.NewWebhookNotifier(cfg.Reminder.WebhookURL))
	}

	scanner := reminder.NewScanner(svc, notifiers, reminder.Options{
		Location:  loc,
		Schedule:  cfg.Reminder.Schedule,
		Retention: cfg.Reminder.Retention,
	})
	if err := scanner.Start(); err != nil {
		return err
	}
	defer scanner.Stop()

	err = web.NewServer(cfg, svc, feed).Run(ctx)
	appLog.Info("planner exiting")
	return err
}
