package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"planner/internal/config"
	appLog "planner/internal/log"
	"planner/internal/planner"
	"planner/internal/store"
)

var Version = "0.1.0-dev"

// app carries what the persistent flags resolve to.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func main() {
	if err := rootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "planner",
		Short:         "Personal task planner with recurring tasks and reminders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "./planner.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with PLANNER_* overrides")

	cmd.AddCommand(serveCmd(a))
	cmd.AddCommand(expandCmd(a))
	cmd.AddCommand(importCmd(a))
	cmd.AddCommand(exportCmd(a))

	return cmd
}

func (a *app) loadConfig() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	a.cfg = cfg
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return nil
}

// openService opens the configured store and loads the task list. The
// returned close func releases the store.
func (a *app) openService(ctx context.Context) (*planner.Service, func(), error) {
	st, err := store.Open(a.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close store", err)
		}
	}

	loc, err := a.cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", a.cfg.Timezone)
	}

	svc := planner.New(st)
	svc.SetDefaultReminder(a.cfg.Reminder.DefaultMinutes)
	svc.SetLocation(loc)
	if err := svc.Load(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}
