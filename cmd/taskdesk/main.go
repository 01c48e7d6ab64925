package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdesk/internal/refresh"
	"github.com/tgienger/taskdesk/internal/ui"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag  string
	dataDirFlag string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskdesk",
		Short: "Employee and task management",
		Long: `taskdesk manages your employees and the tasks assigned to them.

Run without arguments to open the terminal UI.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default <data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default $XDG_DATA_HOME/taskdesk)")

	root.AddCommand(
		newSignUpCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newStatsCmd(),
		newExportCmd(),
		newServeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskdesk %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// runTUI opens the terminal UI. Logs go to the data directory because
// the UI owns the terminal.
func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := ui.NewApp(rt.store, rt.session, rt.local)
	if err := rt.session.Start(ctx); err != nil {
		// A broken session only means signing in again
		rt.log.Warn("could not restore session", "error", err)
	}

	if spec := rt.cfg.Refresh.Schedule; spec != "" {
		sched, err := refresh.New(spec, rt.store, rt.log)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running application: %w", err)
	}
	return nil
}
