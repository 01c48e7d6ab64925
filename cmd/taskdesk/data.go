package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdesk/internal/api"
	"github.com/tgienger/taskdesk/internal/export"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show employee and task totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.loadSignedIn(ctx); err != nil {
				return err
			}
			stats := rt.store.Stats()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			label := color.New(color.FgCyan, color.Bold).SprintFunc()
			fmt.Fprintf(out, "%s %d\n", label("Employees:"), stats.TotalEmployees)
			fmt.Fprintf(out, "%s %d\n", label("Tasks:    "), stats.TotalTasks)
			fmt.Fprintf(out, "  %s %d\n", color.HiBlackString("To Do:"), stats.Todo)
			fmt.Fprintf(out, "  %s %d\n", color.YellowString("In Progress:"), stats.InProgress)
			fmt.Fprintf(out, "  %s %d\n", color.GreenString("Done:"), stats.Done)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export employees|tasks|report",
		Short:     "Export data as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"employees", "tasks", "report"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind export.Kind
			switch args[0] {
			case "employees":
				kind = export.KindEmployees
			case "tasks":
				kind = export.KindTasks
			case "report":
				kind = export.KindReport
			default:
				return fmt.Errorf("unknown export %q (want employees, tasks or report)", args[0])
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.loadSignedIn(ctx); err != nil {
				return err
			}

			if output == "-" {
				return export.Write(cmd.OutOrStdout(), kind, rt.store)
			}
			if output == "" {
				output = export.FileName(kind, time.Now())
			}
			if err := writeFile(output, func(w io.Writer) error {
				return export.Write(w, kind, rt.store)
			}); err != nil {
				return err
			}
			abs, _ := filepath.Abs(output)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", color.GreenString("✓"), abs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default <kind>-YYYY-MM-DD.csv)")
	return cmd
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.cfg.API.Addr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Serving on %s\n", color.GreenString("✓"), addr)
			return api.NewServer(rt.backend, rt.log).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
