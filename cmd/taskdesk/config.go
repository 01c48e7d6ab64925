package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdesk/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := dataDirFlag
			if dataDir == "" {
				var err error
				if dataDir, err = config.DataDir(); err != nil {
					return err
				}
			}
			path := configFlag
			if path == "" {
				path = config.Path(dataDir)
			}
			if err := config.WriteDefault(path, dataDir, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", color.GreenString("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dataDir, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			key := color.New(color.FgCyan).SprintFunc()
			fmt.Fprintf(out, "%s %s\n", key("data dir:"), dataDir)
			fmt.Fprintf(out, "%s %s\n", key("database.driver:"), cfg.Database.Driver)
			fmt.Fprintf(out, "%s %s\n", key("database.path:"), cfg.Database.Path)
			if cfg.Database.Driver == config.DriverPostgres {
				pg := cfg.Database.Postgres
				fmt.Fprintf(out, "%s %s:%d/%s\n", key("database.postgres:"), pg.Host, pg.Port, pg.Database)
			}
			fmt.Fprintf(out, "%s %s\n", key("api.addr:"), cfg.API.Addr)
			schedule := cfg.Refresh.Schedule
			if schedule == "" {
				schedule = color.HiBlackString("off")
			}
			fmt.Fprintf(out, "%s %s\n", key("refresh.schedule:"), schedule)
			fmt.Fprintf(out, "%s %s (%s)\n", key("log:"), cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
