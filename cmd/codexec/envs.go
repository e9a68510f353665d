package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Salako07/WKL/internal/domain/execution"
)

var envsCmd = &cobra.Command{
	Use:   "envs",
	Short: "List the environments of the catalogue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		registry, err := loadRegistry(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("loading catalogue: %w", err)
		}
		return printEnvironments(cmd, registry.List())
	},
}

func init() {
	rootCmd.AddCommand(envsCmd)
}

func printEnvironments(cmd *cobra.Command, envs []execution.Environment) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLANGUAGE\tVERSION\tSTATUS\tCOMPILED\tIMAGE")
	for _, env := range envs {
		status := env.Status
		if status == "" {
			status = execution.EnvironmentActive
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", env.ID, env.Language, env.Version, status, env.Compiled(), env.Image)
	}
	return tw.Flush()
}
