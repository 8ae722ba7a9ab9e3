package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/doctor"
	"github.com/bioplatforms/bpaworkflow/internal/inspect"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
)

var errInvalidConfig = errors.New("configuration has errors")

func newStagingCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage the staging directory",
	}

	var olderThan time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove staging and download directories left behind by crashed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			age := cfg.Staging.StaleAfter
			if cmd.Flags().Changed("older-than") {
				age = olderThan
			}
			mgr, err := staging.NewManager(cfg.Staging.Dir)
			if err != nil {
				return err
			}
			report, err := mgr.Cleanup(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d director(ies) older than %s from %s\n", report.DeletedDirs, age, mgr.Dir())
			return nil
		},
	}
	cleanup.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age to remove (default: staging.stale_after)")
	cmd.AddCommand(cleanup)
	return cmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var (
		expectHash string
		jsonOut    bool
	)
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and its importers and print its BLAKE3 hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(g)
			if err != nil {
				return err
			}
			resolved, err := config.ResolvePath(path)
			if err != nil {
				return err
			}
			if expectHash != "" {
				if err := config.VerifyFileHash(resolved, expectHash); err != nil {
					return err
				}
			}
			hash, err := config.ComputeBlake3Hash(resolved)
			if err != nil {
				return err
			}
			result := doctor.New(cfg).Validate()

			out := cmd.OutOrStdout()
			if jsonOut {
				report, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, report)
			} else {
				fmt.Fprintf(out, "Config:    %s\n", resolved)
				fmt.Fprintf(out, "BLAKE3:    %s\n", hash)
				fmt.Fprintf(out, "Importers: %d\n", len(cfg.Importers))
				fmt.Fprint(out, doctor.FormatHuman(result))
			}
			if !result.Valid {
				return errInvalidConfig
			}
			if !jsonOut {
				fmt.Fprintln(out, "OK")
			}
			return nil
		},
	}
	check.Flags().StringVar(&expectHash, "expect-hash", "", "Fail unless the config file has this BLAKE3 hash")
	check.Flags().BoolVar(&jsonOut, "json", false, "Print the validation result as JSON")
	cmd.AddCommand(check)
	return cmd
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "inspect <submission-id>",
		Short: "Show the stage history and staged files of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			var report string
			if jsonOut {
				report, err = inspect.BuildJSONReport(ctx, a.store, a.queue, args[0])
			} else {
				report, err = inspect.BuildReport(ctx, a.store, a.queue, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			if jsonOut {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	return cmd
}
