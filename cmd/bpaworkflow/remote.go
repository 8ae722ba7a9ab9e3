package main

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bioplatforms/bpaworkflow/internal/client"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/tui/monitor"
	"github.com/bioplatforms/bpaworkflow/internal/tui/picker"
	"github.com/bioplatforms/bpaworkflow/internal/tui/watch"
)

func newSubmitCmd(g *globalFlags) *cobra.Command {
	var (
		importerName string
		wait         bool
		jsonOut      bool
	)
	cmd := &cobra.Command{
		Use:   "submit <spreadsheet.xlsx> <manifest.md5>",
		Short: "Upload a submission to a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.New(g.apiURL)
			if importerName == "" {
				chosen, err := pickImporter(cmd, c)
				if err != nil {
					return err
				}
				importerName = chosen
			}
			id, err := c.Submit(ctx, importerName, args[0], args[1])
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			var final jobstate.Status
			if err := c.Stream(ctx, id, func(st jobstate.Status) { final = st }); err != nil {
				return err
			}
			if err := writeStatus(cmd.OutOrStdout(), final, jsonOut); err != nil {
				return err
			}
			if hasFindings(final) {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&importerName, "importer", "i", "", "Importer id (omit to choose interactively)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the submission to complete and print its status")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final status as JSON (with --wait)")
	return cmd
}

var errNoImporter = errors.New("no importer selected")

// pickImporter asks the server for its importers and lets the user choose one.
func pickImporter(cmd *cobra.Command, c *client.Client) (string, error) {
	meta, err := c.Metadata(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("list importers: %w", err)
	}
	if len(meta.Projects) == 0 {
		return "", fmt.Errorf("%w: the server has no importers", errNoImporter)
	}
	m := picker.New(meta)
	final, err := tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.ErrOrStderr())).Run()
	if err != nil {
		return "", fmt.Errorf("TUI error: %w", err)
	}
	var chosen string
	switch fm := final.(type) {
	case picker.Model:
		chosen = fm.Choice()
	case *picker.Model:
		chosen = fm.Choice()
	}
	if chosen == "" {
		return "", errNoImporter
	}
	return chosen, nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var (
		local   bool
		jsonOut bool
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <submission-id>",
		Short: "Show the status of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			var (
				st  jobstate.Status
				err error
			)
			switch {
			case local:
				a, openErr := openApp(ctx, g)
				if openErr != nil {
					return openErr
				}
				defer a.Close()
				st, err = a.orch.Status(ctx, id)
			case wait > 0:
				st, err = client.New(g.apiURL).Wait(ctx, id, wait)
			default:
				st, err = client.New(g.apiURL).Status(ctx, id)
			}
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), st, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Read the state database directly instead of asking the server")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the status as JSON")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll at this interval until the submission completes")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <submission-id>",
		Short: "Follow a submission in a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := watch.New(cmd.Context(), client.New(g.apiURL), args[0])
			if _, err := tea.NewProgram(m, tea.WithContext(cmd.Context())).Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
}

func newMonitorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Follow every submission on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := monitor.New(cmd.Context(), client.New(g.apiURL))
			if _, err := tea.NewProgram(m, tea.WithContext(cmd.Context())).Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
}
