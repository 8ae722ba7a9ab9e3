package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
)

// errFindings makes the command exit non-zero when a submission has problems.
var errFindings = errors.New("submission has validation findings")

func newValidateCmd(g *globalFlags) *cobra.Command {
	var (
		importerName string
		jsonOut      bool
	)
	cmd := &cobra.Command{
		Use:   "validate <spreadsheet.xlsx> <manifest.md5>",
		Short: "Run the full validation pipeline in-process",
		Long: "Validate a spreadsheet and MD5 manifest without a running server.\n" +
			"The job is recorded in the state database and can be inspected later with 'status --local'.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			sub := pipeline.Submission{Importer: importerName}
			if sub.XLSX, err = readUpload(args[0]); err != nil {
				return err
			}
			if sub.MD5, err = readUpload(args[1]); err != nil {
				return err
			}

			id, err := a.orch.Create(ctx, sub)
			if err != nil {
				return err
			}
			if err := a.orch.Drive(ctx, id); err != nil {
				return fmt.Errorf("submission %s: %w", id, err)
			}
			st, err := a.orch.Status(ctx, id)
			if err != nil {
				return err
			}
			if err := writeStatus(cmd.OutOrStdout(), st, jsonOut); err != nil {
				return err
			}
			if hasFindings(st) {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&importerName, "importer", "i", "", "Importer id (see 'bpaworkflow importers')")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final status as JSON")
	_ = cmd.MarkFlagRequired("importer")
	return cmd
}

func readUpload(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	return pipeline.Upload{Name: filepath.Base(path), Data: data}, nil
}

// hasFindings reports whether any stage produced messages or failed.
func hasFindings(st jobstate.Status) bool {
	if st.Error != "" {
		return true
	}
	for _, r := range []jobstate.Result{st.XLSX, st.MD5, st.Diff} {
		if items, ok := r.Items(); ok && len(items) > 0 {
			return true
		}
	}
	return false
}

func writeStatus(w io.Writer, st jobstate.Status, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	state := "in progress"
	if st.Complete {
		state = "complete"
	}
	fmt.Fprintf(w, "Submission: %s\n", st.ID)
	fmt.Fprintf(w, "Importer:   %s\n", st.Importer)
	fmt.Fprintf(w, "State:      %s\n", state)
	if st.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", st.Error)
	}
	writeResult(w, "xlsx", st.XLSX)
	writeResult(w, "md5", st.MD5)
	writeResult(w, "diff", st.Diff)
	if len(st.NewDataTypes) > 0 {
		fmt.Fprintf(w, "New data types: %s\n", strings.Join(st.NewDataTypes, ", "))
	}
	return nil
}

func writeResult(w io.Writer, name string, r jobstate.Result) {
	switch {
	case r.IsPending():
		fmt.Fprintf(w, "%-5s pending\n", name+":")
	case r.IsPlaceholder():
		fmt.Fprintf(w, "%-5s %s\n", name+":", r.Text())
	default:
		items, _ := r.Items()
		if len(items) == 0 {
			fmt.Fprintf(w, "%-5s ok\n", name+":")
			return
		}
		fmt.Fprintf(w, "%-5s %d message(s)\n", name+":", len(items))
		for _, item := range items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}
}
