// Package reconcile compares prior and post catalogue snapshots and checks
// that resources and packages link up one to one.
package reconcile

import (
	"fmt"
	"path"
	"strings"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/snapshot"
)

// Report is the outcome of one reconciliation.
type Report struct {
	// NewDataTypes are data types present in post but not in prior.
	NewDataTypes []string
	Diagnostics  []string
}

// Diff returns the data types of post that prior lacks, sorted. Contents of
// shared data types are not compared.
func Diff(prior, post *snapshot.Snapshot) []string {
	out := []string{}
	for _, dt := range post.DataTypes() {
		if _, ok := prior.Types[dt]; !ok {
			out = append(out, dt)
		}
	}
	return out
}

// Reconcile diffs the snapshots and runs linkage QC over every data type of
// post, in sorted data type order.
func Reconcile(prior, post *snapshot.Snapshot) Report {
	logger := log.WithComponent("reconcile")
	report := Report{NewDataTypes: Diff(prior, post), Diagnostics: []string{}}
	if len(report.NewDataTypes) > 0 {
		logger.Info("submission introduces data types", "data_types", report.NewDataTypes)
	}

	for _, dt := range post.DataTypes() {
		ds := post.Types[dt]
		report.Diagnostics = append(report.Diagnostics, CheckLinkage(ds)...)
		logger.Info("linkage checked", "data_type", dt, "packages", len(ds.Packages), "resources", len(ds.Resources))
	}
	return report
}

// CheckLinkage reports duplicate package keys, then resources whose key no
// package claims, then packages no resource references.
func CheckLinkage(ds *snapshot.DataSet) []string {
	var diags []string

	owner := make(map[string]string, len(ds.Packages))
	var order []importer.LinkageKey
	for _, pkg := range ds.Packages {
		key := importer.KeyOf(pkg, ds.LinkageFields)
		mk := key.MapKey()
		if _, dup := owner[mk]; dup {
			diags = append(diags, fmt.Sprintf("more than one package linked for tuple %s", key))
		} else {
			order = append(order, key)
		}
		owner[mk] = pkg.ID()
	}

	referenced := make(map[string]bool)
	for _, res := range ds.Resources {
		mk := res.Key.MapKey()
		referenced[mk] = true
		if _, ok := owner[mk]; !ok {
			diags = append(diags, fmt.Sprintf("dangling resource %s (ticket: %s, linkage: %s)",
				path.Base(res.Origin), ticketOf(res.Origin), res.Key))
		}
	}

	for _, key := range order {
		mk := key.MapKey()
		if !referenced[mk] {
			diags = append(diags, fmt.Sprintf("%s: package has no linked resources, tuple: %s", owner[mk], key))
		}
	}
	return diags
}

// ticketOf returns the second-to-last path segment of an origin locator.
func ticketOf(origin string) string {
	parts := strings.Split(strings.TrimRight(origin, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
