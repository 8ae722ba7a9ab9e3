// Package doctor checks a loaded bpaworkflow configuration for problems that
// only show up once a submission runs: importers that cannot be built,
// catalogue sources that are missing and deployment settings that are risky.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/scheduler"
	"github.com/bioplatforms/bpaworkflow/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a configuration.
type Doctor struct {
	cfg     *config.Config
	fscheck func(setting, path string) error
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, fscheck: storage.CheckLocalFilesystem}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validatePaths(r)
	d.validateImporters(r)
	d.validateSources(r)
	d.validateAPIConfig(r)
	d.warnStaging(r)
	d.warnDispatch(r)
	d.warnSharedDataTypes(r)
	d.warnWebhooks(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validatePaths checks the state database and staging directory live on
// local disk.
func (d *Doctor) validatePaths(r *Result) {
	for field, path := range map[string]string{
		"state.path":  filepath.Dir(d.cfg.State.Path),
		"staging.dir": d.cfg.Staging.Dir,
	} {
		if err := d.fscheck(field, path); err != nil {
			d.addError(r, "paths", field, err.Error())
		}
	}
}

// validateImporters compiles every importer the way serve does.
func (d *Doctor) validateImporters(r *Result) {
	if len(d.cfg.Importers) == 0 {
		d.addWarning(r, "importers", "importers", "no importers configured; every submission will be rejected")
		return
	}
	workRoot := filepath.Join(d.cfg.Staging.Dir, "downloads")
	for _, name := range d.cfg.ImporterNames() {
		conf := d.cfg.Importers[name]
		field := fmt.Sprintf("importers.%s", name)
		if _, err := importer.NewTabular(name, conf, workRoot); err != nil {
			d.addError(r, "importers", field, err.Error())
			continue
		}
		if conf.Project == "" {
			d.addWarning(r, "importers", field+".project", "project is empty; the importer is listed without a project")
		}
		if conf.IDPrefix == "" {
			d.addWarning(r, "importers", field+".id_prefix", "id_prefix is empty; ids are not namespaced")
		}
	}
}

// validateSources checks each importer's catalogue location.
func (d *Doctor) validateSources(r *Result) {
	for _, name := range d.cfg.ImporterNames() {
		src := d.cfg.Importers[name].Source
		field := fmt.Sprintf("importers.%s.source", name)
		switch src.Type {
		case config.SourceDir:
			info, err := os.Stat(src.Path)
			switch {
			case err != nil:
				d.addError(r, "sources", field+".path", fmt.Sprintf("catalogue directory %q: %v", src.Path, err))
			case !info.IsDir():
				d.addError(r, "sources", field+".path", fmt.Sprintf("catalogue path %q is not a directory", src.Path))
			}
		case config.SourceS3:
			if !src.UseSSL {
				d.addWarning(r, "sources", field+".use_ssl", "catalogue is fetched over plain HTTP")
			}
			if src.AccessKey == "" && src.SecretKey == "" {
				d.addWarning(r, "sources", field, "no credentials; the bucket is read anonymously")
			}
			for key, v := range map[string]string{"endpoint": src.Endpoint, "bucket": src.Bucket, "prefix": src.Prefix} {
				for _, m := range envVarRe.FindAllStringSubmatch(v, -1) {
					if os.Getenv(m[1]) == "" {
						d.addWarning(r, "env_vars", field+"."+key,
							fmt.Sprintf("environment variable ${%s} not set", m[1]))
					}
				}
			}
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		d.addWarning(r, "api", "api.enabled", "API disabled; serve only drains queued stages")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("API has no authentication and listens on %q; keep it behind a trusted proxy", d.cfg.API.Listen))
	}
	if d.cfg.API.SubmitRate == 0 {
		d.addWarning(r, "api", "api.submit_rate", "submission rate limiting is disabled")
	}
}

func (d *Doctor) warnStaging(r *Result) {
	if age := d.cfg.Staging.StaleAfter; age > 0 && age < time.Hour {
		d.addWarning(r, "staging", "staging.stale_after",
			fmt.Sprintf("stale_after %s may remove directories of jobs that are still running", age))
	}
}

func (d *Doctor) warnDispatch(r *Result) {
	if d.cfg.Dispatch.FetchTimeout == 0 && len(d.cfg.Importers) > 0 {
		d.addWarning(r, "dispatch", "dispatch.fetch_timeout", "catalogue fetches have no timeout")
	}
}

// warnSharedDataTypes flags importers of one project that share a data type,
// since their catalogues then feed the same snapshot bucket.
func (d *Doctor) warnSharedDataTypes(r *Result) {
	seen := make(map[string]string)
	for _, name := range d.cfg.ImporterNames() {
		conf := d.cfg.Importers[name]
		key := conf.Project + "/" + conf.DataType
		if prev, ok := seen[key]; ok {
			d.addWarning(r, "importers", fmt.Sprintf("importers.%s.data_type", name),
				fmt.Sprintf("data type %q is also used by importer %q in project %q", conf.DataType, prev, conf.Project))
			continue
		}
		seen[key] = name
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var knownEventTypes = map[string]bool{
	events.TypeStageSucceeded:    true,
	events.TypeStageFailed:       true,
	events.TypeJobCompleted:      true,
	scheduler.TypeTick:           true,
	scheduler.TypeStagingCleaned: true,
	scheduler.TypeTasksPruned:    true,
}

// warnWebhooks flags endpoints that would never fire or that send submission
// status in the clear.
func (d *Doctor) warnWebhooks(r *Result) {
	for i, wh := range d.cfg.Webhooks {
		field := fmt.Sprintf("webhooks[%d]", i)
		if u, err := url.Parse(wh.URL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
			d.addWarning(r, "webhooks", field+".url", "submission status is sent over plain HTTP")
		}
		for _, ev := range wh.Events {
			if !knownEventTypes[ev] {
				d.addWarning(r, "webhooks", field+".events", fmt.Sprintf("unknown event type %q never fires", ev))
			}
		}
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
