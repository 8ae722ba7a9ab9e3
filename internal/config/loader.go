package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates and validates the configuration at configPath. A
// directory is accepted and resolved to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w\nHint: Check the path or run with --config flag", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}
	return Parse(data, filepath.Dir(absPath))
}

// Parse decodes YAML config data on top of Defaults. Relative paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Importers == nil {
		cfg.Importers = make(map[string]ImporterConf)
	}

	cfg.State.Path = resolvePath(baseDir, cfg.State.Path)
	cfg.Staging.Dir = resolvePath(baseDir, cfg.Staging.Dir)
	for name, imp := range cfg.Importers {
		if imp.Source.Type == SourceDir {
			imp.Source.Path = resolvePath(baseDir, imp.Source.Path)
			cfg.Importers[name] = imp
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds a config file by checking standard locations.
// Priority order: $BPAWORKFLOW_CONFIG, ~/.config/bpaworkflow, /etc/bpaworkflow, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv("BPAWORKFLOW_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(homeDir, ".config", "bpaworkflow", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("/etc/bpaworkflow/config.yaml"); err == nil {
		return "/etc/bpaworkflow/config.yaml", nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $BPAWORKFLOW_CONFIG, ~/.config/bpaworkflow, /etc/bpaworkflow, ./config.yaml)")
}

// ImporterNames returns configured importer ids in sorted order.
func (c *Config) ImporterNames() []string {
	names := make([]string, 0, len(c.Importers))
	for name := range c.Importers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// interpolateEnv replaces ${VAR} with its environment value. Unset variables
// are left in place so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Staging.Dir == "" {
		return fmt.Errorf("staging.dir is required")
	}
	if cfg.Staging.MaxUploadBytes <= 0 {
		return fmt.Errorf("staging.max_upload_bytes must be positive")
	}
	if cfg.Staging.StaleAfter <= 0 {
		return fmt.Errorf("staging.stale_after must be positive")
	}
	if cfg.Staging.CleanupInterval < 0 || cfg.Staging.CleanupJitter < 0 {
		return fmt.Errorf("staging.cleanup_interval and staging.cleanup_jitter must not be negative")
	}
	if cfg.State.TaskRetention < 0 {
		return fmt.Errorf("state.task_retention must not be negative")
	}
	if cfg.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive")
	}
	if cfg.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("dispatch.poll_interval must be positive")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api is enabled")
	}
	if cfg.API.SubmitRate < 0 {
		return fmt.Errorf("api.submit_rate must not be negative")
	}

	for _, name := range cfg.ImporterNames() {
		if err := validateImporter(name, cfg.Importers[name]); err != nil {
			return err
		}
	}
	for i, wh := range cfg.Webhooks {
		if err := validateWebhook(wh); err != nil {
			return fmt.Errorf("webhooks[%d]: %w", i, err)
		}
	}
	return nil
}

func validateWebhook(wh WebhookConf) error {
	u, err := url.Parse(wh.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL (got %q)", wh.URL)
	}
	if wh.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if m := envVarPattern.FindStringSubmatch(wh.Secret); len(m) > 1 {
		return fmt.Errorf("secret: environment variable ${%s} is not set", m[1])
	}
	if wh.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func validateImporter(name string, imp ImporterConf) error {
	if imp.DataType == "" {
		return fmt.Errorf("importer %q: data_type is required", name)
	}
	if imp.IDField == "" {
		return fmt.Errorf("importer %q: id_field is required", name)
	}
	if len(imp.Spreadsheet.Fields) == 0 {
		return fmt.Errorf("importer %q: spreadsheet.fields is empty", name)
	}
	if imp.Manifest.Pattern == "" {
		return fmt.Errorf("importer %q: manifest.pattern is required", name)
	}
	if len(imp.Linkage) == 0 {
		return fmt.Errorf("importer %q: linkage is empty", name)
	}

	switch imp.Source.Type {
	case SourceDir:
		if imp.Source.Path == "" {
			return fmt.Errorf("importer %q: source.path is required for dir sources", name)
		}
	case SourceS3:
		if imp.Source.Endpoint == "" || imp.Source.Bucket == "" {
			return fmt.Errorf("importer %q: source.endpoint and source.bucket are required for s3 sources", name)
		}
		for field, v := range map[string]string{"access_key": imp.Source.AccessKey, "secret_key": imp.Source.SecretKey} {
			if m := envVarPattern.FindStringSubmatch(v); len(m) > 1 {
				return fmt.Errorf("importer %q: source.%s: environment variable ${%s} is not set", name, field, m[1])
			}
		}
	default:
		return fmt.Errorf("importer %q: source.type must be %q or %q (got %q)", name, SourceDir, SourceS3, imp.Source.Type)
	}
	return nil
}
