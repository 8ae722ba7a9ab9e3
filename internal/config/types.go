package config

import "time"

// Config represents the complete bpaworkflow configuration.
type Config struct {
	Service   ServiceConfig           `yaml:"service"`
	State     StateConfig             `yaml:"state"`
	Staging   StagingConfig           `yaml:"staging"`
	API       APIConfig               `yaml:"api"`
	Dispatch  DispatchConfig          `yaml:"dispatch"`
	Importers map[string]ImporterConf `yaml:"importers"`
	Webhooks  []WebhookConf           `yaml:"webhooks,omitempty"`
}

// WebhookConf is an outbound notification endpoint. Each delivery is a JSON
// POST signed with HMAC-SHA256 over the body.
type WebhookConf struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
	// Events to deliver; empty means job.completed only.
	Events  []string      `yaml:"events,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines where job records and the stage queue are persisted.
type StateConfig struct {
	Path string `yaml:"path"`
	// TaskRetention prunes finished stage tasks older than this. Zero keeps
	// them forever.
	TaskRetention time.Duration `yaml:"task_retention,omitempty"`
}

// StagingConfig controls where uploads are written while a job runs.
type StagingConfig struct {
	Dir            string        `yaml:"dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	// CleanupInterval is how often serve sweeps stale directories. Zero
	// sweeps only at startup.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CleanupJitter   time.Duration `yaml:"cleanup_jitter,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Listen      string  `yaml:"listen"`
	SubmitRate  float64 `yaml:"submit_rate"` // submissions per second, 0 disables limiting
	SubmitBurst int     `yaml:"submit_burst"`
}

// DispatchConfig sizes the stage worker pool.
type DispatchConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
}

// ImporterConf describes one tabular importer: its spreadsheet schema, its
// manifest naming convention and where its live catalogue is fetched from.
type ImporterConf struct {
	Project    string `yaml:"project"`
	Title      string `yaml:"title"`
	Omics      string `yaml:"omics,omitempty"`
	Technology string `yaml:"technology,omitempty"`
	Analysed   bool   `yaml:"analysed,omitempty"`
	Pool       bool   `yaml:"pool,omitempty"`

	DataType      string          `yaml:"data_type"`
	IDField       string          `yaml:"id_field"`
	IDPrefix      string          `yaml:"id_prefix"`
	Spreadsheet   SpreadsheetConf `yaml:"spreadsheet"`
	Manifest      ManifestConf    `yaml:"manifest"`
	Linkage       []string        `yaml:"linkage"`
	ContextFields []string        `yaml:"context_fields"`
	Source        SourceConf      `yaml:"source"`
}

// SpreadsheetConf is the column schema of a submission sheet.
type SpreadsheetConf struct {
	Sheet     string      `yaml:"sheet,omitempty"`
	HeaderRow int         `yaml:"header_row"`
	Fields    []FieldConf `yaml:"fields"`
}

// FieldConf maps a spreadsheet column onto a record attribute.
type FieldConf struct {
	Name     string `yaml:"name"`
	Column   string `yaml:"column"`
	Required bool   `yaml:"required,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
}

// ManifestConf holds the filename convention for MD5 manifest entries.
type ManifestConf struct {
	Pattern string `yaml:"pattern"`
}

// SourceConf locates the live catalogue: a local directory or an S3 prefix.
type SourceConf struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

const (
	SourceDir = "dir"
	SourceS3  = "s3"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "bpaworkflow",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Staging: StagingConfig{
			Dir:             "./data/staging",
			MaxUploadBytes:  100 << 20,
			StaleAfter:      24 * time.Hour,
			CleanupInterval: time.Hour,
			CleanupJitter:   5 * time.Minute,
		},
		API: APIConfig{
			Enabled:     true,
			Listen:      "127.0.0.1:8080",
			SubmitRate:  2,
			SubmitBurst: 5,
		},
		Dispatch: DispatchConfig{
			Workers:      4,
			PollInterval: time.Second,
		},
		Importers: make(map[string]ImporterConf),
	}
}
