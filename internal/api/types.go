package api

import "github.com/bioplatforms/bpaworkflow/internal/importer"

// SubmitResponse is returned by POST /private/api/v1/validate.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
}

// MetadataResponse is returned by GET /private/api/v1/metadata.
type MetadataResponse struct {
	Projects  []string                   `json:"projects"`
	Importers map[string][]importer.Info `json:"importers"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	QueueDepth      int    `json:"queue_depth"`
	ImportersLoaded int    `json:"importers_loaded"`
	Subscribers     int    `json:"event_subscribers"`
	DroppedEvents   int64  `json:"dropped_events"`
}
