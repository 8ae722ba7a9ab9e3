package jobstate

import (
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

// Job is a persisted verification submission.
type Job struct {
	ID          string
	SubmittedAt time.Time
	Importer    string
	XLSXName    string
	XLSXData    []byte
	MD5Name     string
	MD5Data     []byte
	Fingerprint string
	State       State
}

// State is the progress record of a job. Each field is owned by exactly one
// pipeline stage and is only written through the Store setter for that stage.
type State struct {
	Dir          string                       `json:"dir,omitempty"`
	Paths        map[string]string            `json:"paths,omitempty"`
	MetadataInfo map[string]map[string]string `json:"metadata_info,omitempty"`
	StagingError string                       `json:"staging_error,omitempty"`

	XLSX Result `json:"xlsx"`
	MD5  Result `json:"md5"`
	Diff Result `json:"diff"`

	NewDataTypes []string `json:"new_data_types,omitempty"`
	Complete     bool     `json:"complete"`
}

// Staged is the output of the setup stage.
type Staged struct {
	Dir          string
	Paths        map[string]string
	MetadataInfo map[string]map[string]string
}

// Staged reports whether setup has recorded staged files for the job.
func (s State) Staged() bool {
	return s.Dir != "" && len(s.Paths) > 0
}

// NewJob is the input to Store.Create.
type NewJob struct {
	Importer    string
	XLSXName    string
	XLSXData    []byte
	MD5Name     string
	MD5Data     []byte
	Fingerprint string
}

// Status is the externally visible projection of a job.
type Status struct {
	ID           string    `json:"submission_id"`
	Importer     string    `json:"importer"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Complete     bool      `json:"complete"`
	MD5          Result    `json:"md5"`
	XLSX         Result    `json:"xlsx"`
	Diff         Result    `json:"diff"`
	NewDataTypes []string  `json:"new_data_types,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Status projects the job onto its externally visible fields.
func (j *Job) Status() Status {
	return Status{
		ID:           j.ID,
		Importer:     j.Importer,
		SubmittedAt:  j.SubmittedAt,
		Complete:     j.State.Complete,
		MD5:          j.State.MD5,
		XLSX:         j.State.XLSX,
		Diff:         j.State.Diff,
		NewDataTypes: j.State.NewDataTypes,
		Error:        j.State.StagingError,
	}
}
