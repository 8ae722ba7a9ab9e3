package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
)

const (
	multipartMemory = 32 << 20
	// multipartOverhead is allowed on top of the two files for headers and the
	// importer field.
	multipartOverhead = 1 << 20
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:      depth,
		ImportersLoaded: len(s.importers.Infos()),
		Subscribers:     s.events.Subscribers(),
		DroppedEvents:   s.events.Dropped(),
	})
}

// handleValidate handles POST /private/api/v1/validate.
// Rejected uploads get 403 and no job is created.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if max := s.config.MaxUploadBytes; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 2*max+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusForbidden, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "request must be multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub := pipeline.Submission{Importer: r.FormValue("importer")}
	var err error
	for _, slot := range []struct {
		name string
		dst  *pipeline.Upload
	}{{staging.SlotXLSX, &sub.XLSX}, {staging.SlotMD5, &sub.MD5}} {
		if *slot.dst, err = s.readUpload(r, slot.name); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, staging.ErrForbidden) {
				s.logger.Warn("upload rejected", "importer", sub.Importer, "error", err)
				status = http.StatusForbidden
			}
			s.writeError(w, status, err.Error())
			return
		}
	}

	id, err := s.jobs.Submit(r.Context(), sub)
	if err != nil {
		if errors.Is(err, staging.ErrForbidden) {
			s.logger.Warn("submission rejected", "importer", sub.Importer, "error", err)
			s.writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.logger.Error("failed to create submission", "importer", sub.Importer, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create submission")
		return
	}

	respondJSON(w, http.StatusOK, SubmitResponse{SubmissionID: id})
}

// readUpload reads one file field. Reading stops one byte past the size cap
// so the orchestrator can reject the file without buffering all of it.
func (s *Server) readUpload(r *http.Request, field string) (pipeline.Upload, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("missing file field %q", field)
	}
	defer f.Close()

	name, err := uploadFilename(field, hdr)
	if err != nil {
		return pipeline.Upload{}, err
	}

	var src io.Reader = f
	if max := s.config.MaxUploadBytes; max > 0 {
		src = io.LimitReader(f, max+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("read %s upload: %w", field, err)
	}
	return pipeline.Upload{Name: name, Data: data}, nil
}

// uploadFilename checks the filename exactly as the client sent it.
// mime/multipart drops directory components from FileHeader.Filename, so a
// name like "../x.xlsx" would otherwise reach staging looking harmless.
func uploadFilename(field string, hdr *multipart.FileHeader) (string, error) {
	_, params, err := mime.ParseMediaType(hdr.Header.Get("Content-Disposition"))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable %s content disposition", staging.ErrForbidden, field)
	}
	raw := params["filename"]
	if raw != hdr.Filename {
		return "", fmt.Errorf("%w: filename %q is not allowed", staging.ErrForbidden, raw)
	}
	if err := staging.ValidateFilename(field, raw); err != nil {
		return "", err
	}
	return raw, nil
}

// handleStatus handles GET and POST /private/api/v1/status. The id comes from
// the query string or a form body.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("submission_id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "submission_id is required")
		return
	}
	st, ok := s.lookupStatus(w, r, id)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// lookupStatus writes the error response itself when ok is false.
func (s *Server) lookupStatus(w http.ResponseWriter, r *http.Request, id string) (jobstate.Status, bool) {
	st, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstate.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "submission not found")
			return st, false
		}
		s.logger.Error("failed to read submission", "submission_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read submission")
		return st, false
	}
	return st, true
}

// handleMetadata handles GET /private/api/v1/metadata.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	resp := MetadataResponse{
		Projects:  []string{},
		Importers: map[string][]importer.Info{},
	}
	for _, info := range s.importers.Infos() {
		if _, seen := resp.Importers[info.Project]; !seen {
			resp.Projects = append(resp.Projects, info.Project)
		}
		resp.Importers[info.Project] = append(resp.Importers[info.Project], info)
	}
	sort.Strings(resp.Projects)
	for _, infos := range resp.Importers {
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	}

	respondJSON(w, http.StatusOK, resp)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
