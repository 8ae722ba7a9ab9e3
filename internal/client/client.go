// Package client talks to a running bpaworkflow API server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// ErrNotFound is returned for unknown submission ids.
var ErrNotFound = errors.New("submission not found")

// APIError is a non-2xx response carrying the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Client is a thin HTTP client for the private API.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:8080.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Submit uploads a spreadsheet and manifest from disk for importerName.
func (c *Client) Submit(ctx context.Context, importerName, xlsxPath, md5Path string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("importer", importerName); err != nil {
		return "", err
	}
	for field, path := range map[string]string{"xlsx": xlsxPath, "md5": md5Path} {
		if err := attachFile(mw, field, path); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/private/api/v1/validate", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.SubmissionID, nil
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s file: %w", field, err)
	}
	defer f.Close()
	w, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read %s file: %w", field, err)
	}
	return nil
}

// Status fetches the current status of a submission.
func (c *Client) Status(ctx context.Context, id string) (jobstate.Status, error) {
	var st jobstate.Status
	u := c.baseURL + "/private/api/v1/status?" + url.Values{"submission_id": {id}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return st, err
	}
	err = c.do(req, &st)
	return st, err
}

// Metadata lists importers grouped by project.
func (c *Client) Metadata(ctx context.Context) (api.MetadataResponse, error) {
	var resp api.MetadataResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/private/api/v1/metadata", nil)
	if err != nil {
		return resp, err
	}
	err = c.do(req, &resp)
	return resp, err
}

// Health queries /healthz.
func (c *Client) Health(ctx context.Context) (api.HealthzResponse, error) {
	var resp api.HealthzResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return resp, err
	}
	err = c.do(req, &resp)
	return resp, err
}

// Stream calls fn with each status pushed for id until the job completes,
// the server closes the stream or ctx is done.
func (c *Client) Stream(ctx context.Context, id string, fn func(jobstate.Status)) error {
	u, err := url.Parse(c.baseURL + "/private/api/v1/status/" + url.PathEscape(id) + "/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("open status stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var st jobstate.Status
		if err := conn.ReadJSON(&st); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read status stream: %w", err)
		}
		fn(st)
		if st.Complete {
			return nil
		}
	}
}

// Events follows the server's SSE event stream and calls fn for each event.
// An empty submissionID follows every submission. Events after lastID are
// replayed from the server's buffer. It returns when the server closes the
// stream or ctx is done.
func (c *Client) Events(ctx context.Context, submissionID string, lastID int64, fn func(events.Event)) error {
	u := c.baseURL + "/private/api/v1/events"
	if submissionID != "" {
		u += "?" + url.Values{"submission_id": {submissionID}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	// The stream is long lived, so the request timeout does not apply.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		fn(ev)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// Wait polls Status every interval until the job completes.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (jobstate.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, id)
		if err != nil || st.Complete {
			return st, err
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.Contains(req.URL.Path, "/status") {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
