package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// Delivery headers.
const (
	HeaderEvent     = "X-BPAWorkflow-Event"
	HeaderDelivery  = "X-BPAWorkflow-Delivery"
	HeaderSignature = "X-BPAWorkflow-Signature"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 4
	defaultBackoff     = 500 * time.Millisecond
	defaultQueueSize   = 256
)

// JobGetter loads the submission an event refers to.
type JobGetter interface {
	Get(ctx context.Context, id string) (*jobstate.Job, error)
}

// Endpoint is one receiver.
type Endpoint struct {
	URL     string
	Secret  string
	Events  map[string]bool
	Timeout time.Duration
}

func (e Endpoint) wants(eventType string) bool {
	return e.Events[eventType]
}

// Payload is the JSON body of a delivery.
type Payload struct {
	Event        string           `json:"event"`
	EventID      int64            `json:"event_id"`
	SubmissionID string           `json:"submission_id"`
	At           time.Time        `json:"at"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Status       *jobstate.Status `json:"status,omitempty"`
}

// Notifier forwards hub events to webhook endpoints.
type Notifier struct {
	endpoints []Endpoint
	jobs      JobGetter
	client    *http.Client
	logger    *slog.Logger
	dropped   atomic.Uint64

	MaxAttempts int
	Backoff     time.Duration
	// QueueSize bounds the deliveries waiting on each endpoint. Events past
	// it are dropped for that endpoint only.
	QueueSize int
}

type delivery struct {
	eventType string
	jobID     string
	body      []byte
}

// EndpointsFrom converts the webhooks config section.
func EndpointsFrom(cfgs []config.WebhookConf) []Endpoint {
	out := make([]Endpoint, 0, len(cfgs))
	for _, c := range cfgs {
		ep := Endpoint{URL: c.URL, Secret: c.Secret, Timeout: c.Timeout, Events: map[string]bool{}}
		if ep.Timeout <= 0 {
			ep.Timeout = defaultTimeout
		}
		if len(c.Events) == 0 {
			ep.Events[events.TypeJobCompleted] = true
		}
		for _, ev := range c.Events {
			ep.Events[ev] = true
		}
		out = append(out, ep)
	}
	return out
}

// New creates a notifier. jobs may be nil, in which case payloads omit the
// submission status.
func New(endpoints []Endpoint, jobs JobGetter, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	return &Notifier{
		endpoints:   endpoints,
		jobs:        jobs,
		client:      client,
		logger:      log.WithComponent("webhook"),
		MaxAttempts: defaultMaxAttempts,
		Backoff:     defaultBackoff,
		QueueSize:   defaultQueueSize,
	}
}

// Dropped returns how many deliveries were discarded because an endpoint's
// queue was full.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Run delivers events from hub until ctx is cancelled. Each endpoint has its
// own queue and worker, so a slow receiver neither blocks the others nor
// stalls the hub subscription.
func (n *Notifier) Run(ctx context.Context, hub *events.Hub) {
	if len(n.endpoints) == 0 {
		return
	}
	ch, cancel := hub.Subscribe("")
	defer cancel()

	size := n.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	queues := make([]chan delivery, len(n.endpoints))
	var wg sync.WaitGroup
	for i, ep := range n.endpoints {
		queues[i] = make(chan delivery, size)
		wg.Add(1)
		go func(ep Endpoint, q <-chan delivery) {
			defer wg.Done()
			n.drain(ctx, ep, q)
		}(ep, queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	n.logger.Info("webhook notifier started", "endpoints", len(n.endpoints), "queue_size", size)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			n.enqueue(ctx, ev, queues)
		}
	}
}

func (n *Notifier) enqueue(ctx context.Context, ev events.Event, queues []chan delivery) {
	var body []byte
	for i, ep := range n.endpoints {
		if !ep.wants(ev.Type) {
			continue
		}
		if body == nil {
			var err error
			if body, err = n.encode(ctx, ev); err != nil {
				n.logger.Error("marshal webhook payload", "event", ev.Type, "error", err)
				return
			}
		}
		select {
		case queues[i] <- delivery{eventType: ev.Type, jobID: ev.JobID, body: body}:
		default:
			n.dropped.Add(1)
			n.logger.Warn("webhook queue full, dropping event", "url", ep.URL, "event", ev.Type, "submission_id", ev.JobID)
		}
	}
}

// drain delivers queued events for one endpoint in order. Whatever is left
// at shutdown is discarded.
func (n *Notifier) drain(ctx context.Context, ep Endpoint, q <-chan delivery) {
	for d := range q {
		if ctx.Err() != nil {
			continue
		}
		if err := n.deliver(ctx, ep, d.eventType, d.body); err != nil {
			n.logger.Warn("webhook delivery failed", "url", ep.URL, "event", d.eventType, "submission_id", d.jobID, "error", err)
		}
	}
}

// Handle delivers a single event to every endpoint subscribed to its type,
// waiting for each delivery to finish.
func (n *Notifier) Handle(ctx context.Context, ev events.Event) {
	var targets []Endpoint
	for _, ep := range n.endpoints {
		if ep.wants(ev.Type) {
			targets = append(targets, ep)
		}
	}
	if len(targets) == 0 {
		return
	}

	body, err := n.encode(ctx, ev)
	if err != nil {
		n.logger.Error("marshal webhook payload", "event", ev.Type, "error", err)
		return
	}
	for _, ep := range targets {
		if err := n.deliver(ctx, ep, ev.Type, body); err != nil {
			n.logger.Warn("webhook delivery failed", "url", ep.URL, "event", ev.Type, "submission_id", ev.JobID, "error", err)
		}
	}
}

func (n *Notifier) encode(ctx context.Context, ev events.Event) ([]byte, error) {
	return json.Marshal(n.payload(ctx, ev))
}

func (n *Notifier) payload(ctx context.Context, ev events.Event) Payload {
	p := Payload{
		Event:        ev.Type,
		EventID:      ev.ID,
		SubmissionID: ev.JobID,
		At:           ev.At,
		Data:         ev.Data,
	}
	if n.jobs == nil || ev.JobID == "" {
		return p
	}
	job, err := n.jobs.Get(ctx, ev.JobID)
	if err != nil {
		n.logger.Warn("load submission for webhook", "submission_id", ev.JobID, "error", err)
		return p
	}
	st := job.Status()
	p.Status = &st
	return p
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) error {
	deliveryID := uuid.NewString()
	backoff := n.Backoff
	var lastErr error
	for attempt := 1; attempt <= n.MaxAttempts; attempt++ {
		retry, err := n.post(ctx, ep, eventType, deliveryID, body)
		if err == nil {
			n.logger.Debug("webhook delivered", "url", ep.URL, "event", eventType, "delivery", deliveryID, "attempt", attempt)
			return nil
		}
		lastErr = err
		if !retry || attempt == n.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// post sends one attempt and reports whether a failure is worth retrying.
func (n *Notifier) post(ctx context.Context, ep Endpoint, eventType, deliveryID string, body []byte) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderSignature, Sign(body, ep.Secret))

	resp, err := n.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("endpoint returned %s", resp.Status)
	default:
		return false, fmt.Errorf("endpoint returned %s", resp.Status)
	}
}
