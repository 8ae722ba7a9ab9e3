// Package webhook delivers signed submission notifications to external
// endpoints.
//
// A Notifier subscribes to the events hub and, for each matching event,
// POSTs a JSON payload to every configured endpoint. The payload for
// job.completed carries the full submission status so a receiver does not
// need to call back into the API.
//
// # Signing
//
// Every delivery carries an X-BPAWorkflow-Signature header of the form
// "sha256=<hex>", an HMAC-SHA256 of the raw body keyed by the endpoint
// secret. Receivers should check it with Verify, which compares in constant
// time.
//
// # Configuration
//
//	webhooks:
//	  - url: https://ops.example.org/hooks/bpa
//	    secret: ${BPA_WEBHOOK_SECRET}
//	    events: [job.completed, stage.failed]
//	    timeout: 10s
//
// # Delivery
//
// Failed deliveries (transport errors, 429 and 5xx responses) are retried
// with exponential backoff. Other 4xx responses are dropped.
package webhook
