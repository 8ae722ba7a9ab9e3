// Package dispatch runs queued pipeline stages on a pool of workers.
//
// Each worker polls the stage queue, claims the oldest queued task, runs the
// stage through the pipeline orchestrator and records the outcome. A
// successful stage queues the next stage of the same job before its own task
// is marked done, so a crash between the two repeats a stage rather than
// losing the rest of the job. Only one task per job is ever queued, which
// keeps a job's stages strictly ordered while different jobs run in parallel.
//
// Error handling:
//   - Unknown stage name → failed status
//   - Stage returns an error → failed status, chain stops
//   - Shutdown while a stage runs → task left running, requeued on next start
//   - Success → succeeded status, next stage queued
package dispatch
