// Package api hosts the HTTP server, middleware, and REST handlers for the
// guide crawler. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ingest to (re)ingest one URL synchronously.
//   - POST /v1/rebuild to queue a domain rebuild, polled through
//     GET /v1/jobs/{job_id}/status.
//   - POST /v1/ask to answer a question from the stored chunks.
package api
