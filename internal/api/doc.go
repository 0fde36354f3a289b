// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a daily pipeline run in the background.
//   - GET /v1/runs/{run_id} for run status and per-stage statistics.
package api
