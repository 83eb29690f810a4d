// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/bosses and /v1/bosses/{slug} for boss records.
//   - POST /v1/admin/sync to trigger a run; GET /v1/admin/sync/status for
//     the lock state.
package api
