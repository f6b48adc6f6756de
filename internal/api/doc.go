// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for liveness and store readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status and /v1/targets for crawl progress, source breaker state,
//     and stored show counts.
//   - POST /v1/backfill to queue a multi-page crawl cycle.
//   - GET /files/ for read-only access to exported CSV snapshots.
package api
