// Package api hosts the operator HTTP surface that runs alongside a crawl.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress and /v1/progress/{site} for live crawl progress.
//   - GET /v1/records/{site} and /v1/records/{site}/{key} for the records
//     accumulated so far.
package api
