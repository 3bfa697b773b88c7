// Package api hosts the HTTP server, middleware, and REST handlers for
// operating the crawler as a service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sessions to start a crawl, POST /v1/sessions/stop to stop it,
//     and GET /v1/sessions/current for live counters.
//   - GET /v1/sessions/{session_id} and /v1/sessions/{session_id}/pages for
//     results persisted through a crawler.ResultStore.
package api
