// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes; readyz pings the backends.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/extract and /v1/list run the detail and listing parsers on
//     demand, which is how new site configs are tried out.
//   - POST /v1/configs/reload swaps in freshly read config directories.
//   - GET /v1/failures and /v1/failures/summary read the stage failure audit
//     log via the AuditRepository interface.
package api
