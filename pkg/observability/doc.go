/*
Package observability exposes the engine's lifecycle hooks as Prometheus metrics.

Metrics registers its collectors on a caller-supplied registerer and returns
hooks to pass to the engine, so several engines can share one registry without
touching the global default.
*/
package observability
