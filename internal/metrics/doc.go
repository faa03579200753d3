// Package metrics defines the Prometheus collectors for UDP ingest, the
// translation pipeline, the recognition and translation backends, and the
// HTTP control API.
package metrics
