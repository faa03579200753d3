// Package server implements the UDP audio ingest receiver and the HTTP
// control API. The receiver feeds one live stream into an audio.Buffer; the
// HTTP API starts and stops the pipeline and exposes status, results and
// metrics.
package server
