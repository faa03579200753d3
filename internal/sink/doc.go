// Package sink provides pipeline.ResultSink implementations: a channel for
// consumers that drain events on their own goroutine, an in-memory
// transcript for the HTTP API, structured logging, console output and
// fan-out to several sinks.
package sink
