// Package pipeline runs the capture and processing loops that turn live
// audio into translated text.
//
// A Pipeline is Idle until Start launches a run: the capture loop records
// fixed-duration chunks into a queue while the processing loop recognizes
// and translates them one at a time, in capture order, and hands results to
// a ResultSink. Stop cancels the run without waiting for the loops; the
// pipeline stays Stopping until both loops have exited, then returns to
// Idle and may be started again.
//
// Failures are isolated per chunk: a recognition error skips the chunk and
// a translation error yields a placeholder translation. Only an audio
// device error ends the run.
package pipeline
