// Package audio captures fixed-duration PCM chunks from a live input.
// It provides the chunk type handed from capture to processing, the sources
// that produce chunks (raw PCM readers, WAV files, the UDP ingest buffer),
// and WAV encoding for the recognition backend.
package audio
