// Package recognition turns audio chunks into text through a
// Whisper-compatible speech recognition API. The HTTP client uploads each
// chunk as a WAV file in a multipart form and retries transient failures
// with exponential backoff.
package recognition
