// Package protocol implements the UDP audio ingest datagram format.
// Every datagram carries an 8-byte header followed by a start, audio or end
// payload; multi-byte fields are big-endian and audio samples are
// little-endian PCM-16.
package protocol
