// Package protocol implements the Redis serialization protocol (RESP).
//
// It covers both protocol generations:
//
//   - value.go: the Reply value model shared by RESP2 and RESP3
//   - encoder.go: command and value serialization
//   - decoder.go: streaming reply parser over a buffered reader
//
// Commands are always emitted as arrays of bulk strings; inline commands
// are never produced. The decoder is strict about framing: a malformed
// prefix, length mismatch, or missing CRLF fails with ErrProtocol and the
// owning connection is expected to tear down.
package protocol
