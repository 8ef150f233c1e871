// Package buildinfo provides build-time version information.
//
// The values are reported to the server with CLIENT SETINFO after a RESP3
// handshake, and exposed by the example CLI's version output.
package buildinfo
