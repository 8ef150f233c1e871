// Package command provides CLI command definitions for naredis.
//
// It uses urfave/cli/v2 for command parsing. Each command opens one
// connection from the global flags, runs, and closes it:
//
//   - ping, get, set, del, keys: one-shot key/value commands
//   - publish: send one pub/sub message
//   - subscribe: stream messages until interrupted
package command
