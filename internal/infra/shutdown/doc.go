// Package shutdown provides graceful shutdown handling for the example
// tools.
//
// It handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Cleanup hook registration, run in reverse order
//
// Usage:
//
//	ctx, cancel := shutdown.WithSignals(context.Background())
//	defer cancel()
//	<-ctx.Done() // wait for shutdown signal
package shutdown
