// Package redis is an asynchronous client for Redis servers.
//
// A Connection owns one byte stream and its protocol engine: the RESP2/
// RESP3 codec, the in-flight request queue with pipelining bounds, the
// MULTI/EXEC serializer, the pub/sub multiplexer, and the optional
// client-side cache fed by server invalidation messages.
//
//	conn, err := redis.Connect(ctx, redis.DefaultOptions())
//	if err != nil { ... }
//	defer conn.Close()
//
//	if err := conn.Set(ctx, "greeting", "hello"); err != nil { ... }
//	v, err := conn.Get(ctx, "greeting")
//
// Commands pipeline by default: every call returns once its bytes are
// written and its reply decoded, but concurrent callers share the stream
// and replies pair with requests strictly FIFO. DoFuture exposes the
// underlying future for callers that want to issue many commands before
// waiting on any of them.
package redis
