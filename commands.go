package redis

import (
	"context"
	"strconv"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// Do issues one command and waits for its reply. It is the uniform entry
// point every typed wrapper goes through.
func (c *Connection) Do(ctx context.Context, tokens ...string) (Reply, error) {
	return c.DoFuture(ctx, tokens...).Wait(ctx)
}

// DoFuture issues one command and returns its future without waiting,
// letting callers pipeline explicitly:
//
//	a := conn.DoFuture(ctx, "INCR", "x")
//	b := conn.DoFuture(ctx, "INCR", "x")
//	r1, err := a.Wait(ctx)
//	r2, err := b.Wait(ctx)
func (c *Connection) DoFuture(ctx context.Context, tokens ...string) *Future {
	return c.execute(ctx, false, protocol.Args(tokens...))
}

// Ping checks the connection.
func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "PING")
	return err
}

// Echo returns message echoed by the server.
func (c *Connection) Echo(ctx context.Context, message string) (string, error) {
	r, err := c.Do(ctx, "ECHO", message)
	if err != nil {
		return "", err
	}
	return r.AsString()
}

// Get fetches a key. With client-side caching enabled the last observed
// reply is served locally until the server invalidates it.
func (c *Connection) Get(ctx context.Context, key string) (Reply, error) {
	if c.cache != nil {
		return c.cache.get(ctx, key)
	}
	return c.Do(ctx, "GET", key)
}

// Set stores value under key.
func (c *Connection) Set(ctx context.Context, key, value string) error {
	_, err := c.Do(ctx, "SET", key, value)
	return err
}

// Del removes keys and returns how many existed.
func (c *Connection) Del(ctx context.Context, keys ...string) (int64, error) {
	r, err := c.Do(ctx, append([]string{"DEL"}, keys...)...)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// Exists returns how many of the keys exist.
func (c *Connection) Exists(ctx context.Context, keys ...string) (int64, error) {
	r, err := c.Do(ctx, append([]string{"EXISTS"}, keys...)...)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// Incr increments key and returns the new value.
func (c *Connection) Incr(ctx context.Context, key string) (int64, error) {
	r, err := c.Do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// IncrBy increments key by delta and returns the new value.
func (c *Connection) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	r, err := c.Do(ctx, "INCRBY", key, strconv.FormatInt(delta, 10))
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// Keys lists keys matching pattern. An empty pattern matches everything,
// keeping the historical default of "*".
func (c *Connection) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	r, err := c.Do(ctx, "KEYS", pattern)
	if err != nil {
		return nil, err
	}
	return replyStrings(r)
}

// LPush prepends values to a list and returns its new length.
func (c *Connection) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	r, err := c.Do(ctx, append([]string{"LPUSH", key}, values...)...)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// RPush appends values to a list and returns its new length.
func (c *Connection) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	r, err := c.Do(ctx, append([]string{"RPUSH", key}, values...)...)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// LRange returns the list elements between start and stop inclusive.
func (c *Connection) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	r, err := c.Do(ctx, "LRANGE", key, strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10))
	if err != nil {
		return nil, err
	}
	return replyStrings(r)
}

// HSet stores field/value pairs in a hash and returns how many fields are
// new.
func (c *Connection) HSet(ctx context.Context, key string, fieldValues ...string) (int64, error) {
	r, err := c.Do(ctx, append([]string{"HSET", key}, fieldValues...)...)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// HGetAll returns every field of a hash.
func (c *Connection) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	r, err := c.Do(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	return r.AsStringMap()
}

// Publish sends a message to a channel and returns the receiver count.
func (c *Connection) Publish(ctx context.Context, channel, message string) (int64, error) {
	r, err := c.Do(ctx, "PUBLISH", channel, message)
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// ClientID returns the server-assigned id of this connection.
func (c *Connection) ClientID(ctx context.Context) (int64, error) {
	r, err := c.Do(ctx, "CLIENT", "ID")
	if err != nil {
		return 0, err
	}
	return r.AsInt()
}

// Select switches the logical database.
func (c *Connection) Select(ctx context.Context, db int) error {
	_, err := c.Do(ctx, "SELECT", strconv.Itoa(db))
	return err
}

// FlushDB clears the current database.
func (c *Connection) FlushDB(ctx context.Context) error {
	_, err := c.Do(ctx, "FLUSHDB")
	return err
}

func replyStrings(r Reply) ([]string, error) {
	elems, err := r.AsSlice()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		s, err := e.AsString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
