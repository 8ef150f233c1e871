package redis

import (
	"bufio"
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/opentracing/opentracing-go"

	"github.com/eyadof/Net-Async-Redis/internal/infra/buildinfo"
	"github.com/eyadof/Net-Async-Redis/internal/protocol"
	"github.com/eyadof/Net-Async-Redis/internal/telemetry/logger"
	"github.com/eyadof/Net-Async-Redis/internal/telemetry/metric"
	"github.com/eyadof/Net-Async-Redis/internal/telemetry/tracer"
)

// Protocol generations negotiated by the HELLO handshake.
const (
	ProtoRESP2 = 2
	ProtoRESP3 = 3
)

// subscriberAllowed is the command set a RESP2 connection may issue while
// it holds subscriptions.
var subscriberAllowed = map[string]bool{
	"SUBSCRIBE":    true,
	"PSUBSCRIBE":   true,
	"UNSUBSCRIBE":  true,
	"PUNSUBSCRIBE": true,
	"PING":         true,
	"QUIT":         true,
}

type pendingEntry struct {
	label string
	fut   *Future
}

type queuedCommand struct {
	label string
	args  [][]byte
	fut   *Future
}

type subKey struct {
	pattern bool
	name    string
}

// Connection is one client connection to a Redis server. It owns the byte
// stream and the decoder; a single reader goroutine decodes replies and
// pairs them with pending requests strictly FIFO, or routes them to the
// pub/sub multiplexer and the cache invalidator.
//
// A Connection is safe for concurrent use.
type Connection struct {
	opts    Options
	id      string
	log     logger.Logger
	metrics *metric.Registry

	conn       net.Conn
	bw         *bufio.Writer
	dec        *protocol.Decoder
	localAddr  net.Addr
	remoteAddr net.Addr

	mu             sync.Mutex
	closed         bool
	proto          int
	pending        []*pendingEntry
	awaiting       []*queuedCommand
	pubsubCount    int
	subsByChannel  map[string]*Subscription
	subsByPattern  map[string]*Subscription
	pendingSubAcks map[subKey][]*Future
	pendingMulti   []*Future

	cache *clientCache
}

// Connect dials the server and performs the protocol handshake described
// by opts. The returned Connection is live: its reader goroutine is
// running and commands may be issued immediately.
func Connect(ctx context.Context, opts Options) (*Connection, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.Addr())
	if err != nil {
		return nil, transportErr("dial "+opts.Addr(), err)
	}

	c := &Connection{
		opts:           opts,
		id:             ulid.Make().String(),
		conn:           conn,
		bw:             bufio.NewWriterSize(conn, opts.StreamWriteLen),
		dec:            protocol.NewDecoder(conn, opts.StreamReadLen),
		localAddr:      conn.LocalAddr(),
		remoteAddr:     conn.RemoteAddr(),
		subsByChannel:  make(map[string]*Subscription),
		subsByPattern:  make(map[string]*Subscription),
		pendingSubAcks: make(map[subKey][]*Future),
	}
	c.log = opts.Logger.With("conn_id", c.id, "addr", opts.Addr())
	c.metrics = metric.NewRegistry(opts.Metrics)

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if opts.ClientSideCacheSize > 0 {
		c.cache = newClientCache(c, opts.ClientSideCacheSize)
	}

	c.log.Info("connected", "proto", c.proto)
	go c.readLoop()
	return c, nil
}

// ID returns the connection's ULID, used in log output.
func (c *Connection) ID() string { return c.id }

// LocalAddr returns the local endpoint of the stream.
func (c *Connection) LocalAddr() net.Addr { return c.localAddr }

// RemoteAddr returns the remote endpoint of the stream.
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }

// ProtocolVersion returns 2 or 3, fixed after negotiation.
func (c *Connection) ProtocolVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto
}

// handshake negotiates the protocol generation before the reader goroutine
// starts, so it can use the decoder directly.
func (c *Connection) handshake() error {
	hello := [][]byte{[]byte("HELLO"), []byte("3")}
	if c.opts.Auth != "" {
		hello = append(hello, []byte("AUTH"), []byte("default"), []byte(c.opts.Auth))
	}
	if c.opts.ClientName != "" {
		hello = append(hello, []byte("SETNAME"), []byte(c.opts.ClientName))
	}

	reply, err := c.roundTrip(hello)
	if err != nil {
		return err
	}

	switch {
	case reply.IsError() && strings.HasPrefix(reply.Str, "ERR unknown command"):
		c.proto = ProtoRESP2
		if c.opts.Auth != "" {
			if err := c.roundTripOK([][]byte{[]byte("AUTH"), []byte(c.opts.Auth)}); err != nil {
				return err
			}
		}
		if c.opts.ClientName != "" {
			if err := c.roundTripOK([][]byte{[]byte("CLIENT"), []byte("SETNAME"), []byte(c.opts.ClientName)}); err != nil {
				return err
			}
		}
	case reply.IsError():
		return redisErr(reply.Str)
	default:
		c.proto = ProtoRESP3
		c.setClientInfo()
	}

	if c.opts.Database != 0 {
		sel := [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(c.opts.Database))}
		if err := c.roundTripOK(sel); err != nil {
			return err
		}
	}
	return nil
}

// setClientInfo announces the library to the server. Best effort: servers
// older than 7.2 reject CLIENT SETINFO and the error is ignored.
func (c *Connection) setClientInfo() {
	info := buildinfo.Get()
	for _, kv := range [][2]string{{"lib-name", info.Name}, {"lib-ver", info.Version}} {
		args := [][]byte{[]byte("CLIENT"), []byte("SETINFO"), []byte(kv[0]), []byte(kv[1])}
		if _, err := c.roundTrip(args); err != nil {
			return
		}
	}
}

// roundTrip writes one command and decodes its reply synchronously. Only
// valid before the reader goroutine starts.
func (c *Connection) roundTrip(args [][]byte) (Reply, error) {
	if _, err := c.bw.Write(protocol.CommandBytes(args...)); err != nil {
		return Reply{}, transportErr("write", err)
	}
	if err := c.bw.Flush(); err != nil {
		return Reply{}, transportErr("write", err)
	}
	reply, err := c.dec.Next()
	if err != nil {
		return Reply{}, classifyReadErr(err)
	}
	return reply, nil
}

func (c *Connection) roundTripOK(args [][]byte) error {
	reply, err := c.roundTrip(args)
	if err != nil {
		return err
	}
	if reply.IsError() {
		return redisErr(reply.Str)
	}
	return nil
}

func classifyReadErr(err error) error {
	if errors.Is(err, protocol.ErrProtocol) {
		return protocolErr(err)
	}
	return transportErr("read", err)
}

// execute places one command on the wire and returns its future. internal
// marks commands issued by the MULTI machinery, which are exempt from the
// pub/sub lockout and the transaction barrier.
func (c *Connection) execute(ctx context.Context, internal bool, args [][]byte) *Future {
	if len(args) == 0 || len(args[0]) == 0 {
		return failedFuture("", &Error{Kind: KindUsage, Message: "empty command"})
	}

	verb := strings.ToUpper(string(args[0]))
	label := verb
	if verb == "KEYS" {
		label = joinTokens(args)
	}

	// Subscription commands are never paired through the pending queue;
	// their acks come back through the subscription path.
	if !internal {
		switch verb {
		case "SUBSCRIBE", "PSUBSCRIBE", "UNSUBSCRIBE", "PUNSUBSCRIBE":
			return c.subscriptionFuture(ctx, verb, args)
		}
	}

	if !internal {
		if err := c.waitMultiBarriers(ctx); err != nil {
			return failedFuture(label, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedFuture(label, disconnectedErr())
	}

	if !internal && c.proto == ProtoRESP2 && c.pubsubCount > 0 && !subscriberAllowed[verb] {
		channels, patterns := len(c.subsByChannel), len(c.subsByPattern)
		c.mu.Unlock()
		return failedFuture(label, &Error{
			Kind:     KindUsage,
			Message:  "cannot call " + verb + " while subscribed",
			Channels: channels,
			Patterns: patterns,
		})
	}

	fut := newFuture(label)
	c.traceFuture(ctx, verb, fut)

	if c.opts.PipelineDepth > 0 && len(c.pending) >= c.opts.PipelineDepth {
		c.awaiting = append(c.awaiting, &queuedCommand{label: label, args: args, fut: fut})
		c.mu.Unlock()
		return fut
	}

	c.sendLocked(label, fut, args)
	c.mu.Unlock()
	return fut
}

// traceFuture opens a span for the command and closes it when the future
// settles.
func (c *Connection) traceFuture(ctx context.Context, verb string, fut *Future) {
	if !c.opts.OpenTracing {
		return
	}
	span, _ := tracer.StartCommand(ctx, verb)
	go func(span opentracing.Span) {
		<-fut.Done()
		tracer.FinishCommand(span, fut.err)
	}(span)
}

// waitMultiBarriers defers the caller until every MULTI session pending at
// call time has issued its EXEC and seen it complete.
func (c *Connection) waitMultiBarriers(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return disconnectedErr()
	}
	barriers := slices.Clone(c.pendingMulti)
	c.mu.Unlock()

	for _, b := range barriers {
		select {
		case <-b.Done():
		case <-ctx.Done():
			return cancelledErr(ctx.Err())
		}
	}
	return nil
}

// sendLocked encodes the command, appends the pending entry, and writes.
// Callers hold c.mu.
func (c *Connection) sendLocked(label string, fut *Future, args [][]byte) {
	if err := c.writeLocked(args); err != nil {
		fut.fail(err)
		return
	}
	c.pending = append(c.pending, &pendingEntry{label: label, fut: fut})
	c.metrics.CommandsSent.WithLabelValues(strings.ToUpper(string(args[0]))).Inc()
	c.metrics.PendingDepth.Set(float64(len(c.pending)))
}

// writeLocked puts one encoded command on the stream. A write failure
// tears the connection down. Callers hold c.mu.
func (c *Connection) writeLocked(args [][]byte) error {
	if c.closed {
		return disconnectedErr()
	}
	if _, err := c.bw.Write(protocol.CommandBytes(args...)); err != nil {
		werr := transportErr("write", err)
		c.teardownLocked(werr)
		return werr
	}
	if err := c.bw.Flush(); err != nil {
		werr := transportErr("write", err)
		c.teardownLocked(werr)
		return werr
	}
	return nil
}

// readLoop is the connection's reader goroutine: it owns the decoder and
// dispatches every top-level value until the stream dies.
func (c *Connection) readLoop() {
	for {
		reply, err := c.dec.Next()
		if err != nil {
			cerr := classifyReadErr(err)
			if errors.Is(err, protocol.ErrProtocol) {
				c.log.Error("protocol error, tearing down", "error", err)
			}
			c.teardown(cerr)
			return
		}
		c.dispatch(reply)
	}
}

// dispatch routes one decoded top-level reply.
func (c *Connection) dispatch(reply Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if reply.IsPush() {
		c.dispatchPushLocked(reply)
		return
	}

	if c.proto == ProtoRESP2 && reply.Type == protocol.TypeArray && len(reply.Elems) > 0 {
		if kind, ok := subscriptionEvent(reply.Elems[0]); ok {
			c.dispatchPubSubLocked(kind, reply.Elems)
			return
		}
	}

	if len(c.pending) == 0 {
		c.log.Error("reply with no pending request", "type", reply.Type.String())
		return
	}
	entry := c.pending[0]
	c.pending = c.pending[1:]
	c.metrics.PendingDepth.Set(float64(len(c.pending)))

	switch {
	case entry.fut.Cancelled():
		// Caller withdrew; the slot kept FIFO pairing intact and the
		// reply is dropped here.
		c.metrics.RepliesReceived.WithLabelValues("cancelled").Inc()
	case reply.IsError():
		c.metrics.RepliesReceived.WithLabelValues("error").Inc()
		entry.fut.fail(redisErr(reply.Str))
	default:
		c.metrics.RepliesReceived.WithLabelValues("ok").Inc()
		entry.fut.resolve(reply)
	}

	c.promoteLocked()
}

// dispatchPushLocked routes a RESP3 push frame by its event name. Push
// frames never terminate a pending request.
func (c *Connection) dispatchPushLocked(reply Reply) {
	c.metrics.RepliesReceived.WithLabelValues("push").Inc()
	if len(reply.Elems) == 0 {
		c.log.Warn("empty push frame")
		return
	}
	kind, _ := reply.Elems[0].AsString()
	switch kind {
	case "invalidate":
		if c.cache != nil && len(reply.Elems) > 1 {
			c.cache.invalidateFromReply(reply.Elems[1])
		}
	case "message", "smessage", "pmessage",
		"subscribe", "psubscribe", "unsubscribe", "punsubscribe":
		c.dispatchPubSubLocked(kind, reply.Elems)
	default:
		c.log.Warn("unhandled push frame", "kind", kind)
	}
}

// subscriptionEvent reports whether a RESP2 array head names a
// subscription event that must bypass the pending queue.
func subscriptionEvent(head Reply) (string, bool) {
	s, err := head.AsString()
	if err != nil {
		return "", false
	}
	switch s {
	case "message", "pmessage", "subscribe", "psubscribe", "unsubscribe", "punsubscribe":
		return s, true
	}
	return "", false
}

// promoteLocked moves queued commands onto the wire while the pipeline has
// capacity. Callers hold c.mu.
func (c *Connection) promoteLocked() {
	for len(c.awaiting) > 0 &&
		(c.opts.PipelineDepth == 0 || len(c.pending) < c.opts.PipelineDepth) {
		q := c.awaiting[0]
		c.awaiting = c.awaiting[1:]
		if q.fut.Cancelled() {
			continue
		}
		c.sendLocked(q.label, q.fut, q.args)
		if c.closed {
			return
		}
	}
}

// Close shuts the connection down, failing every outstanding request and
// closing every subscription sink.
func (c *Connection) Close() error {
	c.teardown(nil)
	return nil
}

func (c *Connection) teardown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(cause)
}

// teardownLocked clears all connection state. Every unresolved future
// fails with the synthesized disconnect error; subscription sinks close so
// consumers see end-of-stream. Callers hold c.mu.
func (c *Connection) teardownLocked(cause error) {
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()

	derr := disconnectedErr()
	for _, e := range c.pending {
		e.fut.fail(derr)
	}
	c.pending = nil
	for _, q := range c.awaiting {
		q.fut.fail(derr)
	}
	c.awaiting = nil
	for _, acks := range c.pendingSubAcks {
		for _, f := range acks {
			f.fail(derr)
		}
	}
	c.pendingSubAcks = make(map[subKey][]*Future)

	for name, sub := range c.subsByChannel {
		sub.cancel()
		delete(c.subsByChannel, name)
	}
	for name, sub := range c.subsByPattern {
		sub.cancel()
		delete(c.subsByPattern, name)
	}
	c.pubsubCount = 0

	for _, b := range c.pendingMulti {
		b.fail(derr)
	}
	c.pendingMulti = nil

	if c.cache != nil {
		c.cache.shutdown()
	}

	c.metrics.PendingDepth.Set(0)
	c.metrics.Disconnects.Inc()
	c.log.Info("disconnected", "cause", errText(cause))

	if cb := c.opts.OnDisconnect; cb != nil {
		go cb(cause)
	}
}

func errText(err error) string {
	if err == nil {
		return "closed by client"
	}
	return err.Error()
}

func joinTokens(args [][]byte) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return strings.ToUpper(parts[0]) + " " + strings.Join(parts[1:], " ")
}
