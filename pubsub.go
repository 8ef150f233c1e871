package redis

import (
	"context"
	"sync"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// Message is one pub/sub delivery.
type Message struct {
	// Type is the delivery kind: message, pmessage, or smessage.
	Type string

	// Channel is the channel the message was published to.
	Channel string

	// Pattern is the matching pattern for pmessage deliveries.
	Pattern string

	// Payload is the published payload for bulk-string payloads.
	Payload []byte

	// Value is the raw payload reply. It differs from Payload only for
	// non-bulk payloads, such as the key arrays on the invalidation
	// channel.
	Value Reply
}

// Subscription is one confirmed channel or pattern subscription. Messages
// arrive on an unbounded lossless sink drained through Messages; the
// channel closes when the matching unsubscribe is confirmed or the
// connection goes away.
type Subscription struct {
	name    string
	pattern bool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Message
	closing bool
	dropped bool
	out     chan Message
	done    chan struct{}

	connMu sync.Mutex
	conn   *Connection
}

func newSubscription(c *Connection, name string, pattern bool) *Subscription {
	s := &Subscription{
		name:    name,
		pattern: pattern,
		out:     make(chan Message),
		done:    make(chan struct{}),
		conn:    c,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Name returns the channel name or pattern.
func (s *Subscription) Name() string { return s.name }

// IsPattern reports whether the subscription is a PSUBSCRIBE pattern.
func (s *Subscription) IsPattern() bool { return s.pattern }

// Messages returns the delivery channel. It closes after the subscription
// ends; buffered deliveries drain first unless the connection died.
func (s *Subscription) Messages() <-chan Message { return s.out }

// Unsubscribe releases the subscription and waits for the server ack.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return nil
	}
	if s.pattern {
		return conn.PUnsubscribe(ctx, s.name)
	}
	return conn.Unsubscribe(ctx, s.name)
}

// emit enqueues one delivery. Deliveries keep arrival order.
func (s *Subscription) emit(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.queue = append(s.queue, m)
	s.cond.Signal()
}

// closeGraceful ends the subscription after draining queued deliveries.
// Used on unsubscribe acks.
func (s *Subscription) closeGraceful() {
	s.detach()
	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// cancel ends the subscription immediately, dropping queued deliveries.
// Used on connection teardown.
func (s *Subscription) cancel() {
	s.detach()
	s.mu.Lock()
	if !s.dropped {
		s.closing = true
		s.dropped = true
		close(s.done)
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// detach invalidates the back-reference to the connection, breaking the
// registry cycle.
func (s *Subscription) detach() {
	s.connMu.Lock()
	s.conn = nil
	s.connMu.Unlock()
}

func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closing {
			s.cond.Wait()
		}
		if s.dropped || len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		m := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- m:
		case <-s.done:
			close(s.out)
			return
		}
	}
}

// Subscribe subscribes to the named channels. It returns once the server
// has acknowledged every channel; each returned Subscription is live from
// its ack onward.
func (c *Connection) Subscribe(ctx context.Context, channels ...string) ([]*Subscription, error) {
	return c.subscribe(ctx, "SUBSCRIBE", false, channels)
}

// PSubscribe subscribes to the given patterns.
func (c *Connection) PSubscribe(ctx context.Context, patterns ...string) ([]*Subscription, error) {
	return c.subscribe(ctx, "PSUBSCRIBE", true, patterns)
}

func (c *Connection) subscribe(ctx context.Context, verb string, pattern bool, names []string) ([]*Subscription, error) {
	if len(names) == 0 {
		return nil, &Error{Kind: KindUsage, Message: verb + " requires at least one name"}
	}
	if err := c.waitMultiBarriers(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, disconnectedErr()
	}

	registry := c.subsByChannel
	if pattern {
		registry = c.subsByPattern
	}

	subs := make([]*Subscription, len(names))
	acks := make([]*Future, len(names))
	args := make([][]byte, 0, len(names)+1)
	args = append(args, []byte(verb))
	for i, name := range names {
		sub, ok := registry[name]
		if !ok {
			sub = newSubscription(c, name, pattern)
			registry[name] = sub
		}
		subs[i] = sub

		ack := newFuture(verb)
		key := subKey{pattern: pattern, name: name}
		c.pendingSubAcks[key] = append(c.pendingSubAcks[key], ack)
		acks[i] = ack
		args = append(args, []byte(name))
	}

	// Subscription commands are written but never appended to the
	// pending queue: their acks come back through the subscription path
	// in both protocol generations.
	if err := c.writeLocked(args); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.metrics.CommandsSent.WithLabelValues(verb).Inc()
	c.mu.Unlock()

	for _, ack := range acks {
		if _, err := ack.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// Unsubscribe releases the named channel subscriptions, or every channel
// subscription when called with no names. It returns once the acks have
// arrived and the sinks are closed.
func (c *Connection) Unsubscribe(ctx context.Context, channels ...string) error {
	return c.unsubscribe(ctx, "UNSUBSCRIBE", false, channels)
}

// PUnsubscribe releases pattern subscriptions the same way.
func (c *Connection) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return c.unsubscribe(ctx, "PUNSUBSCRIBE", true, patterns)
}

func (c *Connection) unsubscribe(ctx context.Context, verb string, pattern bool, names []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return disconnectedErr()
	}

	registry := c.subsByChannel
	if pattern {
		registry = c.subsByPattern
	}
	if len(names) == 0 {
		for name := range registry {
			names = append(names, name)
		}
		if len(names) == 0 {
			// Nothing subscribed; the server acks with a nil name,
			// registered under the empty key.
			names = []string{""}
		}
	}

	acks := make([]*Future, 0, len(names))
	args := make([][]byte, 0, len(names)+1)
	args = append(args, []byte(verb))
	for _, name := range names {
		ack := newFuture(verb)
		key := subKey{pattern: pattern, name: name}
		c.pendingSubAcks[key] = append(c.pendingSubAcks[key], ack)
		acks = append(acks, ack)
		if name != "" {
			args = append(args, []byte(name))
		}
	}

	if err := c.writeLocked(args); err != nil {
		c.mu.Unlock()
		return err
	}
	c.metrics.CommandsSent.WithLabelValues(verb).Inc()
	c.mu.Unlock()

	for _, ack := range acks {
		if _, err := ack.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// subscriptionFuture adapts a subscription verb issued through the
// uniform command surface onto the subscription path. The future resolves
// once every per-name ack has arrived.
func (c *Connection) subscriptionFuture(ctx context.Context, verb string, args [][]byte) *Future {
	names := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		names = append(names, string(a))
	}

	fut := newFuture(verb)
	go func() {
		var err error
		switch verb {
		case "SUBSCRIBE":
			_, err = c.subscribe(ctx, verb, false, names)
		case "PSUBSCRIBE":
			_, err = c.subscribe(ctx, verb, true, names)
		case "UNSUBSCRIBE":
			err = c.unsubscribe(ctx, verb, false, names)
		case "PUNSUBSCRIBE":
			err = c.unsubscribe(ctx, verb, true, names)
		}
		if err != nil {
			fut.fail(err)
			return
		}
		fut.resolve(protocol.Status("OK"))
	}()
	return fut
}

// SubscriptionCount returns the confirmed channel and pattern counts.
func (c *Connection) SubscriptionCount() (channels, patterns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subsByChannel), len(c.subsByPattern)
}

// dispatchPubSubLocked handles subscription acks and inbound deliveries.
// Callers hold c.mu.
func (c *Connection) dispatchPubSubLocked(kind string, elems []Reply) {
	switch kind {
	case "subscribe", "psubscribe":
		pattern := kind == "psubscribe"
		name := elemString(elems, 1)
		c.pubsubCount++
		registry := c.subsByChannel
		if pattern {
			registry = c.subsByPattern
		}
		if _, ok := registry[name]; !ok {
			registry[name] = newSubscription(c, name, pattern)
		}
		c.resolveSubAckLocked(subKey{pattern: pattern, name: name}, elems)

	case "unsubscribe", "punsubscribe":
		pattern := kind == "punsubscribe"
		name := ""
		if len(elems) > 1 && !elems[1].IsNil() {
			name = elemString(elems, 1)
		}
		if name != "" {
			if c.pubsubCount > 0 {
				c.pubsubCount--
			}
			registry := c.subsByChannel
			if pattern {
				registry = c.subsByPattern
			}
			if sub, ok := registry[name]; ok {
				delete(registry, name)
				sub.closeGraceful()
			}
		}
		c.resolveSubAckLocked(subKey{pattern: pattern, name: name}, elems)

	case "message", "smessage":
		channel := elemString(elems, 1)
		sub, ok := c.subsByChannel[channel]
		if !ok {
			c.log.Warn("pubsub message for unknown channel", "channel", channel)
			return
		}
		payload := elemReply(elems, 2)
		sub.emit(Message{
			Type:    kind,
			Channel: channel,
			Payload: []byte(payload.Str),
			Value:   payload,
		})
		c.metrics.PubSubMessages.Inc()

	case "pmessage":
		pat := elemString(elems, 1)
		sub, ok := c.subsByPattern[pat]
		if !ok {
			c.log.Warn("pubsub message for unknown pattern", "pattern", pat)
			return
		}
		payload := elemReply(elems, 3)
		sub.emit(Message{
			Type:    kind,
			Pattern: pat,
			Channel: elemString(elems, 2),
			Payload: []byte(payload.Str),
			Value:   payload,
		})
		c.metrics.PubSubMessages.Inc()
	}
}

// resolveSubAckLocked completes the oldest pending ack future for the key
// with the per-name running count. Callers hold c.mu.
func (c *Connection) resolveSubAckLocked(key subKey, elems []Reply) {
	acks := c.pendingSubAcks[key]
	if len(acks) == 0 {
		return
	}
	ack := acks[0]
	if len(acks) == 1 {
		delete(c.pendingSubAcks, key)
	} else {
		c.pendingSubAcks[key] = acks[1:]
	}
	ack.resolve(elemReply(elems, 2))
}

func elemString(elems []Reply, i int) string {
	if i >= len(elems) {
		return ""
	}
	s, _ := elems[i].AsString()
	return s
}

func elemReply(elems []Reply, i int) Reply {
	if i >= len(elems) {
		return Reply{Type: protocol.TypeNull, Nil: true}
	}
	return elems[i]
}
