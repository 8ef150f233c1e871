package redis

import (
	"context"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// invalidationChannel is the server-maintained pub/sub channel announcing
// keys modified elsewhere.
const invalidationChannel = "__redis__:invalidate"

// clientCache is the bounded LRU of GET replies, evicted by server
// invalidation messages.
//
// On RESP3 the invalidation pushes share the parent connection. On RESP2
// a sibling connection is built on first use: it obtains its CLIENT ID,
// the parent redirects tracking to it, and it subscribes to the
// invalidation channel.
type clientCache struct {
	parent *Connection
	size   int
	lru    *lru.Cache[string, Reply]

	mu          sync.Mutex
	initialized bool
	sibling     *Connection
}

func newClientCache(parent *Connection, size int) *clientCache {
	// lru.New only fails for a non-positive size; Connect builds the cache
	// only for a positive ClientSideCacheSize.
	l, _ := lru.New[string, Reply](size)
	return &clientCache{parent: parent, size: size, lru: l}
}

// get serves GET through the cache: a hit returns the last observed reply
// without touching the wire, a miss performs the server GET and caches a
// successful reply.
func (cc *clientCache) get(ctx context.Context, key string) (Reply, error) {
	if err := cc.ensure(ctx); err != nil {
		return Reply{}, err
	}

	if v, ok := cc.lru.Get(key); ok {
		cc.parent.metrics.CacheHits.Inc()
		return v, nil
	}
	cc.parent.metrics.CacheMisses.Inc()

	fut := cc.parent.execute(ctx, false, protocol.Args("GET", key))
	reply, err := fut.Wait(ctx)
	if err != nil {
		return Reply{}, err
	}
	cc.lru.Add(key, reply)
	return reply, nil
}

// ensure lazily wires the invalidation feed the first time the cache is
// used.
func (cc *clientCache) ensure(ctx context.Context) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.initialized {
		return nil
	}

	if cc.parent.ProtocolVersion() == ProtoRESP3 {
		// Invalidation pushes arrive on the parent's own stream.
		if _, err := cc.parent.Do(ctx, "CLIENT", "TRACKING", "on"); err != nil {
			return err
		}
		cc.initialized = true
		return nil
	}

	sibOpts := cc.parent.opts
	sibOpts.ClientSideCacheSize = 0
	sibOpts.Database = 0
	sibOpts.URI = ""
	sibOpts.OnDisconnect = nil
	if sibOpts.ClientName != "" {
		sibOpts.ClientName += "-cache"
	}
	sibOpts.Metrics = nil

	sibling, err := Connect(ctx, sibOpts)
	if err != nil {
		return err
	}

	id, err := sibling.ClientID(ctx)
	if err != nil {
		sibling.Close()
		return err
	}
	if _, err := cc.parent.Do(ctx, "CLIENT", "TRACKING", "on", "REDIRECT", strconv.FormatInt(id, 10)); err != nil {
		sibling.Close()
		return err
	}
	subs, err := sibling.Subscribe(ctx, invalidationChannel)
	if err != nil {
		sibling.Close()
		return err
	}

	go func() {
		for msg := range subs[0].Messages() {
			cc.invalidateFromReply(msg.Value)
		}
	}()

	cc.sibling = sibling
	cc.initialized = true
	return nil
}

// invalidateFromReply evicts every key named by an invalidation payload.
// A nil payload is a full flush; an absent key is a no-op.
func (cc *clientCache) invalidateFromReply(payload Reply) {
	if payload.IsNil() {
		cc.lru.Purge()
		cc.parent.metrics.CacheInvalidate.Inc()
		return
	}
	if payload.IsAggregate() {
		for _, e := range payload.Elems {
			cc.evict(e.Str)
		}
		return
	}
	cc.evict(payload.Str)
}

func (cc *clientCache) evict(key string) {
	if key == "" {
		return
	}
	cc.lru.Remove(key)
	cc.parent.metrics.CacheInvalidate.Inc()
}

// shutdown tears down the sibling connection with the parent.
func (cc *clientCache) shutdown() {
	cc.mu.Lock()
	sibling := cc.sibling
	cc.sibling = nil
	cc.initialized = true
	cc.mu.Unlock()
	cc.lru.Purge()
	if sibling != nil {
		go sibling.Close()
	}
}
