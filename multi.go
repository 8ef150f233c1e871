package redis

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// ErrDiscarded is the error queued futures fail with when a transaction
// body asks for DISCARD.
var ErrDiscarded = &Error{Kind: KindRedis, Message: "transaction discarded"}

// Tx is the command handle passed to a Multi body. Commands issued
// through it are queued on the server and resolve from the EXEC reply, in
// submission order.
type Tx struct {
	conn      *Connection
	ctx       context.Context
	futures   []*Future
	wires     []*Future
	discarded bool
}

// Do queues one command inside the transaction and returns the future
// that resolves from its EXEC slot.
func (tx *Tx) Do(tokens ...string) *Future {
	args := protocol.Args(tokens...)
	label := ""
	if len(tokens) > 0 {
		label = strings.ToUpper(tokens[0])
	}
	fut := newFuture(label)
	wire := tx.conn.execute(tx.ctx, true, args)
	tx.futures = append(tx.futures, fut)
	tx.wires = append(tx.wires, wire)
	return fut
}

// Set queues SET key value.
func (tx *Tx) Set(key, value string) *Future { return tx.Do("SET", key, value) }

// Get queues GET key.
func (tx *Tx) Get(key string) *Future { return tx.Do("GET", key) }

// Incr queues INCR key.
func (tx *Tx) Incr(key string) *Future { return tx.Do("INCR", key) }

// Del queues DEL key.
func (tx *Tx) Del(keys ...string) *Future {
	return tx.Do(append([]string{"DEL"}, keys...)...)
}

// Discard abandons the transaction: queued futures fail with ErrDiscarded
// once the body returns.
func (tx *Tx) Discard() {
	tx.discarded = true
}

// Multi runs body inside a MULTI/EXEC transaction. Transactions on one
// connection serialize strictly FIFO: a later Multi waits until every
// earlier one has completed its EXEC, and ordinary commands issued while a
// transaction is pending are deferred the same way.
//
// Multi returns the counts of queued commands that resolved and failed
// from the EXEC reply.
func (c *Connection) Multi(ctx context.Context, body func(tx *Tx) error) (successes, failures int, err error) {
	barrier := newFuture("MULTI")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, 0, disconnectedErr()
	}
	predecessors := slices.Clone(c.pendingMulti)
	c.pendingMulti = append(c.pendingMulti, barrier)
	c.mu.Unlock()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		c.mu.Lock()
		for i, b := range c.pendingMulti {
			if b == barrier {
				c.pendingMulti = append(c.pendingMulti[:i], c.pendingMulti[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		barrier.resolve(Reply{})
	}
	defer release()

	for _, p := range predecessors {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return 0, 0, cancelledErr(ctx.Err())
		}
	}

	tx := &Tx{conn: c, ctx: ctx}
	multiFut := c.execute(ctx, true, protocol.Args("MULTI"))

	bodyErr := body(tx)
	if bodyErr != nil || tx.discarded {
		if bodyErr == nil {
			bodyErr = ErrDiscarded
		}
		discardFut := c.execute(ctx, true, protocol.Args("DISCARD"))
		_, _ = discardFut.Wait(ctx)
		for _, f := range tx.futures {
			f.fail(bodyErr)
		}
		return 0, len(tx.futures), bodyErr
	}

	execFut := c.execute(ctx, true, protocol.Args("EXEC"))
	execReply, execErr := execFut.Wait(ctx)

	if _, merr := multiFut.Wait(ctx); merr != nil && execErr == nil {
		execErr = merr
	}

	if execErr != nil {
		for i, f := range tx.futures {
			// Prefer the queue-time error each command saw, if any.
			if werr := wireErr(tx.wires, i); werr != nil {
				f.fail(werr)
			} else {
				f.fail(execErr)
			}
		}
		return 0, len(tx.futures), execErr
	}

	if execReply.IsNil() {
		abort := redisErr("EXECABORT transaction discarded")
		for _, f := range tx.futures {
			f.fail(abort)
		}
		return 0, len(tx.futures), abort
	}

	for i, f := range tx.futures {
		if i >= len(execReply.Elems) {
			failures++
			f.fail(protocolErr(errors.New("EXEC reply shorter than queued commands")))
			continue
		}
		elem := execReply.Elems[i]
		if elem.IsError() {
			failures++
			f.fail(redisErr(elem.Str))
		} else {
			successes++
			f.resolve(elem)
		}
	}
	return successes, failures, nil
}

func wireErr(wires []*Future, i int) error {
	if i >= len(wires) {
		return nil
	}
	select {
	case <-wires[i].Done():
		return wires[i].err
	default:
		return nil
	}
}
