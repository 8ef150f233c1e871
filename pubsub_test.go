package redis

import (
	"errors"
	"testing"
)

func TestSubscribe_DeliversInOrder(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.Subscribe(ctx, "news")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sc := s.connAt(0)
	for _, payload := range []string{"one", "two", "three"} {
		sc.sendMessage("news", payload)
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case msg := <-subs[0].Messages():
			if string(msg.Payload) != want {
				t.Errorf("payload = %q, want %q", msg.Payload, want)
			}
			if msg.Type != "message" || msg.Channel != "news" {
				t.Errorf("message = %+v", msg)
			}
		case <-ctx.Done():
			t.Fatal("message never delivered")
		}
	}
}

func TestSubscribe_MultipleChannels(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.Subscribe(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len(subs) = %d, want 2", len(subs))
	}

	channels, patterns := conn.SubscriptionCount()
	if channels != 2 || patterns != 0 {
		t.Errorf("counts = (%d, %d), want (2, 0)", channels, patterns)
	}
}

func TestPSubscribe_RoutesByPattern(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.PSubscribe(ctx, "news.*")
	if err != nil {
		t.Fatalf("PSubscribe() error = %v", err)
	}

	s.connAt(0).send("*4\r\n" +
		"$8\r\npmessage\r\n" +
		"$6\r\nnews.*\r\n" +
		"$9\r\nnews.tech\r\n" +
		"$5\r\nhello\r\n")

	select {
	case msg := <-subs[0].Messages():
		if msg.Type != "pmessage" || msg.Pattern != "news.*" || msg.Channel != "news.tech" {
			t.Errorf("message = %+v", msg)
		}
		if string(msg.Payload) != "hello" {
			t.Errorf("payload = %q", msg.Payload)
		}
	case <-ctx.Done():
		t.Fatal("pmessage never delivered")
	}
}

func TestRESP2PubSubLockout(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	if _, err := conn.Subscribe(ctx, "t"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	_, err := conn.Do(ctx, "GET", "k")
	e, ok := AsError(err)
	if !ok || e.Kind != KindUsage {
		t.Fatalf("Do(GET) error = %v, want usage error", err)
	}
	if e.Channels != 1 || e.Patterns != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", e.Channels, e.Patterns)
	}

	// The refused command never reached the wire.
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if got := s.commandCount("GET"); got != 0 {
		t.Errorf("GET bytes on the wire (count=%d)", got)
	}
}

func TestRESP3NoLockout(t *testing.T) {
	s := startServer(t, true, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	if _, err := conn.Subscribe(ctx, "t"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	// RESP3 connections may keep issuing ordinary commands.
	if _, err := conn.Do(ctx, "GET", "k"); err != nil {
		t.Errorf("Do(GET) on RESP3 while subscribed = %v", err)
	}
}

func TestUnsubscribe_ClosesSink(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := subs[0].Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	select {
	case _, ok := <-subs[0].Messages():
		if ok {
			t.Error("unexpected delivery after unsubscribe")
		}
	case <-ctx.Done():
		t.Fatal("sink did not close after unsubscribe ack")
	}

	// The lockout lifts once every subscription is released.
	if _, err := conn.Do(ctx, "GET", "k"); err != nil {
		t.Errorf("Do(GET) after unsubscribe = %v", err)
	}
}

func TestUnsubscribeAll_NoSubscriptions(t *testing.T) {
	s := startServer(t, false, func(sc *serverConn, cmd []string) bool {
		if len(cmd) == 1 && cmd[0] == "UNSUBSCRIBE" {
			// No subscriptions: the server acks with a nil name.
			sc.send("*3\r\n$11\r\nunsubscribe\r\n$-1\r\n:0\r\n")
			return true
		}
		return false
	})
	conn := mustConnect(t, s)

	if err := conn.Unsubscribe(testCtx(t)); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestSubscribe_UnknownChannelMessageDropped(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.Subscribe(ctx, "known")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sc := s.connAt(0)
	sc.sendMessage("unknown", "dropped")
	sc.sendMessage("known", "kept")

	select {
	case msg := <-subs[0].Messages():
		if string(msg.Payload) != "kept" {
			t.Errorf("payload = %q, want kept", msg.Payload)
		}
	case <-ctx.Done():
		t.Fatal("message never delivered")
	}
}

func TestSubscription_BackReferenceInvalidatedOnTeardown(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	subs, err := conn.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	conn.Close()

	// Draining first guarantees the teardown finished.
	for range subs[0].Messages() {
	}
	if err := subs[0].Unsubscribe(ctx); err != nil {
		t.Errorf("Unsubscribe() after teardown = %v, want nil no-op", err)
	}
}

func TestSubscribe_FailsOnClosedConnection(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	conn.Close()

	_, err := conn.Subscribe(testCtx(t), "t")
	if !errors.Is(err, ErrDisconnected) {
		t.Errorf("Subscribe() error = %v, want disconnected", err)
	}
}

func TestPubSubCount_TracksAcks(t *testing.T) {
	s := startServer(t, false, nil)
	conn := mustConnect(t, s)
	ctx := testCtx(t)

	if _, err := conn.Subscribe(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.PSubscribe(ctx, "p.*"); err != nil {
		t.Fatal(err)
	}
	if err := conn.Unsubscribe(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	channels, patterns := conn.SubscriptionCount()
	if channels != 1 || patterns != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", channels, patterns)
	}

	// Still locked out: one channel and one pattern remain.
	_, err := conn.Do(ctx, "GET", "k")
	e, ok := AsError(err)
	if !ok || e.Kind != KindUsage {
		t.Fatalf("error = %v, want usage", err)
	}
	if e.Channels != 1 || e.Patterns != 1 {
		t.Errorf("error counts = (%d, %d), want (1, 1)", e.Channels, e.Patterns)
	}
}
