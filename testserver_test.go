package redis

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// fakeServer is an in-process Redis stand-in. It speaks just enough of
// the protocol for the client under test: the HELLO handshake in either
// generation, canned replies for housekeeping commands, a MULTI queue,
// and subscription acks. Tests override behavior per command through the
// handle callback and inject asynchronous frames with serverConn.send.
type fakeServer struct {
	t     *testing.T
	ln    net.Listener
	resp3 bool

	// handle, when set, runs before the default replies. Returning true
	// means the command was answered.
	handle func(sc *serverConn, cmd []string) bool

	mu      sync.Mutex
	conns   []*serverConn
	history []recordedCommand
}

type recordedCommand struct {
	conn int
	cmd  []string
}

type serverConn struct {
	s     *fakeServer
	index int
	conn  net.Conn

	wmu sync.Mutex
	w   *bufio.Writer

	inMulti  bool
	subCount int
}

func startServer(t *testing.T, resp3 bool, handle func(sc *serverConn, cmd []string) bool) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{t: t, ln: ln, resp3: resp3, handle: handle}
	go s.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		sc := &serverConn{s: s, index: len(s.conns), conn: conn, w: bufio.NewWriter(conn)}
		s.conns = append(s.conns, sc)
		s.mu.Unlock()
		go sc.serve()
	}
}

func (sc *serverConn) serve() {
	dec := protocol.NewDecoder(sc.conn, 4096)
	for {
		v, err := dec.Next()
		if err != nil {
			return
		}
		cmd := commandTokens(v)
		if len(cmd) == 0 {
			continue
		}
		verb := strings.ToUpper(cmd[0])

		sc.s.mu.Lock()
		sc.s.history = append(sc.s.history, recordedCommand{conn: sc.index, cmd: cmd})
		sc.s.mu.Unlock()

		wasInMulti := sc.inMulti
		switch verb {
		case "MULTI":
			sc.inMulti = true
		case "EXEC", "DISCARD":
			sc.inMulti = false
		}

		if sc.s.handle != nil && sc.s.handle(sc, cmd) {
			continue
		}
		sc.defaultReply(verb, cmd, wasInMulti)
	}
}

func (sc *serverConn) defaultReply(verb string, cmd []string, wasInMulti bool) {
	if wasInMulti && verb != "EXEC" && verb != "DISCARD" {
		sc.send("+QUEUED\r\n")
		return
	}

	switch verb {
	case "HELLO":
		if sc.s.resp3 {
			sc.send("%1\r\n$6\r\nserver\r\n$5\r\nredis\r\n")
		} else {
			sc.send("-ERR unknown command 'HELLO'\r\n")
		}
	case "AUTH", "SELECT", "SET", "FLUSHDB", "MULTI", "DISCARD":
		sc.send("+OK\r\n")
	case "PING":
		sc.send("+PONG\r\n")
	case "CLIENT":
		if len(cmd) > 1 && strings.ToUpper(cmd[1]) == "ID" {
			sc.send(":1\r\n")
		} else {
			sc.send("+OK\r\n")
		}
	case "GET":
		sc.send("$-1\r\n")
	case "EXEC":
		sc.send("*0\r\n")
	case "SUBSCRIBE", "PSUBSCRIBE":
		kind := strings.ToLower(verb)
		for _, name := range cmd[1:] {
			sc.subCount++
			sc.sendSubEvent(kind, name, int64(sc.subCount))
		}
	case "UNSUBSCRIBE", "PUNSUBSCRIBE":
		kind := strings.ToLower(verb)
		for _, name := range cmd[1:] {
			sc.subCount--
			sc.sendSubEvent(kind, name, int64(sc.subCount))
		}
	default:
		sc.send("-ERR unknown command '" + cmd[0] + "'\r\n")
	}
}

// sendSubEvent emits a subscription ack in the connection's generation:
// a plain array on RESP2, a push frame on RESP3.
func (sc *serverConn) sendSubEvent(kind, name string, count int64) {
	prefix := "*3\r\n"
	if sc.s.resp3 {
		prefix = ">3\r\n"
	}
	sc.send(prefix +
		"$" + strconv.Itoa(len(kind)) + "\r\n" + kind + "\r\n" +
		"$" + strconv.Itoa(len(name)) + "\r\n" + name + "\r\n" +
		":" + strconv.FormatInt(count, 10) + "\r\n")
}

// sendMessage emits a pub/sub delivery frame.
func (sc *serverConn) sendMessage(channel, payload string) {
	prefix := "*3\r\n"
	if sc.s.resp3 {
		prefix = ">3\r\n"
	}
	sc.send(prefix +
		"$7\r\nmessage\r\n" +
		"$" + strconv.Itoa(len(channel)) + "\r\n" + channel + "\r\n" +
		"$" + strconv.Itoa(len(payload)) + "\r\n" + payload + "\r\n")
}

func (sc *serverConn) send(raw string) {
	sc.wmu.Lock()
	defer sc.wmu.Unlock()
	_, _ = sc.w.WriteString(raw)
	_ = sc.w.Flush()
}

func (sc *serverConn) closeConn() {
	_ = sc.conn.Close()
}

func commandTokens(v protocol.Reply) []string {
	out := make([]string, 0, len(v.Elems))
	for _, e := range v.Elems {
		out = append(out, e.Str)
	}
	return out
}

// connAt waits for the i-th accepted connection.
func (s *fakeServer) connAt(i int) *serverConn {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.conns) > i {
			sc := s.conns[i]
			s.mu.Unlock()
			return sc
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("connection %d never arrived", i)
	return nil
}

// commandCount counts received commands by verb.
func (s *fakeServer) commandCount(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.history {
		if strings.EqualFold(r.cmd[0], verb) {
			n++
		}
	}
	return n
}

// awaitCommand waits until verb has been received count times.
func (s *fakeServer) awaitCommand(verb string, count int) {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.commandCount(verb) >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("command %s not received %d times (history: %v)", verb, count, s.verbs())
}

// verbs returns the received command verbs in order.
func (s *fakeServer) verbs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	for i, r := range s.history {
		out[i] = strings.ToUpper(r.cmd[0])
	}
	return out
}

func (s *fakeServer) options() Options {
	s.t.Helper()
	opts := DefaultOptions()
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		s.t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		s.t.Fatal(err)
	}
	opts.Host = host
	opts.Port = port
	return opts
}
