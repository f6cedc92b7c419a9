package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmaslov/tablefeed/internal/endpoint"
	"github.com/dmaslov/tablefeed/internal/feed"
)

func testManagerConfig(t *testing.T, primary, fallback string) ManagerConfig {
	t.Helper()
	ep, err := endpoint.New(primary, fallback)
	if err != nil {
		t.Fatalf("endpoint.New failed: %v", err)
	}
	cfg := DefaultManagerConfig()
	cfg.Endpoint = ep
	cfg.RetryInterval = 100 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	return cfg
}

// deadAddr returns an address with nothing listening on it.
func deadAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return "ws://" + addr
}

// stateRecorder collects state transitions from OnStateChange.
type stateRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *stateRecorder) record(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *stateRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.State
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", desc)
}

func TestManager_StateSequence(t *testing.T) {
	var mu sync.Mutex
	connCount := 0

	server := mockWSServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		first := connCount == 1
		mu.Unlock()

		if first {
			// Abnormal close shortly after open.
			time.Sleep(100 * time.Millisecond)
			conn.Close()
			return
		}
		time.Sleep(5 * time.Second)
	})
	defer server.Close()

	mgr := NewManager(testManagerConfig(t, wsURL(server), ""), nil)

	if mgr.Status().State != StateDisconnected {
		t.Fatalf("initial state = %s, want %s", mgr.Status().State, StateDisconnected)
	}

	rec := &stateRecorder{}
	cancel := mgr.OnStateChange(rec.record)
	defer cancel()

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	// Drain frames so the manager never stalls on a full buffer.
	go func() {
		for range mgr.Frames() {
		}
	}()

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connCount >= 2
	}, "reconnection")

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "second connect")

	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnecting, StateConnected}
	got := rec.states()
	if len(got) < len(want) {
		t.Fatalf("observed %d transitions %v, want at least %v", len(got), got, want)
	}
	for i, st := range want {
		if got[i] != st {
			t.Fatalf("transition %d = %s, want %s (full: %v)", i, got[i], st, got)
		}
	}

	if mgr.Status().Attempts != 0 {
		t.Errorf("Attempts after successful open = %d, want 0", mgr.Status().Attempts)
	}
}

func TestManager_ImmediateFallback(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(5 * time.Second)
	})
	defer server.Close()

	cfg := testManagerConfig(t, deadAddr(t), wsURL(server))
	// A long retry interval proves the fallback attempt is immediate.
	cfg.RetryInterval = time.Hour

	mgr := NewManager(cfg, nil)

	rec := &stateRecorder{}
	cancel := mgr.OnStateChange(rec.record)
	defer cancel()

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "fallback connect")

	// The fallback leg must have reported UsingFallback before the open
	// cleared it.
	rec.mu.Lock()
	sawFallback := false
	for _, s := range rec.statuses {
		if s.UsingFallback {
			sawFallback = true
		}
	}
	rec.mu.Unlock()
	if !sawFallback {
		t.Error("no transition reported UsingFallback=true")
	}

	st := mgr.Status()
	if st.UsingFallback {
		t.Error("UsingFallback should be cleared after a successful open")
	}
	if st.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (cycle succeeded via fallback)", st.Attempts)
	}
}

func TestManager_BackoffWhenBothDown(t *testing.T) {
	cfg := testManagerConfig(t, deadAddr(t), deadAddr(t))
	cfg.RetryInterval = 150 * time.Millisecond

	mgr := NewManager(cfg, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	// First cycle (primary + fallback, both refused) concludes quickly.
	waitFor(t, 2*time.Second, func() bool {
		return mgr.Status().Attempts == 1
	}, "first failed cycle")

	// Inside the backoff window the counter must not advance.
	time.Sleep(50 * time.Millisecond)
	if got := mgr.Status().Attempts; got != 1 {
		t.Errorf("Attempts during backoff = %d, want 1", got)
	}

	// After the interval elapses a second cycle runs and fails.
	waitFor(t, 2*time.Second, func() bool {
		return mgr.Status().Attempts >= 2
	}, "second failed cycle")
}

func TestManager_StopCancelsRetryTimer(t *testing.T) {
	cfg := testManagerConfig(t, deadAddr(t), "")
	cfg.RetryInterval = time.Hour

	mgr := NewManager(cfg, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return mgr.Status().Attempts == 1
	}, "first failed cycle")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := mgr.Status().State; got != StateDisconnected {
		t.Errorf("state after Stop = %s, want %s", got, StateDisconnected)
	}

	// No further connect attempt may fire.
	time.Sleep(200 * time.Millisecond)
	if got := mgr.Status().Attempts; got != 1 {
		t.Errorf("Attempts after Stop = %d, want 1 (frozen)", got)
	}
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	cfg := testManagerConfig(t, deadAddr(t), "")
	mgr := NewManager(cfg, nil)

	// Never started: silent no-op, no panic, no error.
	if err := mgr.Send("set_autopilot", map[string]any{"enabled": true}); err != nil {
		t.Errorf("Send while disconnected returned error: %v", err)
	}

	// Unserializable payload is the only error path.
	if err := mgr.Send("bad", make(chan int)); err == nil {
		t.Error("expected error for unserializable payload")
	}
}

func TestManager_SendReachesServer(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	mgr := NewManager(testManagerConfig(t, wsURL(server), ""), nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "connect")

	if err := mgr.Send("set_autopilot", map[string]any{"enabled": false}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, "server receive")

	mu.Lock()
	defer mu.Unlock()
	msg, err := feed.Decode(received, time.Now())
	if err != nil {
		t.Fatalf("server received malformed frame: %v", err)
	}
	if msg.Type != "set_autopilot" {
		t.Errorf("server received type %q, want %q", msg.Type, "set_autopilot")
	}
}

func TestManager_SystemFramesInStream(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// One domain frame, then hold.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"advice","data":{"action":"fold"}}`))
		time.Sleep(5 * time.Second)
	})
	defer server.Close()

	mgr := NewManager(testManagerConfig(t, wsURL(server), ""), nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	var types []string
	timeout := time.After(3 * time.Second)
	for len(types) < 2 {
		select {
		case fr := <-mgr.Frames():
			msg, err := feed.Decode(fr.Data, fr.ReceivedAt)
			if err != nil {
				t.Fatalf("stream carried malformed frame: %v", err)
			}
			types = append(types, msg.Type)
		case <-timeout:
			t.Fatalf("timeout, got types %v", types)
		}
	}

	// Transport health leads the stream: "connected" diagnostic first,
	// then the domain frame.
	if types[0] != feed.TypeSystem {
		t.Errorf("first frame type = %q, want %q", types[0], feed.TypeSystem)
	}
	if types[1] != "advice" {
		t.Errorf("second frame type = %q, want %q", types[1], "advice")
	}
}

func TestManager_AttemptsResetAfterRecovery(t *testing.T) {
	// Reserve an address, keep it dead for two cycles, then bring a server
	// up on it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	cfg := testManagerConfig(t, "ws://"+addr, "")
	cfg.RetryInterval = 100 * time.Millisecond

	mgr := NewManager(cfg, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	go func() {
		for range mgr.Frames() {
		}
	}()

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().Attempts >= 2
	}, "two failed cycles")

	l2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("could not rebind %s: %v", addr, err)
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}))
	server.Listener.Close()
	server.Listener = l2
	server.Start()
	defer server.Close()

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "recovery")

	if got := mgr.Status().Attempts; got != 0 {
		t.Errorf("Attempts after recovery = %d, want 0", got)
	}
}

func TestManager_RestartAfterStop(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(5 * time.Second)
	})
	defer server.Close()

	mgr := NewManager(testManagerConfig(t, wsURL(server), ""), nil)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "first connect")

	if err := mgr.Start(context.Background()); err != ErrRunning {
		t.Errorf("second Start = %v, want ErrRunning", err)
	}

	if err := mgr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	waitFor(t, 3*time.Second, func() bool {
		return mgr.Status().State == StateConnected
	}, "reconnect after restart")
}
