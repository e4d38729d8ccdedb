package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeBrowser is a websocket endpoint that answers frames according to a
// per-method script, standing in for a real debug endpoint.
type fakeBrowser struct {
	server *httptest.Server

	mu     sync.Mutex
	conns  []*websocket.Conn
	script func(conn *websocket.Conn, req map[string]any)
}

func newFakeBrowser(t *testing.T, script func(conn *websocket.Conn, req map[string]any)) *fakeBrowser {
	t.Helper()

	fb := &fakeBrowser{script: script}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conns = append(fb.conns, conn)
		fb.mu.Unlock()

		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if fb.script != nil {
				fb.script(conn, req)
			}
		}
	}))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBrowser) url() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http")
}

func (fb *fakeBrowser) closeConns() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.conns {
		c.Close()
	}
}

func echoScript(conn *websocket.Conn, req map[string]any) {
	conn.WriteJSON(map[string]any{
		"id":     req["id"],
		"result": map[string]any{"method": req["method"]},
	})
}

func TestDialRefused(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/devtools", DialOptions{})
	require.Error(t, err)

	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "ws://127.0.0.1:1/devtools", connErr.Endpoint)
}

func TestCallSuccess(t *testing.T) {
	fb := newFakeBrowser(t, echoScript)

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, StateConnected, s.State())

	result, err := s.CallTimeout("Page.navigate", map[string]string{"url": "https://example.com"}, 2*time.Second)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, "Page.navigate", payload["method"])
}

func TestCallRemoteError(t *testing.T) {
	fb := newFakeBrowser(t, func(conn *websocket.Conn, req map[string]any) {
		conn.WriteJSON(map[string]any{
			"id":    req["id"],
			"error": map[string]any{"code": -32601, "message": "method not found"},
		})
	})

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CallTimeout("Bogus.method", nil, 2*time.Second)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, -32601, remoteErr.Code)
	assert.Equal(t, "method not found", remoteErr.Message)
}

func TestCallTimeoutDeregistersWaiter(t *testing.T) {
	// Peer never responds: the call must fail with TimeoutError and the
	// pending table must be empty afterward.
	fb := newFakeBrowser(t, func(conn *websocket.Conn, req map[string]any) {})

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	_, err = s.CallTimeout("Page.navigate", map[string]string{"url": "https://example.com"}, 150*time.Millisecond)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "Page.navigate", timeoutErr.Method)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Equal(t, 0, s.PendingCalls())
}

func TestCallOnClosedSession(t *testing.T) {
	fb := newFakeBrowser(t, echoScript)

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Call(context.Background(), "Page.navigate", nil)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestConnectionLostRejectsPendingCalls(t *testing.T) {
	fb := newFakeBrowser(t, func(conn *websocket.Conn, req map[string]any) {})

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, callErr := s.CallTimeout("Runtime.evaluate", nil, 5*time.Second)
		errCh <- callErr
	}()

	// Let the call register its waiter before killing the peer.
	deadline := time.Now().Add(time.Second)
	for s.PendingCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, s.PendingCalls())

	fb.closeConns()

	select {
	case callErr := <-errCh:
		assert.ErrorIs(t, callErr, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not rejected after connection loss")
	}

	assert.Equal(t, StateClosed, s.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	fb := newFakeBrowser(t, echoScript)

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestUnknownResponseIDDropped(t *testing.T) {
	fb := newFakeBrowser(t, func(conn *websocket.Conn, req map[string]any) {
		// Answer with a bogus id first, then the real one.
		conn.WriteJSON(map[string]any{"id": 9999, "result": map[string]any{}})
		echoScript(conn, req)
	})

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CallTimeout("Page.enable", nil, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, s.State())
}

func TestEventDispatch(t *testing.T) {
	events := make(chan string, 8)

	fb := newFakeBrowser(t, func(conn *websocket.Conn, req map[string]any) {
		// Emit an unsolicited event before answering the call.
		conn.WriteJSON(map[string]any{
			"method": "Page.loadEventFired",
			"params": map[string]any{"timestamp": 1.0},
		})
		echoScript(conn, req)
	})

	s, err := Dial(context.Background(), fb.url(), DialOptions{
		Handler: func(method string, params json.RawMessage) {
			events <- method
		},
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CallTimeout("Page.enable", nil, 2*time.Second)
	require.NoError(t, err)

	select {
	case method := <-events:
		assert.Equal(t, "Page.loadEventFired", method)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
}

func TestConcurrentCallsShareConnection(t *testing.T) {
	fb := newFakeBrowser(t, echoScript)

	s, err := Dial(context.Background(), fb.url(), DialOptions{})
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, callErr := s.CallTimeout("Runtime.evaluate", map[string]string{"expression": "1+1"}, 2*time.Second)
			errs <- callErr
		}()
	}
	wg.Wait()
	close(errs)

	for callErr := range errs {
		assert.NoError(t, callErr)
	}
	assert.Equal(t, 0, s.PendingCalls())
}
