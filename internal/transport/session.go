package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State represents the connection state of a session
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// EventHandler receives unsolicited event frames (frames without an id).
// Delivery is best-effort: a slow handler causes drops, never blocks the
// receive loop.
type EventHandler func(method string, params json.RawMessage)

// frame is the wire shape shared by requests, responses and events
type frame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

const eventQueueSize = 64

// Session is one live duplex connection to a browser debug endpoint.
// Many logically independent calls share the connection; each is
// correlated by a locally generated id so none blocks the others.
type Session struct {
	Endpoint string
	TargetID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	nextID  int64
	pending map[int64]chan callResult

	events  chan frame
	handler EventHandler
	done    chan struct{}
	logger  *log.Logger
}

// DialOptions configures a Dial
type DialOptions struct {
	TargetID string
	Handler  EventHandler
	Logger   *log.Logger
}

// Dial establishes a websocket connection to a browser debug endpoint.
// It fails with *ConnectError on refusal, lookup failure, or when ctx
// expires before the handshake completes.
func Dial(ctx context.Context, endpoint string, opts DialOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		Endpoint: endpoint,
		TargetID: opts.TargetID,
		state:    StateConnecting,
		pending:  make(map[int64]chan callResult),
		events:   make(chan frame, eventQueueSize),
		handler:  opts.Handler,
		done:     make(chan struct{}),
		logger:   logger,
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		s.state = StateClosed
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	s.conn = conn
	s.state = StateConnected

	go s.readLoop()
	go s.dispatchEvents()

	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCalls returns the number of registered waiters.
func (s *Session) PendingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Call sends {id, method, params} and waits for the matching response.
// It returns the result payload on success, *RemoteError when the browser
// answers with an error payload, *TimeoutError when ctx expires first
// (the waiter is deregistered so a late response is silently dropped),
// and ErrConnectionLost when the session closes underneath the call.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, ErrConnectionLost
	}
	s.nextID++
	id := s.nextID
	ch := make(chan callResult, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	started := time.Now()

	if err := s.writeFrame(frame{ID: id, Method: method, Params: params}); err != nil {
		s.removeWaiter(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		s.removeWaiter(id)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Method: method, Elapsed: time.Since(started)}
		}
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrConnectionLost
	}
}

// CallTimeout is Call with an explicit per-call timeout.
func (s *Session) CallTimeout(method string, params any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Call(ctx, method, params)
}

// Close disconnects the session. It is idempotent: closing an already
// closed session is a no-op. All pending waiters are rejected with
// ErrConnectionLost before the state transitions to closed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	waiters := s.pending
	s.pending = make(map[int64]chan callResult)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- callResult{err: ErrConnectionLost}
	}

	close(s.done)
	return s.conn.Close()
}

func (s *Session) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

func (s *Session) removeWaiter(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// readLoop pumps frames off the wire until the connection dies, then
// tears the session down so pending callers fail fast.
func (s *Session) readLoop() {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.mu.Lock()
			alreadyClosed := s.state == StateClosed
			s.mu.Unlock()
			if !alreadyClosed {
				s.logger.Printf("transport: read failed on %s: %v", s.Endpoint, err)
				s.Close()
			}
			return
		}

		if f.ID == 0 {
			// Event frame: queue for the dispatcher, dropping the oldest
			// entry when the subscriber cannot keep up.
			select {
			case s.events <- f:
			default:
				select {
				case dropped := <-s.events:
					s.logger.Printf("transport: event queue full, dropped %s", dropped.Method)
				default:
				}
				select {
				case s.events <- f:
				default:
				}
			}
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[f.ID]
		if ok {
			delete(s.pending, f.ID)
		}
		s.mu.Unlock()

		if !ok {
			// Late or unknown response: the waiter timed out or never
			// existed. Dropped, never fatal.
			s.logger.Printf("transport: dropping response with unknown id %d", f.ID)
			continue
		}

		if f.Error != nil {
			ch <- callResult{err: f.Error}
		} else {
			ch <- callResult{result: f.Result}
		}
	}
}

func (s *Session) dispatchEvents() {
	for {
		select {
		case f := <-s.events:
			if s.handler != nil {
				params, _ := json.Marshal(f.Params)
				s.handler(f.Method, params)
			}
		case <-s.done:
			return
		}
	}
}
