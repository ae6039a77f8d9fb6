// Package queue implements the persistent push/pull message transport that
// ties Client, Server, and TTP together. A Transport owns one push socket
// per endpoint (bind side); a Receiver is a standalone pull socket
// (connect side) that drains messages into a byte spool.
//
// The bind/connect topology matters: the *upstream* party (the one whose
// data other roles consume) binds, and the *downstream* party connects --
// a deliberate choice the API makes explicit, even though the transport
// itself is gorilla/websocket rather than a ZeroMQ
// socket. A websocket server's Upgrade-and-listen is this package's
// "bind"; a websocket.Dialer is its "connect".
package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shadowmesh/hebench/pkg/bench"
	"github.com/shadowmesh/hebench/pkg/logging"
	"github.com/shadowmesh/hebench/pkg/spool"
)

// Control frame payloads. These are never applied through pkg/framing and
// never persisted to a spool; they exist only on the wire.
const (
	SOF byte = 0xFE
	EOF byte = 0xFF
)

// DefaultLinger bounds how long Close waits for a sender's queued messages
// to flush to a connected peer before giving up, so an orderly process
// exit loses at most about a second of queued data.
const DefaultLinger = time.Second

// outboundHWM is the high-water mark on a sender's outbound channel: once
// full, Send blocks until the peer drains it (or Close's linger expires).
const outboundHWM = 256

// Transport is the injectable, process-wide sender pool: one push socket
// per endpoint string, created lazily on first use. The pool's own lock is
// held only during map lookup/insert; the push itself runs with the lock
// released, so sends to distinct endpoints proceed in parallel and sends
// to the same endpoint serialize at that endpoint's sender.
type Transport struct {
	// Log, when set, receives a WARN/ERROR entry whenever a send is
	// degraded (delivery failure, message dropped at close). Senders
	// created before Log is set do not pick it up.
	Log *logging.Logger

	mu      sync.Mutex
	senders map[string]*sender
	linger  time.Duration
}

// NewTransport constructs an empty sender pool.
func NewTransport() *Transport {
	return &Transport{senders: make(map[string]*sender), linger: DefaultLinger}
}

// Send transmits exactly payload as one queue message to endpoint, binding
// (starting to listen on) the endpoint's push socket on first use.
func (t *Transport) Send(endpoint string, payload []byte) error {
	s, err := t.senderFor(endpoint)
	if err != nil {
		return err
	}
	return s.send(payload)
}

// SendSOF sends a single-byte start-of-stream control frame.
func (t *Transport) SendSOF(endpoint string) error {
	return t.Send(endpoint, []byte{SOF})
}

// SendEOF sends a single-byte end-of-stream control frame.
func (t *Transport) SendEOF(endpoint string) error {
	return t.Send(endpoint, []byte{EOF})
}

func (t *Transport) senderFor(endpoint string) (*sender, error) {
	t.mu.Lock()
	s, ok := t.senders[endpoint]
	if !ok {
		var err error
		s, err = newSender(endpoint, t.linger, t.Log)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.senders[endpoint] = s
	}
	t.mu.Unlock()
	return s, nil
}

// Close flushes and tears down every bound sender, each bounded by the
// pool's linger.
func (t *Transport) Close() error {
	t.mu.Lock()
	senders := make([]*sender, 0, len(t.senders))
	for _, s := range t.senders {
		senders = append(senders, s)
	}
	t.senders = make(map[string]*sender)
	t.mu.Unlock()

	var firstErr error
	for _, s := range senders {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sender owns one bound push socket: an HTTP server upgrading exactly one
// downstream connection at a time, fed by a bounded outbound channel.
type sender struct {
	endpoint string
	outbound chan []byte
	linger   time.Duration
	log      *logging.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	connCond chan struct{} // closed once a connection has been accepted

	closeOnce sync.Once
	closed    chan struct{}
}

func newSender(endpoint string, linger time.Duration, log *logging.Logger) (*sender, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid queue endpoint %q: %v", bench.ErrIO, endpoint, err)
	}

	s := &sender{
		endpoint: endpoint,
		outbound: make(chan []byte, outboundHWM),
		linger:   linger,
		log:      log,
		connCond: make(chan struct{}),
		closed:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(u.Path, s.handleUpgrade)
	s.httpServer = &http.Server{Addr: u.Host, Handler: mux}

	listener, err := listenTCP(u.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: binding queue endpoint %q: %v", bench.ErrIO, endpoint, err)
	}

	go func() {
		_ = s.httpServer.Serve(listener)
	}()
	go s.drain()

	return s, nil
}

func (s *sender) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	select {
	case <-s.connCond:
		// already signaled by an earlier connection
	default:
		close(s.connCond)
	}
	s.mu.Unlock()
}

func (s *sender) drain() {
	for {
		select {
		case msg := <-s.outbound:
			s.deliver(msg)
		case <-s.closed:
			return
		}
	}
}

func (s *sender) deliver(msg []byte) {
	select {
	case <-s.connCond:
	case <-s.closed:
		if s.log != nil {
			s.log.Warnf("queue sender for %q closed before a peer connected, dropping %d-byte message", s.endpoint, len(msg))
		}
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil && s.log != nil {
		s.log.Errorf("queue send on %q failed: %v", s.endpoint, err)
	}
}

func (s *sender) send(payload []byte) error {
	select {
	case s.outbound <- payload:
		return nil
	case <-s.closed:
		return fmt.Errorf("%w: sender for %q is closed", bench.ErrIO, s.endpoint)
	}
}

func (s *sender) close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.After(s.linger)
		for {
			if len(s.outbound) == 0 {
				break
			}
			select {
			case <-deadline:
				goto shutdown
			case <-time.After(10 * time.Millisecond):
			}
		}
	shutdown:
		close(s.closed)

		ctx, cancel := context.WithTimeout(context.Background(), s.linger)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// Receiver is a standalone pull socket that connects to a bound endpoint
// and drains messages into a byte spool until either count messages have
// been persisted or (when expectEOF is set) an EOF control frame arrives.
type Receiver struct {
	Endpoint     string
	ExpectEOF    bool
	DialRetry    time.Duration
	DialDeadline time.Duration

	// Log, when set, receives a WARN entry once if the first dial attempt
	// fails (the upstream bind usually just hasn't started yet).
	Log *logging.Logger
}

// NewReceiver returns a Receiver for endpoint with conservative dial
// retry defaults (the upstream bind may not have started yet).
func NewReceiver(endpoint string, expectEOF bool) *Receiver {
	return &Receiver{
		Endpoint:     endpoint,
		ExpectEOF:    expectEOF,
		DialRetry:    50 * time.Millisecond,
		DialDeadline: 10 * time.Second,
	}
}

// ReceiveAndStore drains up to count data messages from the endpoint,
// persisting each into w via pkg/framing, and returns the number
// persisted. SOF frames are silently skipped; an EOF frame (when
// ExpectEOF is set) stops reception without being persisted.
func (r *Receiver) ReceiveAndStore(ctx context.Context, w *spool.Writer, count int) (int, error) {
	conn, err := r.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	persisted := 0
	for persisted < count {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) {
				break
			}
			return persisted, fmt.Errorf("%w: reading queue message: %v", bench.ErrIO, err)
		}

		if len(msg) == 1 && msg[0] == SOF {
			continue
		}
		if r.ExpectEOF && len(msg) == 1 && msg[0] == EOF {
			break
		}

		if err := w.Append(msg); err != nil {
			return persisted, err
		}
		persisted++
	}
	return persisted, nil
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func (r *Receiver) dial(ctx context.Context) (*websocket.Conn, error) {
	deadline := time.Now().Add(r.DialDeadline)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.Endpoint, nil)
		if err == nil {
			return conn, nil
		}
		if lastErr == nil && r.Log != nil {
			r.Log.Warnf("queue dial %q failed, retrying until the peer binds: %v", r.Endpoint, err)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: dialing %q: %v", bench.ErrIO, r.Endpoint, ctx.Err())
		case <-time.After(r.DialRetry):
		}
	}
	return nil, fmt.Errorf("%w: dialing %q: %v", bench.ErrIO, r.Endpoint, lastErr)
}
