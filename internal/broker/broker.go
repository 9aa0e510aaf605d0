// Package broker implements the IPC broker of spec section 4.B: a
// single-client stream-socket server that multiplexes concurrent
// commands by correlation ID and keeps the link alive with heartbeats.
//
// The pending-table bookkeeping (resolver, rejecter, and timer removed
// together) is grounded in the teacher's PendingQuery/WaitForResult
// pair (cmd/dev-console/pilot.go, annotation_store.go), generalized
// from HTTP long-poll to a broker-owned socket.
package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/frame"
	"go.uber.org/zap"
)

// Errors returned by SendCommand and WaitForConnection.
var (
	ErrNotConnected  = errors.New("broker: no extension attached")
	ErrTimeout       = errors.New("broker: command timed out")
	ErrDisconnected  = errors.New("broker: extension disconnected")
	ErrAlreadyExists = errors.New("broker: correlation id already pending")
)

// Event is emitted on attach/detach of the single client.
type Event int

const (
	EventClientConnected Event = iota
	EventClientDisconnected
)

type pendingEntry struct {
	resultCh chan command.Response
	timer    *time.Timer
}

// Broker owns the stream-socket endpoint and the in-flight command
// table. The zero value is not usable; construct with New.
type Broker struct {
	socketPath string
	log        *zap.SugaredLogger

	heartbeatPeriod time.Duration
	pongGrace       time.Duration

	listener net.Listener

	mu               sync.Mutex
	conn             net.Conn
	decoder          *frame.Decoder
	pending          map[string]*pendingEntry
	hasEverConnected bool
	pongOutstanding  bool
	heartbeatStop    chan struct{}
	waiters          []chan struct{}

	events chan Event
	errs   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Options configures a Broker beyond the spec's hard-coded defaults,
// primarily so tests can use short heartbeat periods.
type Options struct {
	HeartbeatPeriod time.Duration
	PongGrace       time.Duration
}

// New creates a Broker bound to socketPath. It does not start listening
// until Start is called.
func New(socketPath string, log *zap.SugaredLogger, opts Options) *Broker {
	if opts.HeartbeatPeriod == 0 {
		opts.HeartbeatPeriod = 15 * time.Second
	}
	if opts.PongGrace == 0 {
		opts.PongGrace = 5 * time.Second
	}
	return &Broker{
		socketPath:      socketPath,
		log:             log,
		heartbeatPeriod: opts.HeartbeatPeriod,
		pongGrace:       opts.PongGrace,
		decoder:         frame.NewDecoder(frame.IPC),
		pending:         make(map[string]*pendingEntry),
		events:          make(chan Event, 8),
		errs:            make(chan error, 8),
		closed:          make(chan struct{}),
	}
}

// Events returns the channel the broker emits connect/disconnect
// events on.
func (b *Broker) Events() <-chan Event { return b.events }

// Errors returns the channel runtime (non-fatal) socket errors are
// surfaced on, per spec section 4.B's failure model.
func (b *Broker) Errors() <-chan error { return b.errs }

// Start unlinks any stale socket file, binds, and begins accepting
// connections. Socket errors here are fatal to start, per spec.
func (b *Broker) Start() error {
	if err := os.RemoveAll(b.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("broker: removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", b.socketPath)
	if err != nil {
		return fmt.Errorf("broker: listen: %w", err)
	}
	b.listener = ln
	go b.acceptLoop()
	return nil
}

// Close stops accepting connections, closes any attached client, and
// removes the socket file. Pending commands are rejected with
// ErrDisconnected.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.listener != nil {
			err = b.listener.Close()
		}
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		_ = os.RemoveAll(b.socketPath)
	})
	return err
}

func (b *Broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.closed:
				return
			default:
			}
			select {
			case b.errs <- err:
			default:
			}
			return
		}

		b.mu.Lock()
		alreadyConnected := b.conn != nil
		b.mu.Unlock()
		if alreadyConnected {
			_ = conn.Close()
			continue
		}
		b.attach(conn)
	}
}

func (b *Broker) attach(conn net.Conn) {
	b.mu.Lock()
	b.conn = conn
	b.hasEverConnected = true
	b.decoder.Reset()
	b.pongOutstanding = false
	b.heartbeatStop = make(chan struct{})
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	select {
	case b.events <- EventClientConnected:
	default:
	}

	go b.heartbeatLoop(conn, b.heartbeatStop)
	go b.readLoop(conn)
}

// HasEverConnected reports whether any client has attached since the
// broker started, distinguishing "never connected" from "was connected
// then lost" for the gateway's error messages.
func (b *Broker) HasEverConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasEverConnected
}

// IsConnected reports whether a client is currently attached.
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// WaitForConnection blocks until a client is attached or timeout
// elapses. It returns immediately if already connected.
func (b *Broker) WaitForConnection(timeout time.Duration) bool {
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)
	b.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (b *Broker) readLoop(conn net.Conn) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			b.mu.Lock()
			msgs, decErr := b.decoder.Push(buf[:n])
			b.mu.Unlock()
			for _, m := range msgs {
				b.handleMessage(m)
			}
			if decErr != nil {
				b.log.Warnw("framing violation, closing connection", "error", decErr)
				b.detach(conn)
				return
			}
		}
		if err != nil {
			b.detach(conn)
			return
		}
	}
}

func (b *Broker) handleMessage(raw []byte) {
	env, err := command.Unmarshal(raw)
	if err != nil {
		b.log.Warnw("malformed envelope", "error", err)
		return
	}
	switch env.Kind {
	case command.KindResponse:
		if env.Response != nil {
			b.resolve(*env.Response)
		}
	case command.KindPing:
		b.writeEnvelope(command.Envelope{Kind: command.KindPong})
	case command.KindPong:
		b.mu.Lock()
		b.pongOutstanding = false
		b.mu.Unlock()
	default:
		b.log.Warnw("unexpected envelope kind", "kind", env.Kind)
	}
}

func (b *Broker) resolve(resp command.Response) {
	b.mu.Lock()
	entry, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
		entry.timer.Stop()
	}
	b.mu.Unlock()
	if !ok {
		// Late reply for a command whose pending entry is already
		// gone (timeout or disconnect beat it here): drop it.
		return
	}
	entry.resultCh <- resp
}

func (b *Broker) detach(conn net.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		// Already detached (e.g. heartbeat and readLoop raced).
		b.mu.Unlock()
		return
	}
	b.conn = nil
	stop := b.heartbeatStop
	b.heartbeatStop = nil
	pending := b.pending
	b.pending = make(map[string]*pendingEntry)
	b.decoder.Reset()
	b.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	_ = conn.Close()

	for _, entry := range pending {
		entry.timer.Stop()
		entry.resultCh <- command.Response{Success: false, Error: ErrDisconnected.Error()}
	}

	select {
	case b.events <- EventClientDisconnected:
	default:
	}
}

func (b *Broker) heartbeatLoop(conn net.Conn, stop chan struct{}) {
	ticker := time.NewTicker(b.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.pongOutstanding {
				b.mu.Unlock()
				b.log.Warnw("heartbeat lost, forcing disconnect")
				b.detach(conn)
				return
			}
			b.pongOutstanding = true
			b.mu.Unlock()

			b.writeEnvelope(command.Envelope{Kind: command.KindPing})

			select {
			case <-stop:
				return
			case <-time.After(b.pongGrace):
				b.mu.Lock()
				lost := b.pongOutstanding
				b.mu.Unlock()
				if lost {
					b.log.Warnw("no pong within grace period, forcing disconnect")
					b.detach(conn)
					return
				}
			}
		}
	}
}

func (b *Broker) writeEnvelope(env command.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	framed, err := frame.IPC.Encode(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	_, err = conn.Write(framed)
	return err
}

// SendCommand submits cmd to the attached client and blocks until a
// matching response, a timeout, or a disconnect resolves it. The
// caller is responsible for assigning a unique, currently-unused ID.
func (b *Broker) SendCommand(cmd command.Command, timeout time.Duration) (command.Response, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return command.Response{}, ErrNotConnected
	}
	if _, exists := b.pending[cmd.ID]; exists {
		b.mu.Unlock()
		return command.Response{}, ErrAlreadyExists
	}
	entry := &pendingEntry{resultCh: make(chan command.Response, 1)}
	entry.timer = time.AfterFunc(timeout, func() { b.timeoutCommand(cmd.ID) })
	b.pending[cmd.ID] = entry
	b.mu.Unlock()

	if err := b.writeEnvelope(command.Envelope{Kind: command.KindCommand, Command: &cmd}); err != nil {
		b.mu.Lock()
		if e, ok := b.pending[cmd.ID]; ok && e == entry {
			delete(b.pending, cmd.ID)
			entry.timer.Stop()
		}
		b.mu.Unlock()
		return command.Response{}, err
	}

	resp := <-entry.resultCh
	if !resp.Success && resp.Error == ErrDisconnected.Error() {
		return resp, ErrDisconnected
	}
	if !resp.Success && resp.Error == ErrTimeout.Error() {
		return resp, ErrTimeout
	}
	return resp, nil
}

func (b *Broker) timeoutCommand(id string) {
	b.mu.Lock()
	entry, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	entry.resultCh <- command.Response{ID: id, Success: false, Error: ErrTimeout.Error()}
}
