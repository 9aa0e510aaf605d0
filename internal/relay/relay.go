// Package relay implements the native-messaging relay of spec section
// 4.C: a process the browser spawns when its native port opens, which
// bridges the native-messaging dialect on stdin/stdout to the broker's
// IPC dialect on a unix socket. Outbound stdout writes are strictly
// serialized through one writer so two concurrent commands can never
// interleave their frame bytes — grounded in the teacher's
// bridgeStdioToHTTP, which likewise treats stdout as a single-writer
// resource under backpressure.
package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/frame"
	"go.uber.org/zap"
)

// Relay bridges one native-messaging peer (stdin/stdout) to the
// broker's unix socket.
type Relay struct {
	log  *zap.SugaredLogger
	conn net.Conn

	nativeIn  io.Reader
	nativeOut io.Writer
	writeMu   sync.Mutex // serializes stdout frame writes

	ipcDecoder    *frame.Decoder
	nativeDecoder *frame.Decoder

	alive int32 // atomic bool, 1 while the IPC conn looks healthy

	stop chan struct{}
	done chan struct{}
}

// Dial connects to the broker at socketPath and returns a Relay that
// bridges it to nativeIn/nativeOut (normally os.Stdin/os.Stdout).
func Dial(socketPath string, nativeIn io.Reader, nativeOut io.Writer, log *zap.SugaredLogger) (*Relay, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("relay: dial broker: %w", err)
	}
	r := &Relay{
		log:           log,
		conn:          conn,
		nativeIn:      nativeIn,
		nativeOut:     nativeOut,
		ipcDecoder:    frame.NewDecoder(frame.IPC),
		nativeDecoder: frame.NewDecoder(frame.Native),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	atomic.StoreInt32(&r.alive, 1)
	return r, nil
}

// Run blocks until the native stdin reaches EOF, the IPC connection is
// judged dead by the liveness poller, or Close is called. It always
// returns nil; failures are logged, matching the relay's "exit cleanly
// on loss, don't crash" failure taxonomy.
func (r *Relay) Run() error {
	go r.ipcReadLoop()
	go r.livenessPoll()
	r.nativeReadLoop() // blocks on stdin until EOF or Close
	close(r.done)
	_ = r.conn.Close()
	return nil
}

// Close stops the relay's loops and closes the IPC connection. If
// nativeIn is closable (os.Stdin is), it's closed too: nativeReadLoop's
// Read blocks indefinitely on stdin otherwise, and neither r.stop nor
// the IPC connection closing can interrupt it, which would leave the
// process hung past the write-failure grace delay in writeNative.
func (r *Relay) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	_ = r.conn.Close()
	if closer, ok := r.nativeIn.(io.Closer); ok {
		_ = closer.Close()
	}
}

// nativeReadLoop reads native-dialect frames from stdin and forwards
// each payload to the broker as a response envelope, per spec 4.C
// item 2. A framing error on stdin is logged and the malformed message
// is skipped; it does not crash the relay.
func (r *Relay) nativeReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := r.nativeIn.Read(buf)
		if n > 0 {
			msgs, decErr := r.nativeDecoder.Push(buf[:n])
			for _, m := range msgs {
				r.forwardToBroker(m)
			}
			if decErr != nil {
				r.log.Warnw("native stdin framing error, skipping", "error", decErr)
				r.nativeDecoder.Reset()
			}
		}
		if err != nil {
			if err != io.EOF {
				r.log.Warnw("native stdin read error", "error", err)
			}
			return
		}
		select {
		case <-r.stop:
			return
		default:
		}
	}
}

func (r *Relay) forwardToBroker(payload []byte) {
	var resp command.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		r.log.Warnw("malformed response payload on stdin, skipping", "error", err)
		return
	}
	env := command.Envelope{Kind: command.KindResponse, Response: &resp}
	encoded, err := json.Marshal(env)
	if err != nil {
		r.log.Errorw("failed to marshal envelope for broker", "error", err)
		return
	}
	framed, err := frame.IPC.Encode(encoded)
	if err != nil {
		r.log.Warnw("response too large for ipc dialect", "error", err)
		return
	}
	if _, err := r.conn.Write(framed); err != nil {
		r.log.Warnw("ipc write failed", "error", err)
	}
}

// ipcReadLoop reads IPC-dialect envelopes from the broker: commands are
// written out natively (serialized, see writeNative), pings
// are answered with pongs, and a framing violation closes the IPC
// connection — the relay then dies, relying on the browser to respawn
// it on the next native port open.
func (r *Relay) ipcReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			msgs, decErr := r.ipcDecoder.Push(buf[:n])
			for _, m := range msgs {
				r.handleBrokerEnvelope(m)
			}
			if decErr != nil {
				r.log.Warnw("ipc framing error, closing connection", "error", decErr)
				atomic.StoreInt32(&r.alive, 0)
				_ = r.conn.Close()
				return
			}
		}
		if err != nil {
			atomic.StoreInt32(&r.alive, 0)
			return
		}
	}
}

func (r *Relay) handleBrokerEnvelope(raw []byte) {
	env, err := command.Unmarshal(raw)
	if err != nil {
		r.log.Warnw("malformed envelope from broker", "error", err)
		return
	}
	switch env.Kind {
	case command.KindCommand:
		if env.Command != nil {
			r.writeNative(*env.Command)
		}
	case command.KindPing:
		r.writeIPCEnvelope(command.Envelope{Kind: command.KindPong})
	default:
		r.log.Warnw("unexpected envelope kind from broker", "kind", env.Kind)
	}
}

func (r *Relay) writeIPCEnvelope(env command.Envelope) {
	encoded, err := json.Marshal(env)
	if err != nil {
		return
	}
	framed, err := frame.IPC.Encode(encoded)
	if err != nil {
		return
	}
	if _, err := r.conn.Write(framed); err != nil {
		r.log.Warnw("ipc write failed", "error", err)
	}
}

// writeNative serializes cmd and writes a native-dialect frame to
// stdout. Writes are serialized through writeMu: under backpressure,
// two concurrent incoming commands must not interleave their bytes. A
// write error here is fatal to the relay (spec 4.C failure taxonomy).
func (r *Relay) writeNative(cmd command.Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		r.log.Errorw("failed to marshal command for native dialect", "error", err)
		return
	}
	framed, err := frame.Native.Encode(payload)
	if err != nil {
		r.log.Warnw("command too large for native dialect", "error", err)
		return
	}

	r.writeMu.Lock()
	_, err = r.nativeOut.Write(framed)
	r.writeMu.Unlock()
	if err != nil {
		r.log.Errorw("fatal: native stdout write failed", "error", err)
		// Grace delay for stderr flush before the process exits,
		// per spec 4.C's write-failure taxonomy.
		time.Sleep(50 * time.Millisecond)
		r.Close()
	}
}

// livenessPoll checks the IPC connection's liveness at a 1s cadence;
// on loss it closes the relay so the process can exit cleanly.
func (r *Relay) livenessPoll() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&r.alive) == 0 {
				r.Close()
				return
			}
		}
	}
}
