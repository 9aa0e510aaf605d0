package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/frame"
	"github.com/Lemon9247/agentfox/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker is a minimal stand-in for internal/broker that accepts
// exactly one connection and lets the test read/write IPC envelopes
// directly against it.
type fakeBroker struct {
	ln   net.Listener
	conn net.Conn
	dec  *frame.Decoder
}

func startFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("unix", filepath.Join(t.TempDir(), "fake-broker.sock"))
	require.NoError(t, err)
	fb := &fakeBroker{ln: ln, dec: frame.NewDecoder(frame.IPC)}
	t.Cleanup(func() { _ = ln.Close() })
	return fb
}

// acceptAsync accepts the relay's single connection in the background
// and returns a channel closed once fb.conn is ready.
func (fb *fakeBroker) acceptAsync(t *testing.T) <-chan struct{} {
	t.Helper()
	ready := make(chan struct{})
	go func() {
		conn, err := fb.ln.Accept()
		require.NoError(t, err)
		fb.conn = conn
		close(ready)
	}()
	return ready
}

func (fb *fakeBroker) readEnvelope(t *testing.T) command.Envelope {
	t.Helper()
	buf := make([]byte, 4096)
	for {
		n, err := fb.conn.Read(buf)
		require.NoError(t, err)
		msgs, decErr := fb.dec.Push(buf[:n])
		require.NoError(t, decErr)
		if len(msgs) > 0 {
			env, uerr := command.Unmarshal(msgs[0])
			require.NoError(t, uerr)
			return env
		}
	}
}

func (fb *fakeBroker) writeEnvelope(t *testing.T, env command.Envelope) {
	t.Helper()
	payload, err := env.Marshal()
	require.NoError(t, err)
	framed, err := frame.IPC.Encode(payload)
	require.NoError(t, err)
	_, err = fb.conn.Write(framed)
	require.NoError(t, err)
}

func TestRelayForwardsBrokerCommandToNativeStdout(t *testing.T) {
	fb := startFakeBroker(t)
	nativeIn, _ := io.Pipe()
	var nativeOut bytes.Buffer

	ready := fb.acceptAsync(t)
	r, err := Dial(fb.ln.Addr().String(), nativeIn, &nativeOut, logging.Nop())
	require.NoError(t, err)
	defer r.Close()
	<-ready

	go r.Run()
	time.Sleep(20 * time.Millisecond)

	cmd := command.Command{ID: "c1", Action: command.Navigate, Params: json.RawMessage(`{"url":"https://example.com"}`)}
	fb.writeEnvelope(t, command.Envelope{Kind: command.KindCommand, Command: &cmd})

	require.Eventually(t, func() bool { return nativeOut.Len() > 0 }, time.Second, 10*time.Millisecond)

	dec := frame.NewDecoder(frame.Native)
	msgs, err := dec.Push(nativeOut.Bytes())
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got command.Command
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, cmd.ID, got.ID)
	assert.Equal(t, cmd.Action, got.Action)
}

func TestRelayAnswersBrokerPingWithPong(t *testing.T) {
	fb := startFakeBroker(t)
	nativeIn, _ := io.Pipe()
	var nativeOut bytes.Buffer

	ready := fb.acceptAsync(t)
	r, err := Dial(fb.ln.Addr().String(), nativeIn, &nativeOut, logging.Nop())
	require.NoError(t, err)
	defer r.Close()
	<-ready

	go r.Run()
	time.Sleep(20 * time.Millisecond)

	fb.writeEnvelope(t, command.Envelope{Kind: command.KindPing})
	env := fb.readEnvelope(t)
	assert.Equal(t, command.KindPong, env.Kind)
}

func TestRelayForwardsNativeResponseToBroker(t *testing.T) {
	fb := startFakeBroker(t)
	nativeIn, nativeInWriter := io.Pipe()
	var nativeOut bytes.Buffer

	ready := fb.acceptAsync(t)
	r, err := Dial(fb.ln.Addr().String(), nativeIn, &nativeOut, logging.Nop())
	require.NoError(t, err)
	defer r.Close()
	<-ready

	go r.Run()
	time.Sleep(20 * time.Millisecond)

	resp := command.Response{ID: "c1", Success: true, Result: json.RawMessage(`{"title":"hi"}`)}
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	framed, err := frame.Native.Encode(payload)
	require.NoError(t, err)

	go func() { _, _ = nativeInWriter.Write(framed) }()

	env := fb.readEnvelope(t)
	require.Equal(t, command.KindResponse, env.Kind)
	require.NotNil(t, env.Response)
	assert.Equal(t, "c1", env.Response.ID)
	assert.JSONEq(t, `{"title":"hi"}`, string(env.Response.Result))
}
