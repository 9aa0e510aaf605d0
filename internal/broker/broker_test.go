package broker

import (
	"encoding/json"
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

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "broker.sock")
}

// fakeClient drives the broker's socket the way the browser dispatcher
// would: read IPC-framed envelopes, decode them, write replies back.
type fakeClient struct {
	conn net.Conn
	dec  *frame.Decoder
}

func dialFake(t *testing.T, socketPath string) *fakeClient {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	return &fakeClient{conn: conn, dec: frame.NewDecoder(frame.IPC)}
}

func (f *fakeClient) readEnvelope(t *testing.T) command.Envelope {
	t.Helper()
	buf := make([]byte, 4096)
	for {
		n, err := f.conn.Read(buf)
		require.NoError(t, err)
		msgs, decErr := f.dec.Push(buf[:n])
		require.NoError(t, decErr)
		if len(msgs) > 0 {
			env, uerr := command.Unmarshal(msgs[0])
			require.NoError(t, uerr)
			return env
		}
	}
}

func (f *fakeClient) writeEnvelope(t *testing.T, env command.Envelope) {
	t.Helper()
	payload, err := env.Marshal()
	require.NoError(t, err)
	framed, err := frame.IPC.Encode(payload)
	require.NoError(t, err)
	_, err = f.conn.Write(framed)
	require.NoError(t, err)
}

func newTestBroker(t *testing.T, opts Options) *Broker {
	t.Helper()
	b := New(testSocketPath(t), logging.Nop(), opts)
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSendCommandRoundTrip(t *testing.T) {
	b := newTestBroker(t, Options{})
	client := dialFake(t, b.socketPath)
	defer client.conn.Close()

	require.True(t, b.WaitForConnection(time.Second))

	go func() {
		env := client.readEnvelope(t)
		require.Equal(t, command.KindCommand, env.Kind)
		resp := command.Response{ID: env.Command.ID, Success: true, Result: json.RawMessage(`{"ok":true}`)}
		client.writeEnvelope(t, command.Envelope{Kind: command.KindResponse, Response: &resp})
	}()

	resp, err := b.SendCommand(command.Command{ID: "c1", Action: command.Snapshot}, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestSendCommandWithoutClientReturnsErrNotConnected(t *testing.T) {
	b := newTestBroker(t, Options{})
	_, err := b.SendCommand(command.Command{ID: "c1", Action: command.Snapshot}, time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendCommandTimesOutWithoutReply(t *testing.T) {
	b := newTestBroker(t, Options{})
	client := dialFake(t, b.socketPath)
	defer client.conn.Close()
	require.True(t, b.WaitForConnection(time.Second))

	go client.readEnvelope(t) // drain the command so the write doesn't block

	_, err := b.SendCommand(command.Command{ID: "c1", Action: command.Snapshot}, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSendCommandRejectsDuplicateID(t *testing.T) {
	b := newTestBroker(t, Options{})
	client := dialFake(t, b.socketPath)
	defer client.conn.Close()
	require.True(t, b.WaitForConnection(time.Second))

	go client.readEnvelope(t) // first command, never answered

	done := make(chan struct{})
	go func() {
		_, _ = b.SendCommand(command.Command{ID: "dup", Action: command.Snapshot}, time.Second)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond) // let the first SendCommand register its pending entry

	_, err := b.SendCommand(command.Command{ID: "dup", Action: command.Snapshot}, time.Second)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	b.timeoutCommand("dup")
	<-done
}

func TestDisconnectRejectsPendingCommands(t *testing.T) {
	b := newTestBroker(t, Options{})
	client := dialFake(t, b.socketPath)
	require.True(t, b.WaitForConnection(time.Second))

	go client.readEnvelope(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := b.SendCommand(command.Command{ID: "c1", Action: command.Snapshot}, 2*time.Second)
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.conn.Close()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("SendCommand did not observe the disconnect")
	}
}

func TestHasEverConnectedDistinguishesFromCurrentlyConnected(t *testing.T) {
	b := newTestBroker(t, Options{})
	assert.False(t, b.HasEverConnected())
	assert.False(t, b.IsConnected())

	client := dialFake(t, b.socketPath)
	require.True(t, b.WaitForConnection(time.Second))
	assert.True(t, b.HasEverConnected())
	assert.True(t, b.IsConnected())

	client.conn.Close()
	require.Eventually(t, func() bool { return !b.IsConnected() }, time.Second, 10*time.Millisecond)
	assert.True(t, b.HasEverConnected(), "must still report having connected at least once")
}

func TestSecondClientIsRejectedWhileOneIsAttached(t *testing.T) {
	b := newTestBroker(t, Options{})
	first := dialFake(t, b.socketPath)
	defer first.conn.Close()
	require.True(t, b.WaitForConnection(time.Second))

	second, err := net.Dial("unix", b.socketPath)
	require.NoError(t, err)
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = second.Read(buf)
	assert.Error(t, err, "broker should close a second connection while one client is attached")
}

func TestHeartbeatLossForcesDisconnect(t *testing.T) {
	b := newTestBroker(t, Options{HeartbeatPeriod: 20 * time.Millisecond, PongGrace: 20 * time.Millisecond})
	client := dialFake(t, b.socketPath)
	defer client.conn.Close()
	require.True(t, b.WaitForConnection(time.Second))

	client.readEnvelope(t) // consume the ping, never pong back

	require.Eventually(t, func() bool { return !b.IsConnected() }, time.Second, 10*time.Millisecond,
		"broker should disconnect after a heartbeat goes unanswered")
}
