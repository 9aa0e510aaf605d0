package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lemon9247/agentfox/internal/browserdriver"
	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/frame"
	"github.com/Lemon9247/agentfox/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelayPathPrefersExplicitFlag(t *testing.T) {
	path, err := resolveRelayPath("/custom/path/agentfox-relay")
	require.NoError(t, err)
	assert.Equal(t, "/custom/path/agentfox-relay", path)
}

func TestResolveRelayPathFallsBackToPATH(t *testing.T) {
	dir := t.TempDir()
	onPath := filepath.Join(dir, "agentfox-relay")
	require.NoError(t, os.WriteFile(onPath, []byte("#!/bin/sh\n"), 0o755))

	t.Setenv("PATH", dir)

	path, err := resolveRelayPath("")
	require.NoError(t, err)
	assert.Equal(t, onPath, path)
}

func TestResolveRelayPathFailsWhenNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := resolveRelayPath("")
	assert.Error(t, err)
}

func TestDispatcherRoundTripsCommandAndResponse(t *testing.T) {
	cmdReader, cmdWriter := io.Pipe()   // test -> dispatcher: native-framed Commands
	respReader, respWriter := io.Pipe() // dispatcher -> test: native-framed Responses

	d := &dispatcher{in: cmdReader, out: writeOutAdapter{respWriter}, driver: &browserdriver.Driver{}, log: logging.Nop()}
	go d.run()

	cmd := command.Command{ID: "c1", Action: command.GetBookmarks}
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	framed, err := frame.Native.Encode(payload)
	require.NoError(t, err)

	go func() { _, _ = cmdWriter.Write(framed) }()

	dec := frame.NewDecoder(frame.Native)
	buf := make([]byte, 4096)
	for {
		n, rerr := respReader.Read(buf)
		require.NoError(t, rerr)
		msgs, decErr := dec.Push(buf[:n])
		require.NoError(t, decErr)
		if len(msgs) > 0 {
			var resp command.Response
			require.NoError(t, json.Unmarshal(msgs[0], &resp))
			assert.Equal(t, "c1", resp.ID)
			assert.False(t, resp.Success, "get_bookmarks has no CDP equivalent and should fail")
			break
		}
	}
}

// writeOutAdapter lets an io.PipeWriter satisfy the dispatcher's out
// field without exposing the pipe's Close to callers that only write.
type writeOutAdapter struct {
	w *io.PipeWriter
}

func (a writeOutAdapter) Write(p []byte) (int, error) { return a.w.Write(p) }
