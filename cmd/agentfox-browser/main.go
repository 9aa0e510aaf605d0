// Command agentfox-browser is the browser-side dispatcher of spec
// section 4.E. It plays the role a WebExtension's background script
// would play: it spawns the relay binary and speaks the native-
// messaging dialect to it over stdin/stdout pipes, exactly the
// envelope-free Command/Response shape a real browser would write.
// Commands it receives are dispatched to a real browser tab over CDP
// via internal/browserdriver.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Lemon9247/agentfox/internal/browserdriver"
	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/config"
	"github.com/Lemon9247/agentfox/internal/frame"
	"github.com/Lemon9247/agentfox/internal/logging"
	"go.uber.org/zap"
)

func main() {
	socketPath := flag.String("socket", "", "unix socket path of the agentfox-mcp broker, passed through to the relay")
	configPath := flag.String("config", "", "optional YAML config file")
	relayPath := flag.String("relay", "", "path to the agentfox-relay binary (default: auto-discover)")
	browserBinary := flag.String("browser-binary", "", "path to a Chromium/Chrome binary (default: auto-discover)")
	headless := flag.Bool("headless", false, "launch the browser headless")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logging.New("browser", *debug)
	defer func() { _ = log.Sync() }()

	file, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}
	if *socketPath != "" {
		file.SocketPath = *socketPath
	}
	if *browserBinary != "" {
		file.BrowserBinary = *browserBinary
	}
	if *headless {
		file.Headless = true
	}
	cfg, err := config.Resolve(file)
	if err != nil {
		log.Fatalw("resolving config", "error", err)
	}

	driver, err := browserdriver.New(browserdriver.Config{
		BrowserBinary: cfg.BrowserBinary,
		Headless:      cfg.Headless,
		NavigateWait:  30 * time.Second,
	}, log.Named("driver"))
	if err != nil {
		log.Fatalw("launching browser", "error", err)
	}
	defer driver.Close()

	relayBin, err := resolveRelayPath(*relayPath)
	if err != nil {
		log.Fatalw("locating relay binary", "error", err)
	}

	relayCmd := exec.Command(relayBin, "--socket", cfg.SocketPath) // #nosec G204 -- relayBin is our own sibling binary
	relayCmd.Stderr = os.Stderr
	stdin, err := relayCmd.StdinPipe()
	if err != nil {
		log.Fatalw("wiring relay stdin", "error", err)
	}
	stdout, err := relayCmd.StdoutPipe()
	if err != nil {
		log.Fatalw("wiring relay stdout", "error", err)
	}
	if err := relayCmd.Start(); err != nil {
		log.Fatalw("starting relay", "error", err, "binary", relayBin)
	}
	log.Infow("relay started", "binary", relayBin, "pid", relayCmd.Process.Pid)

	d := &dispatcher{in: stdout, out: stdin, driver: driver, log: log}
	if err := d.run(); err != nil && !errors.Is(err, io.EOF) {
		log.Errorw("dispatcher exited", "error", err)
	}

	_ = relayCmd.Wait()
}

// resolveRelayPath follows the teacher's self-re-exec pattern
// (cmd/dev-console/bridge.go's runBridgeMode, main_connection.go):
// look next to our own binary first, then fall back to $PATH.
func resolveRelayPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "agentfox-relay")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	found, err := exec.LookPath("agentfox-relay")
	if err != nil {
		return "", fmt.Errorf("agentfox-relay not found next to this binary or on PATH: %w", err)
	}
	return found, nil
}

// dispatcher bridges the relay's native-messaging stdio (bare
// command.Command frames in, bare command.Response frames out) to
// driver.Dispatch. Unlike the IPC dialect the broker speaks, native
// frames carry no envelope — relay.writeNative/forwardToBroker only
// ever put a Command on this side's stdin and expect a Response back.
type dispatcher struct {
	in     io.Reader
	out    io.Writer
	driver *browserdriver.Driver
	log    *zap.SugaredLogger
}

func (d *dispatcher) run() error {
	dec := frame.NewDecoder(frame.Native)
	buf := make([]byte, 64*1024)

	for {
		n, err := d.in.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Push(buf[:n])
			for _, raw := range msgs {
				d.handleCommand(raw)
			}
			if decErr != nil {
				return decErr
			}
		}
		if err != nil {
			return err
		}
	}
}

func (d *dispatcher) handleCommand(raw []byte) {
	var cmd command.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.log.Warnw("malformed command from relay", "error", err)
		return
	}

	resp := d.driver.Dispatch(cmd)
	if err := d.writeResponse(resp); err != nil {
		d.log.Errorw("writing response to relay", "error", err)
	}
}

func (d *dispatcher) writeResponse(resp command.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	framed, err := frame.Native.Encode(payload)
	if err != nil {
		return err
	}
	_, err = d.out.Write(framed)
	return err
}
