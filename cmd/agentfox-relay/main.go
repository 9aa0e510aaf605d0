// Command agentfox-relay is the native-messaging host Chrome spawns
// when the extension's native port opens. It speaks Chrome's
// length-prefixed native-messaging dialect on stdin/stdout and relays
// every message to the broker's unix socket, and back.
package main

import (
	"flag"
	"os"

	"github.com/Lemon9247/agentfox/internal/config"
	"github.com/Lemon9247/agentfox/internal/logging"
	"github.com/Lemon9247/agentfox/internal/relay"
)

func main() {
	socketPath := flag.String("socket", "", "unix socket path of the agentfox-mcp broker")
	configPath := flag.String("config", "", "optional YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logging.New("relay", *debug)
	defer func() { _ = log.Sync() }()

	file, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}
	if *socketPath != "" {
		file.SocketPath = *socketPath
	}
	cfg, err := config.Resolve(file)
	if err != nil {
		log.Fatalw("resolving config", "error", err)
	}

	r, err := relay.Dial(cfg.SocketPath, os.Stdin, os.Stdout, log)
	if err != nil {
		// Chrome expects a native-messaging host to simply exit when it
		// can't do its job; there is no stdout channel to report this on
		// since the broker it would report through is the thing missing.
		log.Errorw("connecting to broker", "error", err, "socket", cfg.SocketPath)
		os.Exit(1)
	}
	defer r.Close()

	if err := r.Run(); err != nil {
		log.Errorw("relay exited", "error", err)
		os.Exit(1)
	}
}
