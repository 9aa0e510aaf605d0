// Command agentfox-mcp hosts the MCP stdio gateway and the IPC broker
// in one process: it speaks JSON-RPC 2.0 to the agent on stdin/stdout
// and waits for the browser-side relay to dial in on a unix socket.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lemon9247/agentfox/internal/broker"
	"github.com/Lemon9247/agentfox/internal/config"
	"github.com/Lemon9247/agentfox/internal/gateway"
	"github.com/Lemon9247/agentfox/internal/logging"
	"go.uber.org/zap"
)

func main() {
	socketPath := flag.String("socket", "", "unix socket path for the browser relay (default: XDG_RUNTIME_DIR/agentfox.sock)")
	configPath := flag.String("config", "", "optional YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logging.New("mcp", *debug)
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

	b := broker.New(cfg.SocketPath, log.Named("broker"), broker.Options{
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		PongGrace:       cfg.PongGrace,
	})
	if err := b.Start(); err != nil {
		log.Fatalw("starting broker", "error", err, "socket", cfg.SocketPath)
	}
	defer func() { _ = b.Close() }()
	log.Infow("broker listening", "socket", cfg.SocketPath)

	go logBrokerEvents(b, log)

	gw := gateway.New(b, log.Named("gateway"), cfg.ExtensionWait, cfg.CommandTimeout)

	runErr := make(chan error, 1)
	go func() { runErr <- gw.Run(os.Stdin, os.Stdout) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-runErr:
		if err != nil {
			log.Errorw("gateway exited", "error", err)
			os.Exit(1)
		}
		log.Infow("gateway stdin closed, shutting down")
	case s := <-sig:
		log.Infow("received signal, shutting down", "signal", s.String())
	}
}

func logBrokerEvents(b *broker.Broker, log *zap.SugaredLogger) {
	for {
		select {
		case ev, ok := <-b.Events():
			if !ok {
				return
			}
			switch ev {
			case broker.EventClientConnected:
				log.Infow("extension connected")
			case broker.EventClientDisconnected:
				log.Infow("extension disconnected")
			}
		case err, ok := <-b.Errors():
			if !ok {
				return
			}
			log.Errorw("broker error", "error", err)
		}
	}
}
