package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/internal/chat"
	"github.com/farsight-games/gamewire/internal/config"
	"github.com/farsight-games/gamewire/pkg/conn"
	"github.com/farsight-games/gamewire/pkg/conn/mem"
	"github.com/farsight-games/gamewire/pkg/conn/stream"
	"github.com/farsight-games/gamewire/pkg/message"
)

// transcript is the dispatcher of the server's own in-process room member:
// it logs every line the room relays, giving the operator a live record.
type transcript struct {
	log *logrus.Entry
}

func (tr transcript) DispatchFirst(m message.Message, _ conn.Conn) { tr.record(m) }

func (tr transcript) Dispatch(m message.Message, _ conn.Conn) { tr.record(m) }

func (tr transcript) record(m message.Message) {
	if line, ok := m.(*chat.Chat); ok {
		tr.log.WithField("name", line.Name).Info(line.Text)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to the config file (default: $GAMEWIRE_CONFIG, then ./gamewire.toml)")
	addr := flag.String("addr", "", "Listen address, overrides the config file (e.g., :8880)")
	flag.Parse()

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatalf("Failed to build logger: %v", err)
	}

	room := chat.NewRoom(log)
	srv, err := stream.NewServer(cfg.Server.Addr, stream.ServerOpts{
		Dispatcher:      room,
		EnableWebSocket: cfg.Server.EnableWebSocket,
		Log:             log,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Infof("Accepting framed connections on %s (websocket: %v)", srv.Addr(), cfg.Server.EnableWebSocket)

	// The same room also serves in-process endpoints through a mem listener,
	// and the server itself joins through it to keep a transcript.
	reg := mem.NewRegistry(log)
	lobby, err := reg.Listen("lobby", mem.ListenerOpts{
		Capacity:   cfg.Mem.AcceptQueueCapacity,
		Dispatcher: room,
	})
	if err != nil {
		log.Fatalf("Failed to open the lobby listener: %v", err)
	}
	acceptCtx, stopAccepting := context.WithCancel(context.Background())
	go func() {
		for {
			if _, err := lobby.Accept(acceptCtx); err != nil {
				return
			}
		}
	}()

	monitor, err := reg.Dial(context.Background(), "lobby")
	if err != nil {
		log.Fatalf("Failed to join the lobby: %v", err)
	}
	if _, err := monitor.Connect(); err != nil {
		log.Fatalf("Failed to connect the room monitor: %v", err)
	}
	if err := monitor.StartMessageProcessing(transcript{log: log.WithField("component", "transcript")}); err != nil {
		log.Fatalf("Failed to start the room monitor: %v", err)
	}
	if err := monitor.Send(&chat.Hello{Name: "server"}); err != nil {
		log.Fatalf("Failed to announce the room monitor: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down...", sig)

	stopAccepting()
	lobby.ForceClose()
	srv.Stop()
}
