package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures an in-process NATS server.
type EmbeddedServerConfig struct {
	// Port to listen on. -1 picks a random free port.
	Port     int
	StoreDir string
}

// StartEmbeddedServer runs a JetStream-enabled NATS server inside the
// process, for single-node deployments that still want a persistent cache.
func StartEmbeddedServer(cfg EmbeddedServerConfig) (*natsserver.Server, error) {
	storeDir, err := config.ExpandPath(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("expanding nats store dir: %w", err)
	}
	if storeDir != "" {
		if err := os.MkdirAll(storeDir, 0700); err != nil {
			return nil, fmt.Errorf("creating nats store dir: %w", err)
		}
	}

	port := cfg.Port
	if port == 0 {
		port = -1
	}
	srv, err := natsserver.NewServer(&natsserver.Options{
		ServerName:     "ragd-embedded",
		Host:           "127.0.0.1",
		Port:           port,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
		JetStream:      true,
		StoreDir:       storeDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, errors.New("embedded nats server not ready")
	}
	return srv, nil
}
