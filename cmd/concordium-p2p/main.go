// Command concordium-p2p runs the peer-to-peer overlay node: it opens the
// listening socket, resolves bootstrap peers, and serves the network
// until terminated.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/paseka1/Concordium/internal/config"
	"github.com/paseka1/Concordium/internal/node"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "concordium-p2p"
	app.Usage = "Concordium peer-to-peer overlay node"
	app.Flags = config.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("concordium-p2p exited with error")
	}
}

func run(ctx *cli.Context) error {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.FromCLI(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("concordium-p2p: create data dir: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "p2p.db"))
	if err != nil {
		return fmt.Errorf("concordium-p2p: open store: %w", err)
	}
	defer st.Close()

	id, err := st.LoadOrCreateNodeID()
	if err != nil {
		return fmt.Errorf("concordium-p2p: load node id: %w", err)
	}

	peerType := peer.Node
	if cfg.BootstrapperMode {
		peerType = peer.Bootstrapper
	}

	psk, err := loadOrCreatePSK(filepath.Join(cfg.DataDir, "psk"))
	if err != nil {
		return fmt.Errorf("concordium-p2p: load psk: %w", err)
	}

	entry := logrus.NewEntry(log).WithField("node_id", id.Short())
	srv, err := node.New(node.Config{
		ID:               id,
		ListenAddress:    cfg.ListenAddress,
		ListenPort:       cfg.ListenPort,
		ExternalIP:       cfg.ExternalIP,
		ExternalPort:     cfg.ExternalPort,
		PeerType:         peerType,
		Networks:         cfg.Networks,
		Version:          appVersion,
		MaxAllowedNodes:  cfg.MaxAllowedNodes,
		OutboundBytesCap: 0,
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		PingTimeout:      cfg.PingTimeout,
		IdleTimeout:      cfg.IdleTimeout,
		NoTrustBroadcasts: cfg.NoTrustBroadcasts,
		PSK:              psk,
		Log:              entry,
	}, st)
	if err != nil {
		return fmt.Errorf("concordium-p2p: build server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("concordium-p2p: start server: %w", err)
	}

	srv.BootstrapAll(cfg.BootstrapNodes, cfg.BootstrapDNSDomain, !cfg.NoBootstrapDNS, !cfg.DNSSECDisabled, defaultReconnectBackoff)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	entry.Info("shutting down")
	srv.Stop()
	return nil
}
