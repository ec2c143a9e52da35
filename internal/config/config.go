// Package config binds the process's CLI flags and environment variables
// (spec §6) into a validated Config, following the urfave/cli.v1 flag
// style used by the teacher's service packages (see pkgs/trace/service.go
// upstream).
package config

import (
	"net"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
)

// Flags are the CLI flags recognized by the node process (spec §6).
var Flags = []cli.Flag{
	cli.StringFlag{Name: "listen-address", EnvVar: "CONCORDIUM_LISTEN_ADDRESS", Value: "0.0.0.0"},
	cli.IntFlag{Name: "listen-port", EnvVar: "CONCORDIUM_LISTEN_PORT", Value: 8888},
	cli.StringFlag{Name: "external-ip", EnvVar: "CONCORDIUM_EXTERNAL_IP"},
	cli.IntFlag{Name: "external-port", EnvVar: "CONCORDIUM_EXTERNAL_PORT"},
	cli.StringSliceFlag{Name: "bootstrap-node", EnvVar: "CONCORDIUM_BOOTSTRAP_NODES"},
	cli.BoolFlag{Name: "no-bootstrap-dns", EnvVar: "CONCORDIUM_NO_BOOTSTRAP_DNS"},
	cli.StringFlag{Name: "bootstrap-dns-domain", EnvVar: "CONCORDIUM_BOOTSTRAP_DNS_DOMAIN", Value: "bootstrap.concordium.com"},
	cli.IntSliceFlag{Name: "network-id", EnvVar: "CONCORDIUM_NETWORK_IDS"},
	cli.IntFlag{Name: "max-allowed-nodes", EnvVar: "CONCORDIUM_MAX_ALLOWED_NODES", Value: 250},
	cli.IntFlag{Name: "thread-pool-size", EnvVar: "CONCORDIUM_THREAD_POOL_SIZE", Value: 4},
	cli.BoolFlag{Name: "dnssec-disabled", EnvVar: "CONCORDIUM_DNSSEC_DISABLED"},
	cli.BoolFlag{Name: "no-trust-broadcasts", EnvVar: "CONCORDIUM_NO_TRUST_BROADCASTS"},
	cli.StringFlag{Name: "rpc-server-addr", EnvVar: "CONCORDIUM_RPC_SERVER_ADDR", Value: "127.0.0.1"},
	cli.IntFlag{Name: "rpc-server-port", EnvVar: "CONCORDIUM_RPC_SERVER_PORT", Value: 10000},
	cli.StringFlag{Name: "rpc-server-token", EnvVar: "CONCORDIUM_RPC_SERVER_TOKEN"},
	cli.StringFlag{Name: "data-dir", EnvVar: "CONCORDIUM_DATA_DIR", Value: defaultDataDir()},
	cli.BoolFlag{Name: "bootstrapper-mode", EnvVar: "CONCORDIUM_BOOTSTRAPPER_MODE"},
}

// Config is the validated, typed form of the CLI/env options.
type Config struct {
	ListenAddress string
	ListenPort    uint16
	ExternalIP    net.IP
	ExternalPort  uint16

	BootstrapNodes     []string
	NoBootstrapDNS     bool
	BootstrapDNSDomain string

	Networks []peer.NetworkID

	MaxAllowedNodes int
	ThreadPoolSize  int
	DNSSECDisabled  bool
	NoTrustBroadcasts bool

	RPCServerAddr  string
	RPCServerPort  uint16
	RPCServerToken string

	DataDir          string
	BootstrapperMode bool

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	IdleTimeout      time.Duration
}

func defaultDataDir() string {
	dir, err := homeDir()
	if err != nil {
		return ".concordium-p2p"
	}
	return dir + "/.concordium-p2p"
}

// FromCLI builds and validates a Config from a parsed cli.Context.
// ConfigInvalid failures here are fatal at startup (spec §7).
func FromCLI(ctx *cli.Context) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ctx.String("listen-address"),
		ListenPort:         uint16(ctx.Int("listen-port")),
		ExternalPort:       uint16(ctx.Int("external-port")),
		BootstrapNodes:     ctx.StringSlice("bootstrap-node"),
		NoBootstrapDNS:     ctx.Bool("no-bootstrap-dns"),
		BootstrapDNSDomain: ctx.String("bootstrap-dns-domain"),
		MaxAllowedNodes:    ctx.Int("max-allowed-nodes"),
		ThreadPoolSize:     ctx.Int("thread-pool-size"),
		DNSSECDisabled:     ctx.Bool("dnssec-disabled"),
		NoTrustBroadcasts:  ctx.Bool("no-trust-broadcasts"),
		RPCServerAddr:      ctx.String("rpc-server-addr"),
		RPCServerPort:      uint16(ctx.Int("rpc-server-port")),
		RPCServerToken:     ctx.String("rpc-server-token"),
		DataDir:            ctx.String("data-dir"),
		BootstrapperMode:   ctx.Bool("bootstrapper-mode"),
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       30 * time.Second,
		PingTimeout:        90 * time.Second,
		IdleTimeout:        120 * time.Second,
	}

	if ip := ctx.String("external-ip"); ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, p2perr.New(p2perr.ConfigInvalid, "config.FromCLI", errInvalidIP(ip))
		}
		cfg.ExternalIP = parsed
	}

	for _, n := range ctx.IntSlice("network-id") {
		if n < 0 || n > 0xFFFF {
			return nil, p2perr.New(p2perr.ConfigInvalid, "config.FromCLI", errInvalidNetworkID(n))
		}
		cfg.Networks = append(cfg.Networks, peer.NetworkID(n))
	}

	if cfg.MaxAllowedNodes <= 0 {
		return nil, p2perr.New(p2perr.ConfigInvalid, "config.FromCLI", errNonPositive("max-allowed-nodes"))
	}
	if cfg.ListenPort == 0 {
		return nil, p2perr.New(p2perr.ConfigInvalid, "config.FromCLI", errNonPositive("listen-port"))
	}

	return cfg, nil
}
