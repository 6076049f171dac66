package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/auth"
	"github.com/jonwraymond/mcp-runtime/internal/config"
	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/framing"
	"github.com/jonwraymond/mcp-runtime/internal/gateway"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
	"github.com/jonwraymond/mcp-runtime/internal/pool"
	"github.com/jonwraymond/mcp-runtime/internal/registry"
	"github.com/jonwraymond/mcp-runtime/internal/transport/mqttclient"
	"github.com/jonwraymond/mcp-runtime/internal/transport/streamable"
	"github.com/spf13/cobra"
)

// ServeConfig holds serve command configuration.
type ServeConfig struct {
	Host   string
	Port   string
	Config string
}

func newServeCmd() *cobra.Command {
	cfg := &ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway listener",
		Long: `Start gatewayd: accept framed JSON-RPC requests on a TCP listener,
route each one to a configured backend, and forward it over a pooled
connection. If a Streamable HTTP or MQTT upstream is configured, gatewayd
also establishes and maintains that outbound client connection.

Examples:
  gatewayd serve
  gatewayd serve --host=0.0.0.0 --port=7600
  gatewayd serve --config=gatewayd.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", "", "Host to bind the gateway listener")
	cmd.Flags().StringVarP(&cfg.Port, "port", "p", "", "Port to bind the gateway listener")
	cmd.Flags().StringVarP(&cfg.Config, "config", "c", "", "Path to config file")

	applyServeEnvDefaults(cmd, cfg)

	return cmd
}

func applyServeEnvDefaults(cmd *cobra.Command, cfg *ServeConfig) {
	if !cmd.Flags().Changed("host") {
		if v := os.Getenv("GATEWAYD_HOST"); v != "" {
			_ = cmd.Flags().Set("host", v)
			cfg.Host = v
		}
	}
	if !cmd.Flags().Changed("port") {
		if v := os.Getenv("GATEWAYD_PORT"); v != "" {
			_ = cmd.Flags().Set("port", v)
			cfg.Port = v
		}
	}
	if !cmd.Flags().Changed("config") {
		if v := os.Getenv("GATEWAYD_CONFIG"); v != "" {
			_ = cmd.Flags().Set("config", v)
			cfg.Config = v
		}
	}
}

// loadServeConfig loads config with CLI overrides applied on top.
func loadServeConfig(cli *ServeConfig) (config.AppConfig, error) {
	overrides := map[string]any{}
	if cli.Host != "" {
		overrides["gateway.listen_host"] = cli.Host
	}
	if cli.Port != "" {
		overrides["gateway.listen_port"] = cli.Port
	}
	return config.LoadWithOverrides(cli.Config, overrides)
}

func runServe(ctx context.Context, cfg *ServeConfig) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg, err := loadServeConfig(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := appCfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	envCfg, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("load env config: %w", err)
	}
	if err := envCfg.ValidateEnv(); err != nil {
		return fmt.Errorf("invalid env config: %w", err)
	}

	backends, err := appCfg.ToGatewayBackends(envCfg.Pool)
	if err != nil {
		return fmt.Errorf("build gateway backends: %w", err)
	}
	gw, err := gateway.New(backends)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() { _ = gw.Close() }()

	authenticator, err := buildAuthenticator(appCfg.Auth)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	reg := registry.NewWithCapacity(uint64(envCfg.Registry.InitialCapacity))

	closeUpstreams, err := connectUpstreams(ctx, appCfg, envCfg, reg)
	if err != nil {
		return fmt.Errorf("connect upstreams: %w", err)
	}
	defer closeUpstreams()

	listenAddr := net.JoinHostPort(appCfg.Gateway.ListenHost, appCfg.Gateway.ListenPort)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer func() { _ = ln.Close() }()

	slog.Info("gatewayd: listening", "addr", listenAddr, "backends", len(backends))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(ctx, gw, authenticator, conn)
	}
}

const maxFrameSize = 4 << 20

func serveConn(ctx context.Context, gw *gateway.Gateway, authenticator auth.Authenticator, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	reader := framing.BufferedReader(conn)
	codec := jsonrpc.DefaultCodec{}

	for {
		payload, outcome, err := framing.Recv(ctx, reader, maxFrameSize, ctx.Done())
		if err != nil {
			if outcome != framing.RecvClosed {
				slog.Warn("gatewayd: recv failed", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}

		req, err := codec.DecodeRequest(payload)
		if err != nil {
			slog.Warn("gatewayd: malformed request", "remote", conn.RemoteAddr(), "error", err)
			return
		}

		reqCtx, denied := authenticateRequest(ctx, authenticator, req)
		var resp jsonrpc.Response
		if denied != nil {
			resp = *denied
		} else {
			resp = gw.HandleRequest(reqCtx, req)
		}
		encoded, err := codec.EncodeResponse(resp)
		if err != nil {
			slog.Warn("gatewayd: encode response failed", "remote", conn.RemoteAddr(), "error", err)
			return
		}
		if err := framing.Send(ctx, conn, encoded); err != nil {
			slog.Warn("gatewayd: send failed", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

// connectUpstreams establishes optional outbound Streamable HTTP and MQTT
// client connections when configured, returning a cleanup func.
func connectUpstreams(ctx context.Context, appCfg config.AppConfig, envCfg config.EnvConfig, reg *registry.Registry) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if appCfg.Streamable.Host != "" {
		streamableCfg := appCfg.ToStreamableConfig(envCfg.Pool)
		dns := dnscache.New(16, 5*time.Minute)
		p := pool.New(pool.Config{
			Host:                streamableCfg.Host,
			Port:                streamableCfg.Port,
			Min:                 streamableCfg.PoolMin,
			Max:                 streamableCfg.PoolMax,
			IdleTimeout:         streamableCfg.PoolIdleTimeout,
			ConnectTimeout:      streamableCfg.PoolConnectTimeout,
			HealthCheckInterval: streamableCfg.PoolHealthCheckInterval,
			HealthCheckTimeout:  streamableCfg.PoolHealthCheckTimeout,
		}, dns)
		client := streamable.New(streamableCfg, p, reg)
		slog.Info("gatewayd: streamable upstream configured", "host", streamableCfg.Host, "port", streamableCfg.Port)
		closers = append(closers, func() { _ = client.Close() })
	}

	if appCfg.MQTT.BrokerURL != "" {
		mqttCfg := appCfg.ToMQTTConfig()
		client := mqttclient.New(mqttCfg, reg)
		if err := client.Connect(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("connect mqtt broker: %w", err)
		}
		slog.Info("gatewayd: mqtt upstream connected", "broker", mqttCfg.BrokerURL)
		closers = append(closers, func() { _ = client.Close() })
	}

	return closeAll, nil
}
