package cmd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-runtime/internal/framing"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

func TestServeCmd_Flags(t *testing.T) {
	clearServeEnv(t)
	cmd := newServeCmd()

	if cmd.Flags().Lookup("host") == nil {
		t.Fatal("--host flag not found")
	}
	if cmd.Flags().Lookup("port") == nil {
		t.Fatal("--port flag not found")
	}
	if cmd.Flags().Lookup("config") == nil {
		t.Fatal("--config flag not found")
	}
}

func TestServeCmd_EnvVars(t *testing.T) {
	clearServeEnv(t)
	t.Setenv("GATEWAYD_HOST", "127.0.0.1")
	t.Setenv("GATEWAYD_PORT", "9090")
	t.Setenv("GATEWAYD_CONFIG", "gatewayd.yaml")

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetString("port")
	configPath, _ := cmd.Flags().GetString("config")

	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, "9090", port)
	assert.Equal(t, "gatewayd.yaml", configPath)
}

func TestServeCmd_CLIOverridesConfig(t *testing.T) {
	clearServeEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "gatewayd.yaml")

	yaml := `
gateway:
  listen_host: 0.0.0.0
  listen_port: "7600"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	cfg, err := loadServeConfig(&ServeConfig{Config: configPath, Host: "127.0.0.1", Port: "7601"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Gateway.ListenHost)
	assert.Equal(t, "7601", cfg.Gateway.ListenPort)
}

func clearServeEnv(t *testing.T) {
	t.Helper()
	vars := []string{"GATEWAYD_HOST", "GATEWAYD_PORT", "GATEWAYD_CONFIG"}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

// freePort reserves an ephemeral port and releases it immediately so the
// caller can hand it to a component that binds its own listener.
func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port
}

func TestRunServeRoutesToBackend(t *testing.T) {
	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer backendLn.Close()

	go func() {
		conn, err := backendLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := framing.BufferedReader(conn)
		payload, _, err := framing.Recv(context.Background(), reader, maxFrameSize, nil)
		if err != nil {
			return
		}
		req, err := jsonrpc.DefaultCodec{}.DecodeRequest(payload)
		if err != nil {
			return
		}
		resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: []byte(`{"ok":true}`)}
		encoded, err := jsonrpc.DefaultCodec{}.EncodeResponse(resp)
		if err != nil {
			return
		}
		_ = framing.Send(context.Background(), conn, encoded)
	}()

	_, backendPort, err := net.SplitHostPort(backendLn.Addr().String())
	require.NoError(t, err)

	gatewayPort := freePort(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "gatewayd.yaml")
	yaml := `
gateway:
  listen_host: 127.0.0.1
  listen_port: "` + gatewayPort + `"
  backends:
    - name: files
      address: "127.0.0.1:` + backendPort + `"
      tool_names: ["echo"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, &ServeConfig{Config: configPath})
	}()

	gatewayAddr := net.JoinHostPort("127.0.0.1", gatewayPort)
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", gatewayAddr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	req, err := jsonrpc.NewRequest(1, "call_tool", map[string]string{"name": "echo"})
	require.NoError(t, err)
	encoded, err := jsonrpc.DefaultCodec{}.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, framing.Send(ctx, conn, encoded))

	respBytes, outcome, err := framing.Recv(ctx, framing.BufferedReader(conn), maxFrameSize, nil)
	require.NoError(t, err)
	assert.Equal(t, framing.RecvOK, outcome)

	resp, err := jsonrpc.DefaultCodec{}.DecodeResponse(respBytes)
	require.NoError(t, err)
	assert.Equal(t, jsonrpc.ID(1), resp.ID)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("runServe did not shut down after context cancel")
	}
}
