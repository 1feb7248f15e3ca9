package integration

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/isdmx/codestream/config"
	"github.com/isdmx/codestream/logger"
	"github.com/isdmx/codestream/protocol"
	"github.com/isdmx/codestream/sandbox"
	"github.com/isdmx/codestream/server"
	"github.com/isdmx/codestream/session"
)

const testOrigin = "http://localhost:5173"

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// configureEnv points the configuration at a scratch workdir and a free port.
func configureEnv(t *testing.T) (workdir string, port int) {
	t.Helper()
	workdir = t.TempDir()
	port = freePort(t)
	// Equivalent of t.Chdir (Go 1.24+) for the go1.21 toolchain.
	prevDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(prevDir) })
	t.Setenv("CODESTREAM_SERVER_HOST", "127.0.0.1")
	t.Setenv("CODESTREAM_SERVER_PORT", strconv.Itoa(port))
	t.Setenv("CODESTREAM_SANDBOX_WORKDIR", workdir)
	t.Setenv("CODESTREAM_LOGGING_MODE", "development")
	t.Setenv("CODESTREAM_LOGGING_LEVEL", "warn")
	return workdir, port
}

// newApp wires the application the same way the server binary does.
func newApp(t *testing.T) *fxtest.App {
	t.Helper()
	return fxtest.New(t,
		fx.NopLogger,
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			sandbox.NewWorkspaceFromConfig,
			sandbox.NewLauncherFromConfig,
			session.NewHubFromConfig,
			server.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, workspace *sandbox.Workspace, srv *server.Server) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					if _, err := workspace.Sweep(); err != nil {
						return err
					}
					return srv.Start()
				},
				OnStop: srv.Stop,
			})
		}),
	)
}

// TestIntegrationWiring starts the full application from environment configuration
func TestIntegrationWiring(t *testing.T) {
	workdir, port := configureEnv(t)

	stale := filepath.Join(workdir, sandbox.FilePrefix+"stale.py")
	require.NoError(t, os.WriteFile(stale, []byte("print(1)"), sandbox.FilePermission))

	app := newApp(t)
	app.RequireStart()
	defer app.RequireStop()

	// Leftovers from a previous process are gone before connections are accepted.
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, server.LivenessMessage, string(body))
}

func TestIntegrationPortInUse(t *testing.T) {
	_, port := configureEnv(t)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	app := newApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, app.Start(ctx))
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}
	if err := exec.Command("docker", "image", "inspect", "python:3.9-slim-buster").Run(); err != nil {
		t.Skip("python:3.9-slim-buster image not present")
	}
}

// TestIntegrationDockerRun runs an interactive program in a real container
func TestIntegrationDockerRun(t *testing.T) {
	requireDocker(t)
	workdir, port := configureEnv(t)

	app := newApp(t)
	app.RequireStart()
	defer app.RequireStop()

	header := http.Header{"Origin": {testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), header)
	require.NoError(t, err)
	defer conn.Close()

	code := `name = input()
print("Hello, " + name)
`
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "code", "value": code, "language": "python"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "input", "value": "World"}))

	var msgs []protocol.Outbound
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(60*time.Second)))
		var msg protocol.Outbound
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		if msg.Type == protocol.TypeEnd {
			break
		}
	}

	assert.Contains(t, msgs, protocol.Output("Hello, World\n"))
	assert.Contains(t, msgs, protocol.Status("Program finished successfully."))

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(workdir)
		return err == nil && len(entries) == 0
	}, 10*time.Second, 50*time.Millisecond)
}
