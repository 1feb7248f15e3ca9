// Package main is the entry point for the Codestream server.
//
// The Codestream server accepts source code from browser-based editors over a
// websocket, runs it in a resource-limited container and streams the
// program's output back while relaying the user's keystrokes to its stdin.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codestream/config"
	"github.com/isdmx/codestream/logger"
	"github.com/isdmx/codestream/sandbox"
	"github.com/isdmx/codestream/server"
	"github.com/isdmx/codestream/session"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox workspace and launcher based on config
			sandbox.NewWorkspaceFromConfig,
			sandbox.NewLauncherFromConfig,

			// Live sessions
			session.NewHubFromConfig,

			// HTTP and websocket server
			server.New,
		),

		fx.Invoke(register),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// register ties the server to the application lifecycle. Leftover files from
// a previous process are swept before the port is bound.
func register(lc fx.Lifecycle, log *zap.Logger, workspace *sandbox.Workspace, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if _, err := workspace.Sweep(); err != nil {
				log.Warn("failed to sweep workspace", zap.String("dir", workspace.Dir()), zap.Error(err))
			}
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
