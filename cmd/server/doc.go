// Package main is the entry point for the Codestream server.
//
// The Codestream server accepts source code from browser-based editors over a
// websocket, runs it in a resource-limited container and streams the
// program's output back while relaying the user's keystrokes to its stdin.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
