// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODESTREAM_* environment variables. It
// covers the HTTP/websocket listener, the sandbox resource limits, the
// per-session buffering limits and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s\n", cfg.Addr())
package config
