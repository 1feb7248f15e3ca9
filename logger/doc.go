// Package logger builds the zap logger shared by every component.
//
// Development mode writes colored console output; production mode writes JSON
// with ISO8601 timestamps and no sampling. Every entry carries
// service=codestream; sessions add session_id and runs add container.
//
// Usage:
//
//	logger, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("server started", zap.String("addr", addr))
package logger
