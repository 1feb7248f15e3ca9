// Package server exposes sessions to editor clients over websockets.
//
// A single HTTP listener serves three things on a gin router:
//
//	GET /         plain requests get the liveness string; websocket upgrades
//	              from an allowed origin become a session
//	GET /metrics  prometheus collectors
//
// Each connection gets its own session, a bounded outbox drained by a writer
// goroutine, a keep-alive pinger and an inbound message rate limiter.
//
// Example usage:
//
//	srv := server.New(cfg, logger, hub)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Stop(ctx)
package server
