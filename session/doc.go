// Package session implements the per-connection run lifecycle.
//
// A Session moves through Idle, Preparing, Running, Terminating and Closed.
// It accepts at most one submission at a time, relays program output to its
// Sink as it arrives, feeds client input lines to the program's stdin, and
// reclaims the sandbox process and workspace file on every exit path:
// program exit, launch failure, explicit Cleanup and client disconnect.
package session
