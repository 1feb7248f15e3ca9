package session

import "errors"

var (
	// ErrSessionBusy rejects a submission while another run is in flight.
	ErrSessionBusy = errors.New("a program is already running in this session")
	// ErrNoCode rejects an empty submission.
	ErrNoCode = errors.New("no code provided")
	// ErrUnsupportedLanguage rejects a submission for another interpreter.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNotRunning drops input that arrives while no program can read it.
	ErrNotRunning = errors.New("no program is running")
	// ErrInputQueueFull drops input when the program is not keeping up.
	ErrInputQueueFull = errors.New("input queue is full")
	// ErrClosed is returned for events delivered after Close.
	ErrClosed = errors.New("session is closed")
)
