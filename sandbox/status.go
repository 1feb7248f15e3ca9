package sandbox

import "fmt"

// ExitStatus describes how a sandbox process ended. ExitCode is nil when the
// process did not exit normally; Signal is empty when it was not signalled.
type ExitStatus struct {
	ExitCode *int
	Signal   string
	TimedOut bool
}

// Outcome labels
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeTerminated = "terminated"
	OutcomeTimeout    = "timeout"
)

// Terminated reports whether the process was forcibly stopped or ended
// without an exit code.
func (s ExitStatus) Terminated() bool {
	return s.TimedOut || s.Signal != "" || s.ExitCode == nil
}

// Outcome returns a short label for metrics and logs.
func (s ExitStatus) Outcome() string {
	switch {
	case s.TimedOut:
		return OutcomeTimeout
	case s.Terminated():
		return OutcomeTerminated
	case *s.ExitCode == 0:
		return OutcomeSuccess
	default:
		return OutcomeError
	}
}

// DescribeExit renders the human-readable status sent to the client when a
// run ends.
func DescribeExit(s ExitStatus) string {
	switch {
	case s.TimedOut:
		return "Program terminated (time limit exceeded)."
	case s.Signal != "":
		return fmt.Sprintf("Program terminated (killed by %s).", s.Signal)
	case s.ExitCode == nil:
		return "Program terminated (e.g., timed out, killed, or crashed)."
	case *s.ExitCode == 0:
		return "Program finished successfully."
	default:
		return fmt.Sprintf("Program exited with error code %d.", *s.ExitCode)
	}
}
