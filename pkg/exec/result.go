package exec

import (
	"encoding/json"
	"time"
)

// TimedOutExitCode is the exit_code reported for commands killed by the timeout.
const TimedOutExitCode = "timed out"

// Result is the outcome of one command. A timeout or a non-zero exit is still
// a Result, never an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	// Truncated is set when either stream exceeded the output limit.
	Truncated bool
	Duration  time.Duration
	// SpawnError is set when the process could not be started at all.
	SpawnError string
}

// Success reports a zero exit that was not cut short.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut && r.SpawnError == ""
}

// ExitStatus returns the exit code, or TimedOutExitCode when the command timed out.
func (r *Result) ExitStatus() any {
	if r.TimedOut {
		return TimedOutExitCode
	}
	return r.ExitCode
}

type resultJSON struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   any    `json:"exit_code"`
	Truncated  bool   `json:"truncated"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		ExitCode:   r.ExitStatus(),
		Truncated:  r.Truncated,
		Success:    r.Success(),
		DurationMS: r.Duration.Milliseconds(),
		Error:      r.SpawnError,
	})
}
