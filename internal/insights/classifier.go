package insights

import (
	"regexp"
	"strings"
)

type FailureType string

const (
	ScriptFailure       FailureType = "script_failure"
	Timeout             FailureType = "timeout"
	Cancelled           FailureType = "cancelled"
	RunnerSystemFailure FailureType = "runner_system_failure"
	Unknown             FailureType = "unknown"
)

const (
	scriptFailureMessage = "Script execution failed"
	timeoutMessage       = "Job execution timeout"
	cancelledMessage     = "Job was cancelled"
	runnerFailureMessage = "Runner system failure"
)

var errorLinePattern = regexp.MustCompile(`(?im)ERROR:[ \t]*(\S.*)$`)

// ClassifyTrace maps a failed job's trace to exactly one failure type. Rules
// are checked in a fixed priority order and the first match wins, so a trace
// holding both "exit code 1" and "timed out" is a script failure.
func ClassifyTrace(trace string) (FailureType, string) {
	lower := strings.ToLower(trace)

	switch {
	case strings.Contains(trace, "exit code 1") || strings.Contains(trace, "Command failed"):
		return ScriptFailure, extractErrorMessage(trace)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return Timeout, timeoutMessage
	case strings.Contains(trace, "cancelled") || strings.Contains(trace, "canceled"):
		return Cancelled, cancelledMessage
	case strings.Contains(trace, "runner") && strings.Contains(trace, "system"):
		return RunnerSystemFailure, runnerFailureMessage
	default:
		return Unknown, ""
	}
}

func extractErrorMessage(trace string) string {
	m := errorLinePattern.FindStringSubmatch(trace)
	if m == nil {
		return scriptFailureMessage
	}

	msg := strings.TrimSpace(strings.TrimSuffix(m[1], "\r"))
	if msg == "" {
		return scriptFailureMessage
	}

	return msg
}
