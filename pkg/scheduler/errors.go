package scheduler

import "errors"

// Code identifies a user-facing scheduling failure.
type Code string

// Scheduling failure codes.
const (
	CodeNoWorkers    Code = "NO_WORKERS"
	CodeGuildAtCap   Code = "GUILD_AT_CAP"
	CodeSessionStale Code = "SESSION_STALE"
)

// Error is a scheduling failure whose message is meant to be shown to the
// end user directly, as opposed to internal infrastructure errors.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// AsError unwraps a user-facing scheduling error, if err carries one.
func AsError(err error) (*Error, bool) {
	var schedErr *Error
	if errors.As(err, &schedErr) {
		return schedErr, true
	}
	return nil, false
}

func errNoWorkers() error {
	return &Error{CodeNoWorkers, "No worker bots available for playback"}
}

func errGuildAtCap() error {
	return &Error{CodeGuildAtCap, "Guild reached concurrent session limit"}
}

func errSessionStale(message string) error {
	return &Error{CodeSessionStale, message}
}
