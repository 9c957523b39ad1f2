package conversation

import (
	"fmt"
	"strings"
)

// ErrorKind is a coarse category used by callers to pick user-facing copy.
type ErrorKind string

const (
	ErrorKindConnection    ErrorKind = "connection"
	ErrorKindUnauthorized  ErrorKind = "unauthorized"
	ErrorKindMicPermission ErrorKind = "microphone-permission"
	ErrorKindMicNotFound   ErrorKind = "microphone-not-found"
	ErrorKindMicBusy       ErrorKind = "microphone-busy"
	ErrorKindPlayback      ErrorKind = "playback"
	ErrorKindSetup         ErrorKind = "setup"
)

// Error is a conversation failure with a stable code for logs and support.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// classifyConnectionError maps a session failure onto a stable error code.
// The remote endpoint reports auth rejections as close reasons rather than
// structured errors, so this falls back to matching the detail text.
func classifyConnectionError(detail string, cause error) *Error {
	probe := strings.ToLower(detail)
	if cause != nil {
		probe += " " + strings.ToLower(cause.Error())
	}

	for _, marker := range []string{"401", "403", "unauthorized", "unauthenticated", "api key", "permission denied"} {
		if strings.Contains(probe, marker) {
			return newError(ErrorKindUnauthorized, "AUTH-01",
				"The service rejected the credentials. Check the API key.", cause)
		}
	}

	message := "The conversation service reported an error."
	if detail != "" {
		message = detail
	}
	return newError(ErrorKindConnection, "API-01", message, cause)
}

// classifyCaptureError maps a microphone failure onto a stable error code.
func classifyCaptureError(cause error) *Error {
	probe := ""
	if cause != nil {
		probe = strings.ToLower(cause.Error())
	}

	switch {
	case strings.Contains(probe, "access denied") || strings.Contains(probe, "permission"):
		return newError(ErrorKindMicPermission, "MIC-01",
			"Microphone access was denied.", cause)
	case strings.Contains(probe, "no device") || strings.Contains(probe, "not found") || strings.Contains(probe, "no such device"):
		return newError(ErrorKindMicNotFound, "MIC-02",
			"No microphone was found.", cause)
	case strings.Contains(probe, "busy") || strings.Contains(probe, "in use"):
		return newError(ErrorKindMicBusy, "MIC-03",
			"The microphone is in use by another application.", cause)
	default:
		return newError(ErrorKindSetup, "START-01",
			"Failed to start the conversation.", cause)
	}
}

func playbackError(cause error) *Error {
	return newError(ErrorKindPlayback, "PLAYBACK-01",
		"Audio playback failed.", cause)
}

func startError(cause error) *Error {
	return newError(ErrorKindSetup, "START-01",
		"Failed to start the conversation.", cause)
}
