package epp

import "errors"

var (
	// ErrCommandInFlight is returned when Send is called while another
	// command is outstanding on the same session. The caller contract is
	// one command at a time; interleaving bytes would desynchronize the
	// request/response pairing on the wire.
	ErrCommandInFlight = errors.New("epp: command already in flight on session")

	// ErrSessionNotReady is returned when Send is called on a session that
	// is not authenticated (never connected, failed, or closed).
	ErrSessionNotReady = errors.New("epp: session not ready")

	// ErrResponseTimeout is returned when the registry does not reply
	// within the configured response timeout. The session is marked failed
	// because a late reply may still arrive on the wire.
	ErrResponseTimeout = errors.New("epp: response timeout")

	// ErrMalformedResponse is returned when a frame cannot be decoded.
	ErrMalformedResponse = errors.New("epp: malformed response")

	// ErrUnexpectedGreeting is returned when the registry's greeting is
	// missing or arrives where a command response was expected.
	ErrUnexpectedGreeting = errors.New("epp: unexpected greeting")

	// ErrAuthFailed is returned when login is rejected.
	ErrAuthFailed = errors.New("epp: authentication failed")

	// ErrPoolExhausted is returned when no session becomes available within
	// the acquire timeout. This is a local condition; no command reached
	// the wire and no result exists.
	ErrPoolExhausted = errors.New("epp: pool exhausted")

	// ErrPoolClosed is returned by Acquire after Drain has begun.
	ErrPoolClosed = errors.New("epp: pool closed")
)
