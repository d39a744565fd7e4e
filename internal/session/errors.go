package session

import "errors"

var (
	// ErrLoginRequired reports that no session exists; the caller should
	// prompt the user to log in.
	ErrLoginRequired = errors.New("not logged in")

	// ErrInconsistentState reports that a session exists but its account
	// record is missing. The two are only ever written together, so this
	// indicates corrupted storage rather than a recoverable condition.
	ErrInconsistentState = errors.New("session exists but account record is missing")

	// ErrLoginTimeout reports that no redirect arrived within the login
	// timeout.
	ErrLoginTimeout = errors.New("timed out waiting for the authorization redirect")

	// ErrMissingCode reports a redirect that carried no authorization code.
	ErrMissingCode = errors.New("authorization redirect carried no code parameter")
)
