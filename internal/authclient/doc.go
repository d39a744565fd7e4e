// Package authclient implements the three fixed requests the session
// manager makes against the authorization service: authorization-code
// exchange, refresh-token exchange, and profile fetch.
//
// Transport-level detail (status codes, response bodies, network errors)
// is logged but never propagated verbatim; callers see a uniform
// ErrUnexpected they can show to a user. The one exception is a failed
// connection, whose message carries no response data and is safe to
// surface.
package authclient
