// Package session owns the OAuth session and token lifecycle.
//
// The Manager orchestrates login (authorize URL, browser launch, redirect
// wait, code exchange, profile fetch, persistence), logout, and the gated
// access-token read that silently refreshes near expiry.
//
// Two records live in the secret store: the sessions list (the externally
// visible identity, at most one entry) and the account (the internally
// visible token material). The two are created together at login, mutated
// together at refresh, and removed together at logout; the account is
// always persisted before the sessions list, so readers must tolerate a
// session whose access token lags the account's and re-derive from the
// account as needed.
package session
