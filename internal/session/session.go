package session

// AccountTypeOAuth marks accounts created by the authorization-code flow.
const AccountTypeOAuth = "oauth"

// Account is the internally held token material backing the session.
// It is overwritten wholesale on every successful token exchange.
type Account struct {
	Type         string `json:"type"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is a Unix timestamp in seconds.
	ExpiresAt int64 `json:"expiresAtTimestampInSeconds"`
}

// Session is the externally visible identity record.
type Session struct {
	ID          string   `json:"id"`
	AccessToken string   `json:"accessToken"`
	Label       string   `json:"displayLabel"`
	Scopes      []string `json:"scopes"`
}

// ChangeEvent describes a mutation of the session set, delivered to
// registered observers.
type ChangeEvent struct {
	Added   []Session
	Removed []Session
	Changed []Session
}
