package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/authgate/internal/authclient"
	"github.com/florianilch/authgate/internal/pkce"
	"github.com/florianilch/authgate/internal/redirect"
	"github.com/florianilch/authgate/internal/secretstore"
)

// Storage keys for the two logical records multiplexed over the secret store.
const (
	keySessions = "sessions"
	keyAccount  = "account"
)

const (
	// graceTime is the safety margin before declared expiry during which
	// the access token is proactively refreshed.
	graceTime = 10 * time.Second

	// DefaultLoginTimeout bounds the wait for the authorization redirect.
	DefaultLoginTimeout = 60 * time.Second
)

// TokenClient is the surface of the remote token endpoint the manager
// calls.
type TokenClient interface {
	ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*authclient.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*authclient.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (*authclient.Profile, error)
}

// Config describes a Manager's collaborators and identity against the
// authorization service.
type Config struct {
	// ServiceBaseURL is the authorization service root, without a trailing
	// slash.
	ServiceBaseURL string

	// ClientID is the public OAuth2 client identifier.
	ClientID string

	// RedirectURI is where the service sends the browser after consent.
	RedirectURI string

	// Scopes are recorded on created sessions.
	Scopes []string

	// LoginTimeout bounds the redirect wait. Defaults to DefaultLoginTimeout.
	LoginTimeout time.Duration

	// OpenURL launches the authorize URL in a browser. A failed launch is
	// logged but does not abort the login; the URL is also the user's to
	// open by hand.
	OpenURL func(url string) error

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Manager is the auth flow controller: it owns login, logout, and the
// gated access-token read.
type Manager struct {
	cfg    Config
	store  secretstore.Store
	client TokenClient
	source redirect.Source

	// pair is generated once at construction; verifier and challenge are
	// immutable for the Manager's lifetime.
	pair pkce.Pair

	// mu serializes every read-modify-write against the persisted records.
	mu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]func(ChangeEvent)
	nextObsID int
}

// New creates a Manager. The PKCE pair is generated here, once; no other
// I/O happens until the first operation.
func New(cfg Config, store secretstore.Store, client TokenClient, source redirect.Source) (*Manager, error) {
	if cfg.ServiceBaseURL == "" {
		return nil, fmt.Errorf("missing service base URL")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("missing client ID")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("missing redirect URI")
	}
	if store == nil {
		return nil, fmt.Errorf("missing secret store")
	}
	if client == nil {
		return nil, fmt.Errorf("missing token client")
	}
	if source == nil {
		return nil, fmt.Errorf("missing redirect source")
	}

	if cfg.LoginTimeout == 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = func(string) error { return nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	pair, err := pkce.NewPair()
	if err != nil {
		return nil, fmt.Errorf("generating PKCE pair: %w", err)
	}

	return &Manager{
		cfg:       cfg,
		store:     store,
		client:    client,
		source:    source,
		pair:      pair,
		observers: make(map[int]func(ChangeEvent)),
	}, nil
}

// AuthorizeURL returns the URL the user's browser is sent to.
func (m *Manager) AuthorizeURL() string {
	conf := &oauth2.Config{
		ClientID:    m.cfg.ClientID,
		RedirectURL: m.cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL: m.cfg.ServiceBaseURL + "/o/authorize/",
		},
	}
	return conf.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", m.pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Login runs the authorization-code round-trip: launch the browser, await
// the redirect, exchange the code, fetch the profile, persist the new
// account and session, and notify observers.
//
// Any failure aborts the whole flow; no partial state is persisted and a
// previously existing session is left untouched.
func (m *Manager) Login(ctx context.Context) (*Session, error) {
	authorizeURL := m.AuthorizeURL()

	// Fire-and-forget: the user can always open the URL by hand.
	if err := m.cfg.OpenURL(authorizeURL); err != nil {
		slog.WarnContext(ctx, "failed to open browser", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.LoginTimeout)
	defer cancel()

	code, err := redirect.Await(waitCtx, m.source, func(event redirect.Event, resolve func(string), reject func(error)) {
		code := event.URL.Query().Get("code")
		if code == "" {
			reject(ErrMissingCode)
			return
		}
		resolve(code)
	})
	if err != nil {
		// Distinguish our timeout from the caller cancelling the whole flow.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrLoginTimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("login canceled: %w", err)
		}
		return nil, err
	}

	token, err := m.client.ExchangeCode(ctx, code, m.pair.Verifier, m.cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	profile, err := m.client.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}

	sess := Session{
		ID:          uuid.NewString(),
		AccessToken: token.AccessToken,
		Label:       profile.Username,
		Scopes:      slices.Clone(m.cfg.Scopes),
	}

	m.mu.Lock()
	err = m.persist(ctx, m.account(token), []Session{sess})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "logged in", "label", sess.Label, "session_id", sess.ID)
	m.notify(ChangeEvent{Added: []Session{sess}})
	return &sess, nil
}

// AccessToken returns an access token that is valid for at least the grace
// period, refreshing it against the token endpoint if necessary.
//
// A refresh failure leaves the existing session and account untouched; the
// caller should prompt for a fresh login.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	sessions, err := m.readSessions(ctx)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	if len(sessions) == 0 {
		m.mu.Unlock()
		return "", ErrLoginRequired
	}
	sess := sessions[0]

	account, err := m.readAccount(ctx)
	if errors.Is(err, secretstore.ErrNotFound) {
		m.mu.Unlock()
		return "", ErrInconsistentState
	}
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	// Not near expiry: hand out the cached token, zero network calls.
	if m.cfg.Now().Unix() < account.ExpiresAt-int64(graceTime.Seconds()) {
		m.mu.Unlock()
		return account.AccessToken, nil
	}

	slog.DebugContext(ctx, "access token near expiry, refreshing", "expires_at", account.ExpiresAt)

	token, err := m.client.Refresh(ctx, account.RefreshToken)
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("refreshing access token: %w", err)
	}

	next := m.account(token)
	if next.RefreshToken == "" {
		// The provider may rotate refresh tokens; keep the old one only
		// when no replacement was supplied.
		next.RefreshToken = account.RefreshToken
	}

	sess.AccessToken = next.AccessToken
	err = m.persist(ctx, next, []Session{sess})
	m.mu.Unlock()
	if err != nil {
		return "", err
	}

	m.notify(ChangeEvent{Changed: []Session{sess}})
	return next.AccessToken, nil
}

// RemoveSession removes the session with the given id. Removing an unknown
// id is a no-op: nothing is written and no event fires.
func (m *Manager) RemoveSession(ctx context.Context, id string) error {
	m.mu.Lock()

	sessions, err := m.readSessions(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	idx := slices.IndexFunc(sessions, func(s Session) bool { return s.ID == id })
	if idx < 0 {
		m.mu.Unlock()
		return nil
	}
	removed := sessions[idx]
	remaining := slices.Delete(slices.Clone(sessions), idx, idx+1)

	if err := m.writeSessions(ctx, remaining); err != nil {
		m.mu.Unlock()
		return err
	}

	// The account record has no life of its own once its session is gone.
	var deleteErr error
	if len(remaining) == 0 {
		if err := m.store.Delete(ctx, keyAccount); err != nil {
			deleteErr = fmt.Errorf("removing account record: %w", err)
		}
	}
	m.mu.Unlock()

	slog.InfoContext(ctx, "logged out", "session_id", removed.ID)
	m.notify(ChangeEvent{Removed: []Session{removed}})
	return deleteErr
}

// Sessions returns the current session list. An absent record reads as an
// empty list.
func (m *Manager) Sessions(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readSessions(ctx)
}

// OnSessionsChanged registers an observer for session-change events and
// returns its removal function. Observers are invoked synchronously after
// the mutation is persisted and must not call back into the Manager.
func (m *Manager) OnSessionsChanged(fn func(ChangeEvent)) (remove func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) notify(event ChangeEvent) {
	m.obsMu.Lock()
	observers := make([]func(ChangeEvent), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range observers {
		fn(event)
	}
}

// account converts a token endpoint response into the persisted record.
func (m *Manager) account(token *authclient.Token) Account {
	return Account{
		Type:         AccountTypeOAuth,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    m.cfg.Now().Unix() + token.ExpiresIn,
	}
}

// persist writes the account record, then the sessions list. The ordering
// is load-bearing: a crash between the two leaves the account ahead of the
// sessions, which readers tolerate.
func (m *Manager) persist(ctx context.Context, account Account, sessions []Session) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	if err := m.store.Set(ctx, keyAccount, string(data)); err != nil {
		return fmt.Errorf("persisting account: %w", err)
	}
	return m.writeSessions(ctx, sessions)
}

func (m *Manager) writeSessions(ctx context.Context, sessions []Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}
	if err := m.store.Set(ctx, keySessions, string(data)); err != nil {
		return fmt.Errorf("persisting sessions: %w", err)
	}
	return nil
}

func (m *Manager) readSessions(ctx context.Context) ([]Session, error) {
	data, err := m.store.Get(ctx, keySessions)
	if errors.Is(err, secretstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	var sessions []Session
	if err := json.Unmarshal([]byte(data), &sessions); err != nil {
		return nil, fmt.Errorf("decoding sessions: %w", err)
	}
	return sessions, nil
}

func (m *Manager) readAccount(ctx context.Context) (Account, error) {
	data, err := m.store.Get(ctx, keyAccount)
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("reading account: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return Account{}, fmt.Errorf("decoding account: %w", err)
	}
	return account, nil
}
