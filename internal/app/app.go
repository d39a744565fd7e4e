package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/authgate/internal/authclient"
	"github.com/florianilch/authgate/internal/browser"
	"github.com/florianilch/authgate/internal/redirect"
	"github.com/florianilch/authgate/internal/session"
)

// shutdownTimeout bounds the graceful shutdown of the callback server.
const shutdownTimeout = 5 * time.Second

// Option configures an App.
type Option func(*options)

type options struct {
	openURL func(url string) error
}

// WithOpenURL overrides how the authorize URL is presented to the user.
// The default opens the system browser.
func WithOpenURL(openURL func(url string) error) Option {
	return func(o *options) {
		o.openURL = openURL
	}
}

// App wires the session manager and its collaborators from configuration.
type App struct {
	cfg      *Config
	callback *redirect.Server
	manager  *session.Manager
}

// New creates a new App instance. No I/O is performed until an operation
// runs.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{
		openURL: browser.OpenURL,
	}
	for _, opt := range opts {
		opt(o)
	}

	store, err := cfg.Auth.NewSecretStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	client, err := authclient.New(cfg.Service.BaseURL, cfg.Service.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	callback := redirect.NewServer(cfg.Login.CallbackPath)

	manager, err := session.New(session.Config{
		ServiceBaseURL: cfg.Service.BaseURL,
		ClientID:       cfg.Service.ClientID,
		RedirectURI:    cfg.RedirectURI(),
		Scopes:         cfg.Service.Scopes,
		LoginTimeout:   cfg.Login.Timeout,
		OpenURL:        o.openURL,
	}, store, client, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	return &App{
		cfg:      cfg,
		callback: callback,
		manager:  manager,
	}, nil
}

// Login runs the full authorization round-trip: it serves the loopback
// redirect endpoint for the duration of the flow and tears it down
// afterwards.
func (a *App) Login(ctx context.Context) (*session.Session, error) {
	loginCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.InfoContext(ctx, "starting callback server", "address", a.cfg.Login.CallbackAddress)
	callbackErrCh, err := a.callback.Start(loginCtx, a.cfg.Login.CallbackAddress)
	if err != nil {
		return nil, fmt.Errorf("callback server startup failed: %w", err)
	}

	g, gCtx := errgroup.WithContext(loginCtx)

	var sess *session.Session
	g.Go(func() error {
		// Releases the monitor goroutine once the flow settles
		defer cancel()

		s, err := a.manager.Login(gCtx)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-callbackErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "callback server runtime error", "error", err)
				return fmt.Errorf("callback server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runErr := g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.callback.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "callback server shutdown failed", "error", err)
	}

	if runErr != nil {
		return nil, runErr
	}
	return sess, nil
}

// AccessToken returns a valid access token, refreshing it if needed.
func (a *App) AccessToken(ctx context.Context) (string, error) {
	return a.manager.AccessToken(ctx)
}

// Sessions returns the current session list.
func (a *App) Sessions(ctx context.Context) ([]session.Session, error) {
	return a.manager.Sessions(ctx)
}

// Logout removes the current session if one exists. Returns the removed
// session, or nil if there was nothing to remove.
func (a *App) Logout(ctx context.Context) (*session.Session, error) {
	sessions, err := a.manager.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	sess := sessions[0]
	if err := a.manager.RemoveSession(ctx, sess.ID); err != nil {
		return nil, err
	}
	return &sess, nil
}
