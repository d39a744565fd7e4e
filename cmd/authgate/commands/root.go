package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/authgate/internal/app"
	"github.com/florianilch/authgate/internal/observability"
	"github.com/florianilch/authgate/internal/session"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "authgate",
		Usage: "OAuth session manager",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "service--base-url",
				Usage: "authorization service base URL",
			},
			&cli.StringFlag{
				Name:  "service--client-id",
				Usage: "OAuth client identifier",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			tokenCommand(),
			logoutCommand(),
			statusCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate against the authorization service",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "print the authorize URL instead of opening a browser",
			},
			&cli.DurationFlag{
				Name:  "login--timeout",
				Usage: "how long to wait for the authorization redirect",
				Value: app.DefaultConfigLoginTimeout,
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd, appOptions(cmd)...)
	if err != nil {
		return err
	}

	sess, err := application.Login(ctx)
	if err != nil {
		if errors.Is(err, session.ErrLoginTimeout) {
			return fmt.Errorf("no authorization redirect arrived in time, try again: %w", err)
		}
		return err
	}

	fmt.Printf("Logged in as %s\n", sess.Label)
	return nil
}

// appOptions decides how the authorize URL reaches the user: print it when
// asked to, or when there is no terminal to open a browser from.
func appOptions(cmd *cli.Command) []app.Option {
	if !cmd.Bool("no-browser") && term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return []app.Option{
		app.WithOpenURL(func(url string) error {
			fmt.Printf("Visit the following URL to continue authentication:\n%s\n", url)
			return nil
		}),
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "print a valid access token, refreshing it if necessary",
		Action: tokenAction,
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}

	token, err := application.AccessToken(ctx)
	if err != nil {
		if errors.Is(err, session.ErrLoginRequired) {
			return errors.New("not logged in, run 'authgate login' first")
		}
		return err
	}

	fmt.Println(token)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "remove the current session",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}

	sess, err := application.Logout(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		fmt.Println("No active session")
		return nil
	}

	fmt.Printf("Logged out %s\n", sess.Label)
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the current session",
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}

	sessions, err := application.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No active session")
		return nil
	}

	sess := sessions[0]
	fmt.Printf("Logged in as %s (session %s)\n", sess.Label, sess.ID)
	if len(sess.Scopes) > 0 {
		fmt.Printf("Scopes: %v\n", sess.Scopes)
	}
	return nil
}

// setup loads configuration, installs the logging pipeline, and builds the
// application.
func setup(cmd *cli.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	return application, nil
}
