package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/reyrey-auth/internal/app"
	"github.com/florianilch/reyrey-auth/internal/auth"
	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/observability"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

const flushTimeout = 5 * time.Second

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Stdout, os.Environ).Run(ctx, args)
}

func newRootCommand(stdout io.Writer, environ func() []string) *cli.Command {
	r := &runner{stdout: stdout, environ: environ}

	return &cli.Command{
		Name:   "reyrey-auth",
		Usage:  "Reynolds & Reynolds CRM token manager",
		Writer: stdout,
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
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "token-dir",
				Usage: "directory for token files, database and logs (default ~/.reyrey)",
			},
			&cli.StringSliceFlag{
				Name:  "providers",
				Usage: "token stores in lookup order (env_file, json_file, database, api, keyring)",
			},
		},
		// Exit codes are handled by main
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			r.getCommand(),
			r.setCommand(),
			r.checkCommand(),
			r.loginCommand(),
			r.headersCommand(),
			r.requestCommand(),
			r.sessionCommand(),
			r.serveCommand(),
		},
	}
}

func nameFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "name",
		Usage: "token name",
		Value: auth.DefaultTokenName,
	}
}

// runner holds what command actions share.
type runner struct {
	stdout  io.Writer
	environ func() []string
}

// setup loads the configuration, installs logging and creates the app.
// The returned cleanup flushes logs and closes stores.
func (r *runner) setup(ctx context.Context, cmd *cli.Command, optFns ...func(*app.Config) app.Option) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, r.environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, cfg.LogLevel.String(), string(cfg.LogFormat), cfg.LogDir())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	opts := make([]app.Option, 0, len(optFns))
	for _, fn := range optFns {
		opts = append(opts, fn(cfg))
	}

	application, err := app.New(cfg, opts...)
	if err != nil {
		_ = shutdownLogs(context.Background())
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func() {
		if err := application.Close(); err != nil {
			slog.Warn("failed to close token stores", "error", err)
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		_ = shutdownLogs(flushCtx)
	}
	return application, cleanup, nil
}

func (r *runner) getCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "print the current token",
		Flags: []cli.Flag{
			nameFlag(),
			&cli.BoolFlag{Name: "check", Usage: "validate the token with the vendor"},
			&cli.BoolFlag{Name: "login", Usage: "log in through the browser when no valid token is stored"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			name := cmd.String("name")
			token, err := a.Service().GetToken(ctx, name,
				auth.WithVerify(cmd.Bool("check")),
				auth.WithLoginFallback(cmd.Bool("login")),
			)
			if errors.Is(err, auth.ErrNoToken) {
				return cli.Exit(fmt.Sprintf("No token found for %s", name), 1)
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(r.stdout, token)
			return err
		},
	}
}

func (r *runner) setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "save a token to every store",
		ArgsUsage: "<token>",
		Flags: []cli.Flag{
			nameFlag(),
			&cli.StringFlag{Name: "domain", Usage: "cookie domain", Value: tokenstore.DefaultDomain},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			value := cmd.Args().First()
			if value == "" {
				return cli.Exit("token argument is required", 2)
			}

			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			token := tokenstore.Token{Value: value, Name: cmd.String("name"), Domain: cmd.String("domain")}
			if !a.Service().SaveToken(ctx, token) {
				return cli.Exit("Failed to save token", 1)
			}

			_, err = fmt.Fprintf(r.stdout, "Token successfully saved: %s\n", browser.Redact(value))
			return err
		},
	}
}

func (r *runner) checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "check whether the stored token is accepted by the vendor",
		Flags: []cli.Flag{nameFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			name := cmd.String("name")
			token, err := a.Service().GetToken(ctx, name, auth.WithVerify(false))
			if errors.Is(err, auth.ErrNoToken) {
				return cli.Exit(fmt.Sprintf("No token found for %s", name), 1)
			}
			if err != nil {
				return err
			}

			if !a.Service().CheckToken(ctx, token, name) {
				return cli.Exit(fmt.Sprintf("Token for %s is invalid or expired", name), 1)
			}

			_, err = fmt.Fprintf(r.stdout, "Token for %s is valid\n", name)
			return err
		},
	}
}

func (r *runner) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in through the browser and save the new token",
		Flags: []cli.Flag{
			nameFlag(),
			&cli.BoolFlag{Name: "headless", Usage: "run the browser without a window", Value: true},
			&cli.DurationFlag{Name: "login--timeout", Usage: "login timeout", Value: app.DefaultConfigLoginTimeout},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd, func(cfg *app.Config) app.Option {
				return app.WithCredentials(promptCredentials(cfg.EnvFile, os.Stdin, os.Stderr))
			})
			if err != nil {
				return err
			}
			defer cleanup()

			name := cmd.String("name")
			token, err := a.Service().NewToken(ctx, name)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Login failed: %v", err), 1)
			}

			_, err = fmt.Fprintf(r.stdout, "Logged in, token saved: %s\n", browser.Redact(token))
			return err
		},
	}
}

func (r *runner) headersCommand() *cli.Command {
	return &cli.Command{
		Name:  "headers",
		Usage: "print the vendor API headers for the current token as JSON",
		Flags: []cli.Flag{nameFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			headers, err := a.Service().AuthHeaders(ctx, cmd.String("name"))
			if errors.Is(err, auth.ErrNoToken) {
				return cli.Exit(fmt.Sprintf("No token found for %s", cmd.String("name")), 1)
			}
			if err != nil {
				return err
			}

			flat := make(map[string]string, len(headers))
			for key := range headers {
				flat[key] = headers.Get(key)
			}

			enc := json.NewEncoder(r.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(flat)
		},
	}
}

func (r *runner) requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "call a vendor API endpoint with the current token and print the response body",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			nameFlag(),
			&cli.StringFlag{Name: "method", Aliases: []string{"X"}, Usage: "HTTP method", Value: http.MethodGet},
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "request body"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target := cmd.Args().First()
			if target == "" {
				return cli.Exit("url argument is required", 2)
			}

			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var body io.Reader
			if data := cmd.String("data"); data != "" {
				body = strings.NewReader(data)
			}
			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cmd.String("method")), target, body)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Invalid request: %v", err), 2)
			}

			resp, err := a.Service().Client(ctx, cmd.String("name")).Do(req)
			if errors.Is(err, auth.ErrNoToken) {
				return cli.Exit(fmt.Sprintf("No token found for %s", cmd.String("name")), 1)
			}
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if _, err := io.Copy(r.stdout, resp.Body); err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return cli.Exit(fmt.Sprintf("Request failed with status %d", resp.StatusCode), 1)
			}
			return nil
		},
	}
}

func (r *runner) sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "open an authenticated browser session, reusing a stored token when possible",
		Flags: []cli.Flag{
			nameFlag(),
			&cli.StringFlag{Name: "token", Usage: "token to try before the stored ones"},
			&cli.BoolFlag{Name: "check", Usage: "validate tokens with the vendor first", Value: true},
			&cli.BoolFlag{Name: "headless", Usage: "run the browser without a window", Value: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := a.Service().AuthenticatedSession(ctx, cmd.String("token"), cmd.String("name"), cmd.Bool("check"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("Could not open session: %v", err), 1)
			}
			defer func() { _ = session.Close() }()

			_, err = fmt.Fprintf(r.stdout, "Session %s authenticated with token %s\n", session.ID, browser.Redact(session.Token))
			return err
		},
	}
}

func (r *runner) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve stored tokens over HTTP for remote api stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--address",
				Usage: "listen address",
				Value: app.DefaultConfigServerAddress,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, cleanup, err := r.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			slog.InfoContext(ctx, "starting")

			if err := a.Serve(ctx); err != nil {
				return fmt.Errorf("token server failed: %w", err)
			}

			slog.InfoContext(ctx, "stopped gracefully")
			return nil
		},
	}
}
