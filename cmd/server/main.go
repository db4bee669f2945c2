package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/app"
	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	issueToken bool
	crewID     int64
	role       string
}

func parseOptions(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("crewbell-server", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration directory or file")
	fs.BoolVar(&opts.issueToken, "issue-token", false, "Print an access token for -crew-id and exit")
	fs.Int64Var(&opts.crewID, "crew-id", 0, "Crew member id for -issue-token")
	fs.StringVar(&opts.role, "role", iauth.RoleCrew, "Role for -issue-token (crew or admin)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args, out)
	if err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.issueToken {
		return issueToken(cfg, opts, out)
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("generated runtime secret; tokens will not survive a restart", zap.String("key", key))
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		stack.Shutdown(context.Background(), log)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; the hub closes them.
	stack.Hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stack.Shutdown(shutdownCtx, log)
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	stack.Shutdown(shutdownCtx, log)

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// issueToken prints a signed access token. There is no login flow, so operators
// mint tokens for consoles and cabin buttons with the configured secret.
func issueToken(cfg *app.Config, opts options, out io.Writer) error {
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured to issue tokens")
	}
	if opts.crewID <= 0 {
		return errors.New("-crew-id must be a positive id")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return err
	}
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		CrewID: opts.crewID,
		Role:   opts.role,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
