package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"visionchat/internal/auth"
	"visionchat/internal/config"
	"visionchat/internal/httpapi"
	"visionchat/internal/manager"
	"visionchat/internal/store"
)

func newServeCmd(opts *Options, std streams) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API (auth, hello, describe)",
		Example: "  visionchat serve --addr :5000\n  visionchat serve --config visionchat.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg, newLogger(cfg, std.err))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config, :5000)")
	return cmd
}

// server is the assembled HTTP service and everything it owns.
type server struct {
	handler http.Handler
	mgr     *manager.Manager
	closers []func() error
}

func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServer opens the model, the user store and the token store and wires
// them behind the router.
func buildServer(ctx context.Context, cfg config.Config, log zerolog.Logger) (*server, error) {
	s := &server{}
	fail := func(err error) (*server, error) {
		_ = s.Close()
		return nil, err
	}

	m, err := openModel(cfg, log)
	if err != nil {
		return fail(err)
	}
	s.closers = append(s.closers, m.closer.Close)

	users, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fail(fmt.Errorf("database: %w", err))
	}
	s.closers = append(s.closers, users.Close)

	tokens, err := openTokens(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if c, ok := tokens.(interface{ Close() error }); ok {
		s.closers = append(s.closers, c.Close)
	}

	accounts := auth.NewService(users, tokens, cfg.Auth.BcryptCost, seconds(cfg.Auth.TokenTTLSeconds))
	if cfg.Database.Seed {
		seeded, err := users.Seed(ctx, store.SampleUsers, accounts.Hash)
		if err != nil {
			return fail(fmt.Errorf("seed: %w", err))
		}
		log.Info().Bool("inserted", seeded).Msg("seed users")
	}

	s.mgr = manager.New(manager.ManagerConfig{
		Generator:     m.gen,
		Images:        newImageResolver(cfg),
		Model:         m.info,
		MaxQueueDepth: cfg.Server.MaxQueueDepth,
		MaxWait:       seconds(cfg.Server.MaxWaitSeconds),
		InferTimeout:  seconds(cfg.Server.InferTimeoutSeconds),
		Probe:         m.ping,
	})
	s.mgr.SetEventPublisher(manager.LogPublisher{Log: log})

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.Log.Level)
	httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.Server.CORSEnabled, cfg.Server.CORSAllowedOrigins, cfg.Server.CORSAllowedMethods, cfg.Server.CORSAllowedHeaders)
	s.handler = httpapi.NewMux(s.mgr, accounts)
	return s, nil
}

// openTokens returns the configured session token store.
func openTokens(ctx context.Context, cfg config.Config) (auth.TokenStore, error) {
	switch strings.ToLower(cfg.Auth.TokenStore) {
	case "", "memory":
		return auth.NewMemoryTokens(), nil
	case "redis":
		c, err := auth.DialRedis(ctx, cfg.Auth.RedisAddr, cfg.Auth.RedisPassword, cfg.Auth.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return auth.NewRedisTokens(c), nil
	default:
		return nil, fmt.Errorf("config: unknown token store %q", cfg.Auth.TokenStore)
	}
}

func runServe(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	s, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	return serve(ctx, s, ln, log)
}

// serve runs until ctx is done, then drains the manager and shuts down.
func serve(ctx context.Context, s *server, ln net.Listener, log zerolog.Logger) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	defer httpapi.SetBaseContext(nil)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("visionchat listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.mgr.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("drain incomplete, canceling in-flight requests")
		cancelBase()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	return nil
}
