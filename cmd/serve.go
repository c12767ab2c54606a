package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/markb/plexgate/internal/log"
	"github.com/markb/plexgate/internal/oauth"
	"github.com/markb/plexgate/internal/observability"
	"github.com/markb/plexgate/internal/server"
	"github.com/markb/plexgate/internal/statestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Plexgate server",
	Long:  `Starts the HTTP server exposing the Plex OAuth endpoints under /api/v1/auth/plex.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Init(buildLogConfig(cmd))

		plexCfg := buildPlexConfig(cmd)
		var client *oauth.Client
		if plexCfg.ClientID != "" && plexCfg.RedirectURI != "" {
			client = oauth.NewClient(*plexCfg)
		} else {
			log.Warn("Plex OAuth not configured; auth endpoints will answer 503. " +
				"Set PLEXGATE_CLIENT_ID and PLEXGATE_REDIRECT_URI.")
		}

		store, err := buildStateStore(cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize state store: %w", err)
		}
		defer store.Close()

		ttl, _ := cmd.Flags().GetDuration("state-ttl")
		states := oauth.NewStateManager(store, ttl)

		tel, telCleanup, err := observability.Init(cmd.Context(), buildOTelConfig(cmd))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer telCleanup()

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		domain := stringSetting(cmd, "https-domain", "PLEXGATE_HTTPS_DOMAIN")

		srv := server.New(server.Config{
			Addr:          fmt.Sprintf("%s:%d", host, port),
			RateLimit:     buildRateLimit(cmd),
			SecureCookies: domain != "",
			TLSDomain:     domain,
			CertDir:       stringSetting(cmd, "cert-dir", "PLEXGATE_CERT_DIR"),
			Telemetry:     tel,
		}, client, states)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if domain != "" {
				errCh <- srv.ListenAndServeTLS()
			} else {
				errCh <- srv.ListenAndServe()
			}
		}()

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
		return nil
	},
}

// stringSetting reads a flag, falling back to an environment variable.
// Flags override the environment.
func stringSetting(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()
	if v := stringSetting(cmd, "log-level", "PLEXGATE_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := stringSetting(cmd, "log-format", "PLEXGATE_LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	return cfg
}

// buildPlexConfig creates the provider config from environment variables and
// CLI flags. Priority: CLI flags > environment variables > defaults.
func buildPlexConfig(cmd *cobra.Command) *oauth.Config {
	cfg := &oauth.Config{
		ClientID:     stringSetting(cmd, "client-id", "PLEXGATE_CLIENT_ID"),
		ClientSecret: os.Getenv("PLEXGATE_CLIENT_SECRET"),
		RedirectURI:  stringSetting(cmd, "redirect-uri", "PLEXGATE_REDIRECT_URI"),
		Product:      stringSetting(cmd, "product", "PLEXGATE_PRODUCT"),
		Version:      Version,
	}

	// Endpoint overrides, mainly for staging and tests.
	cfg.AuthURL = os.Getenv("PLEXGATE_AUTH_URL")
	cfg.TokenURL = os.Getenv("PLEXGATE_TOKEN_URL")
	cfg.RevokeURL = os.Getenv("PLEXGATE_REVOKE_URL")
	cfg.UserInfoURL = os.Getenv("PLEXGATE_USERINFO_URL")

	if v := os.Getenv("PLEXGATE_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}

// buildOTelConfig creates the telemetry config. Disabled unless an exporter
// is selected.
func buildOTelConfig(cmd *cobra.Command) *observability.Config {
	cfg := observability.NewConfig()
	if v := stringSetting(cmd, "otel-exporter", "PLEXGATE_OTEL_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv("PLEXGATE_OTEL_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("PLEXGATE_OTEL_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRate = rate
		}
	}
	if cfg.ShouldEnable() {
		cfg.MetricsEnabled = true
		cfg.TracesEnabled = true
	}
	return cfg
}

func buildRateLimit(cmd *cobra.Command) server.RateLimitConfig {
	cfg := server.DefaultRateLimit()

	if v := os.Getenv("PLEXGATE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Requests = n
		}
	}
	if v := os.Getenv("PLEXGATE_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Window = d
		}
	}

	if n, _ := cmd.Flags().GetInt("rate-limit"); n > 0 {
		cfg.Requests = n
	}
	if d, _ := cmd.Flags().GetDuration("rate-limit-window"); d > 0 {
		cfg.Window = d
	}
	if disabled, _ := cmd.Flags().GetBool("no-rate-limit"); disabled {
		cfg.Disabled = true
	}
	return cfg
}

// buildStateStore picks the state store backend: memory (default), redis,
// or sqlite.
func buildStateStore(cmd *cobra.Command) (statestore.Store, error) {
	backend := stringSetting(cmd, "store", "PLEXGATE_STORE")

	switch backend {
	case "", "memory":
		return statestore.NewMemoryStore(time.Minute), nil
	case "redis":
		addr := stringSetting(cmd, "redis-addr", "PLEXGATE_REDIS_ADDR")
		if addr == "" {
			addr = "localhost:6379"
		}
		return statestore.NewRedisStore(context.Background(), &redis.Options{
			Addr:     addr,
			Password: os.Getenv("PLEXGATE_REDIS_PASSWORD"),
		})
	case "sqlite":
		path := stringSetting(cmd, "db", "PLEXGATE_DB_PATH")
		if path == "" {
			path = "plexgate.db"
		}
		return statestore.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want memory, redis, or sqlite)", backend)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("client-id", "", "Plex OAuth client identifier")
	serveCmd.Flags().String("redirect-uri", "", "OAuth callback URL registered with Plex")
	serveCmd.Flags().String("product", "", "Product name sent in X-Plex-Product")
	serveCmd.Flags().Duration("state-ttl", 0, "Lifetime of a pending login attempt (default 10m)")
	serveCmd.Flags().Int("rate-limit", 0, "Max auth requests per client IP per window (default 5)")
	serveCmd.Flags().Duration("rate-limit-window", 0, "Rate limit window (default 1m)")
	serveCmd.Flags().Bool("no-rate-limit", false, "Disable rate limiting")
	serveCmd.Flags().String("store", "", "State store backend: memory, redis, or sqlite (default memory)")
	serveCmd.Flags().String("redis-addr", "", "Redis address for the redis store")
	serveCmd.Flags().String("db", "", "Database path for the sqlite store")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-format", "", "Log format: text or json")
	serveCmd.Flags().String("otel-exporter", "", "OpenTelemetry exporter: none, stdout, or otlp")
	serveCmd.Flags().String("https-domain", "", "Serve HTTPS with a Let's Encrypt certificate for this domain")
	serveCmd.Flags().String("cert-dir", "", "Directory to cache TLS certificates")
}
