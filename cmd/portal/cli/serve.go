package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/captcha"
	"github.com/chatapi/portal/internal/config"
	"github.com/chatapi/portal/internal/handler"
	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/server"
	"github.com/chatapi/portal/internal/service"
	"github.com/chatapi/portal/internal/session"
)

const banner = `
 ___  ___  ___ _____ _   _
| _ \/ _ \| _ \_   _/ \ | |
|  _/ (_) |   / | |/ _ \| |__
|_|  \___/|_|_\ |_/_/ \_\____|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		Long:  "Start the HTTP server that lets end users claim and manage their own gateway API keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	applyEnvOverrides(cfg)

	// 2. Set up logger
	logger := newLogger(cfg.Logging, dev)

	if cfg.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required (set it in portal.yaml or PORTAL_UPSTREAM_ENDPOINT)")
	}

	// 3. Backend client
	backend := litellm.NewClient(litellm.Config{
		Endpoint:            cfg.Upstream.Endpoint,
		AdminKey:            cfg.Upstream.AdminKey,
		UserRole:            cfg.Upstream.UserRole,
		MaxParallelRequests: cfg.Upstream.MaxParallelRequests,
		TeamExtended:        cfg.Upstream.TeamExtended,
		TeamPermissionless:  cfg.Upstream.TeamPermissionless,
	}, logger)
	logger.Info("backend client initialized", "endpoint", cfg.Upstream.Endpoint)

	// 4. Session store: external cache when configured, always backed by memory
	var primary session.Store
	redisCfg := session.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if redisCfg.Configured() {
		primary = session.NewRedisStore(redisCfg, logger)
		logger.Info("session cache configured", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	} else {
		logger.Warn("no session cache configured, sessions are in-process only")
	}
	store := session.NewFallback(primary, session.NewMemoryStore(), logger)
	sessions := session.NewManager(store, logger)

	// 5. CAPTCHA verifier
	if cfg.Captcha.Secret == "" {
		logger.Warn("captcha.secret is empty, all CAPTCHA checks will fail")
	}
	verifier := captcha.New(cfg.Captcha.VerifyURL, cfg.Captcha.Secret, logger)

	// 6. Identity resolution and services
	decoder := auth.NewOAuthDecoder(cfg.Auth.OAuthCookie, cfg.Auth.OAuthSecret)
	resolver := auth.NewResolver(decoder, sessions, backend, cfg.Auth.SessionCookie, logger)

	deadline, err := cfg.Keys.Deadline()
	if err != nil {
		return err
	}
	if deadline != nil {
		logger.Info("key expiration deadline set", "expires_by", deadline.Format(time.RFC3339))
	}
	consent := service.NewConsentService(backend, logger)
	keys := service.NewKeyService(backend, sessions, deadline, logger)

	// 7. Build and start HTTP server
	shutdown, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.shutdown_timeout %q: %w", cfg.Server.ShutdownTimeout, err)
	}

	srvCfg := server.Config{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		ShutdownTimeout:      shutdown,
		CORSOrigins:          cfg.Server.CORS.Origins,
		AccountRatePerMinute: cfg.Server.RateLimit.AccountPerMinute,
		MutateRatePerMinute:  cfg.Server.RateLimit.MutatePerMinute,
		Cookies: handler.CookieConfig{
			Name:   cfg.Auth.SessionCookie,
			Secure: cfg.Auth.SecureCookies,
		},
		Version: appVersion,
	}

	srv := server.New(srvCfg, server.Dependencies{
		Backend:  backend,
		Store:    store,
		Sessions: sessions,
		Resolver: resolver,
		Consent:  consent,
		Keys:     keys,
		Captcha:  verifier,
	}, logger)

	fmt.Printf("→ Portal %s\n", appVersion)
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

// loadConfig reads the config file named by --config, falls back to
// ./portal.yaml when present, and otherwise runs on defaults.
func loadConfig() (*config.YAMLConfig, error) {
	if cfgFile != "" {
		return config.LoadYAMLConfig(cfgFile)
	}
	if _, err := os.Stat("portal.yaml"); err == nil {
		return config.LoadYAMLConfig("portal.yaml")
	}
	return config.DefaultYAMLConfig(), nil
}

// applyEnvOverrides lets the secrets that should never live in a config file
// come from the environment instead.
func applyEnvOverrides(cfg *config.YAMLConfig) {
	if v := viper.GetString("upstream_endpoint"); v != "" {
		cfg.Upstream.Endpoint = v
	}
	if v := viper.GetString("upstream_admin_key"); v != "" {
		cfg.Upstream.AdminKey = v
	}
	if v := viper.GetString("oauth_secret"); v != "" {
		cfg.Auth.OAuthSecret = v
	}
	if v := viper.GetString("captcha_secret"); v != "" {
		cfg.Captcha.Secret = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
