package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/dispatch"
	"github.com/foyerhq/foyer/internal/server"
	"github.com/foyerhq/foyer/internal/service"
	"github.com/foyerhq/foyer/internal/sfu"
)

const banner = `
 ___ _____   _____ ___
| __/ _ \ \ / / __| _ \
| _| (_) \ V /| _||   /
|_| \___/ |_| |___|_|_\
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Foyer API server",
		Long:  "Start the HTTP server that issues join tokens, serves the admin API, and delivers webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	ctx := context.Background()

	// 1. Resolve configuration: flags > env > foyer.yaml > defaults.
	// The typed loader expands ${VAR} references; viper covers env and
	// flag overrides, so its values get the same expansion.
	cfg := loadYAMLConfig()
	if v := os.ExpandEnv(viper.GetString("sfu.url")); v != "" {
		cfg.SFU.URL = v
	}
	if v := os.ExpandEnv(viper.GetString("sfu.api_key")); v != "" {
		cfg.SFU.APIKey = v
	}
	if v := os.ExpandEnv(viper.GetString("sfu.api_secret")); v != "" {
		cfg.SFU.APISecret = v
	}
	if v := os.ExpandEnv(viper.GetString("auth.admin_password")); v != "" {
		cfg.Auth.AdminPassword = v
	}
	host := viper.GetString("server.host")
	port := viper.GetInt("server.port")

	// 2. Set up logger
	logger := newLogger(cfg.Logging, dev)

	// 3. Initialize the store: memory-resident unless a data dir is given.
	storeDir := resolveDataDir()
	store, err := config.NewStore(storeDir)
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()
	if storeDir == "" {
		logger.Info("config store initialized", "mode", "memory")
	} else {
		logger.Info("config store initialized", "path", storeDir)
	}

	// 4. Media server client
	sfuClient := sfu.NewHTTPClient(cfg.SFU.URL, cfg.SFU.APIKey, cfg.SFU.APISecret, logger)
	if cfg.SFU.APIKey == "" || cfg.SFU.APISecret == "" {
		logger.Warn("no media server credentials configured - join tokens will not be accepted upstream")
	}

	// 5. Webhook dispatcher
	dispatcher := dispatch.New(store, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, logger)
	dispatcher.Start()
	logger.Info("webhook dispatcher started",
		"workers", cfg.Dispatch.Workers, "queue_size", cfg.Dispatch.QueueSize)

	// 6. Auth service; seed the admin credential from configuration
	authSvc := service.NewAuthService(store)
	if err := authSvc.SeedAdminPassword(ctx, cfg.Auth.AdminPassword); err != nil {
		logger.Warn("failed to seed admin password", "error", err)
	}
	if stored, err := store.GetAdminPasswordHash(ctx); err == nil && stored == "" {
		logger.Warn("no admin password configured - the first login will set it")
	}

	meetingSvc := service.NewMeetingService(store, sfuClient, dispatcher,
		cfg.SFU.APIKey, cfg.SFU.APISecret, logger)

	// 7. Build and start the HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if d, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err == nil && d > 0 {
		srvCfg.ShutdownTimeout = d
	}

	srv := server.New(srvCfg, store, authSvc, meetingSvc, dispatcher, sfuClient, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write pid file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	fmt.Printf("→ Foyer %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Media server: %s\n", cfg.SFU.URL)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// newLogger builds the process logger from the logging config. Dev mode
// forces debug level regardless of the configured one.
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
