package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-filerelay"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "filerelay",
	Short:         "Relay files to S3 compatible storage and share expiring links",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// App bundles everything a command needs.
type App struct {
	cfg      *filerelay.Config
	logger   filerelay.Logger
	relay    *filerelay.Relay
	registry *prometheus.Registry
	closers  []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger() filerelay.Logger {
	if verbose {
		return glog.NewLogger(
			glog.WithName("filerelay"),
			glog.WithLevel(glog.Debug),
			glog.WithLoggerTypePretty(),
		)
	}

	return glog.NewLogger(
		glog.WithName("filerelay"),
		glog.WithLoggerTypePretty(),
	)
}

func loadConfig() (*filerelay.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := filerelay.LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newApp(ctx context.Context) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		logger:   newLogger(),
		registry: prometheus.NewRegistry(),
	}

	store, err := newStore(ctx, cfg.Storage, cfg.Transfer, app.logger)
	if err != nil {
		return nil, err
	}

	metrics, err := filerelay.NewMetrics(app.registry)
	if err != nil {
		return nil, err
	}

	bridge := filerelay.NewBridge(cfg.Transfer.Workers)
	app.closers = append(app.closers, bridge.Close)

	opts := []filerelay.Option{
		filerelay.WithLogger(app.logger),
		filerelay.WithStore(store),
		filerelay.WithBridge(bridge),
		filerelay.WithValidator(filerelay.NewValidator(filerelay.WithMaxFileSize(cfg.Transfer.MaxFileSize))),
		filerelay.WithRegistry(filerelay.NewTransferRegistry(cfg.Transfer.RegistryTTL)),
		filerelay.WithMetrics(metrics),
		filerelay.WithStagingDir(cfg.Transfer.StagingDir),
		filerelay.WithLinkExpiration(cfg.Transfer.LinkTTL()),
		filerelay.WithProgressInterval(cfg.Transfer.ProgressInterval),
	}

	if cfg.NATS.URL != "" {
		conn, err := filerelay.ConnectNATS(cfg.NATS)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, func() { conn.Drain() })

		notifier := filerelay.NewAsyncNotifier(filerelay.NewNATSNotifier(conn, cfg.NATS.Subject), app.logger)
		app.closers = append(app.closers, notifier.Close)
		opts = append(opts, filerelay.WithNotifier(notifier))
	}

	app.relay = filerelay.NewRelay(opts...)

	return app, nil
}

func newStore(ctx context.Context, cfg filerelay.StorageConfig, tc filerelay.TransferConfig, logger filerelay.Logger) (filerelay.ObjectStore, error) {
	switch cfg.Backend {
	case filerelay.BackendS3:
		client, err := filerelay.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return filerelay.NewS3Store(client, cfg.Bucket).
			WithLogger(logger).
			WithBasePath(cfg.BasePath).
			WithMultipart(tc.MultipartThreshold, tc.PartSize, tc.PartConcurrency), nil
	case filerelay.BackendMinio:
		client, err := filerelay.NewMinioClient(cfg)
		if err != nil {
			return nil, err
		}
		return filerelay.NewMinioStore(client, cfg.Bucket).
			WithLogger(logger).
			WithBasePath(cfg.BasePath).
			WithMultipart(tc.MultipartThreshold, tc.PartSize, tc.PartConcurrency), nil
	case filerelay.BackendFS:
		if err := os.MkdirAll(cfg.LocalRoot, 0755); err != nil {
			return nil, err
		}
		return filerelay.NewFSStore(cfg.LocalRoot).
			WithLogger(logger).
			WithURLPrefix(cfg.LocalURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// withApp builds the App for the duration of a command.
func withApp(fn func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(cmd, args, app)
	}
}
