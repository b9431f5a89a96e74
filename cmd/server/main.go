// Command server runs the askdocs question answering API.
//
// Configuration is read from a YAML file (--config, ASKDOCS_CONFIG,
// ./config.yaml or /etc/askdocs/config.yaml) and ASKDOCS_* environment
// variables. See pkg/config for the full list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rhuss/askdocs/pkg/config"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/engine"
	"github.com/rhuss/askdocs/pkg/observability"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/transport"
	transporthttp "github.com/rhuss/askdocs/pkg/transport/http"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "askdocs-server",
		Short:         "Answer questions about uploaded file chunks",
		Long:          `Serves streamed answers to questions over the text of uploaded files, backed by an OpenAI-compatible completions API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	})
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	return cfg, nil
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srv, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.ListenAndServe()
}

// buildServer wires provider, store, engine and middleware from cfg. The
// returned cleanup closes the provider and the store.
func buildServer(ctx context.Context, cfg *config.Config) (*transporthttp.Server, func(), error) {
	prov, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("creating provider: %w", err)
	}

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		prov.Close()
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}
	cleanup := func() {
		if store != nil {
			store.Close()
		}
		prov.Close()
	}

	srv, err := newServer(cfg, prov, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func newServer(cfg *config.Config, prov provider.Provider, store transport.AnswerStore) (*transporthttp.Server, error) {
	eng, err := engine.New(prov, store, engine.Config{
		Model:            cfg.Engine.Model,
		Temperature:      cfg.Engine.Temperature,
		MaxTokens:        cfg.Engine.MaxTokens,
		FallbackAnswer:   cfg.Engine.FallbackAnswer,
		MaxSourcesLength: cfg.Engine.MaxSourcesLength,
		EmbeddingModel:   cfg.Engine.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	format, err := transporthttp.ParseStreamFormat(cfg.Server.StreamFormat)
	if err != nil {
		return nil, err
	}

	authMW, err := newAuthMiddleware(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("configuring auth: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithStreamFormat(format),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithEmbedder(eng),
		transporthttp.WithMiddleware(observability.MetricsMiddleware, authMW),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetricsHandler(observability.Handler()))
	}
	if store != nil {
		opts = append(opts, transporthttp.WithReadiness(store.HealthCheck))
	}

	slog.Info("askdocs configured",
		"provider", prov.Name(),
		"backend", cfg.Provider.BaseURL,
		"model", cfg.Engine.Model,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"stream_format", format,
		"fallback", cfg.Engine.FallbackAnswer != "",
	)

	return transporthttp.NewServer(eng, store, opts...), nil
}

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Type != "postgres" {
		return fmt.Errorf("migrate requires storage.type \"postgres\", got %q", cfg.Storage.Type)
	}

	pgCfg := postgresConfig(cfg.Storage.Postgres)
	pgCfg.MigrateOnStart = false
	store, err := newPostgres(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}
