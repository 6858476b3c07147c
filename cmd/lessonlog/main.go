package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/lessonlog/internal/api"
	"github.com/pbaille/lessonlog/internal/classifier"
	"github.com/pbaille/lessonlog/internal/config"
	"github.com/pbaille/lessonlog/internal/httpx"
	"github.com/pbaille/lessonlog/internal/journal"
	"github.com/pbaille/lessonlog/internal/logging"
	"github.com/pbaille/lessonlog/internal/store"
)

var (
	configPath string
	dbPath     string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lessonlog",
		Short: "Team lessons-learned log with automatic tagging",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default lessonlog.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sheet path, overrides db_path")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(tagsCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// app is everything a command needs, built from configuration
type app struct {
	cfg    config.Config
	table  store.Table
	clf    *classifier.Client
	svc    *journal.Service
	logger *zap.Logger
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	httpx.ConfigureExternalHTTPClient(cfg.HTTPTimeoutSeconds)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	table, err := store.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 {
		table = store.NewCached(table, cfg.CacheTTL)
	}

	var gen classifier.Generator
	if key := cfg.APIKey(); key == "" {
		logger.Warn("no API key configured; entries get fallback tags",
			zap.String("provider", cfg.LLMProvider))
	} else if gen, err = classifier.NewGenerator(ctx, cfg.LLMProvider, key, httpx.ExternalHTTPClient()); err != nil {
		logger.Warn("classifier unavailable", zap.Error(err))
		gen = nil
	}
	clf := classifier.New(gen, cfg.ClassifierOptions(), logger)

	svc := journal.New(table, clf, journal.Options{Policy: cfg.ClassifyOnFailure}, logger)
	return &app{cfg: cfg, table: table, clf: clf, svc: svc, logger: logger}, nil
}

func (a *app) Close() {
	if err := store.Close(a.table); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Addr
			}
			server := api.New(a.svc, api.Options{
				Addr:          addr,
				Vocabulary:    a.clf.Options().Vocabulary,
				AllowURLFetch: a.cfg.AllowURLFetch,
				HTTPClient:    httpx.PublicOnlyClient(time.Duration(a.cfg.HTTPTimeoutSeconds) * time.Second),
			}, a.logger)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address, overrides addr")
	return cmd
}
