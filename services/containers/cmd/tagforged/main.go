package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tagforge/pkg/bus"
	"tagforge/pkg/db"
	gos3 "tagforge/pkg/s3"
	"tagforge/pkg/telemetry"
	"tagforge/services/containers"
	"tagforge/services/containers/internal/config"
	"tagforge/services/orders"
)

const serviceName = "tagforged"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tagforged",
		Short:         "Per-order tag-manager container generation and delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newGenerateCommand())
	cmd.AddCommand(newMintCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP delivery endpoint and the order intake consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	api, err := containers.New(deps.store, deps.registry, deps.factory, deps.codec, containers.Config{
		BaseURL:      cfg.HTTP.BaseURL,
		Retention:    cfg.Storage.Retention,
		StoreTimeout: cfg.Storage.StoreTimeout,
	}, logger)
	if err != nil {
		return err
	}

	handler, err := api.Routes()
	if err != nil {
		return err
	}

	if deps.store.Bus != nil && deps.meta != nil {
		consumer, err := orders.NewConsumer(deps.store.Bus, deps.factory, deps.meta, deps.codec, cfg.HTTP.BaseURL, logger)
		if err != nil {
			return fmt.Errorf("init order consumer: %w", err)
		}
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start order consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()
		logger.Printf("INFO consuming order events from %s", cfg.Bus.URL)
	}

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: middleware(handler),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: server shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO listening on %s", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ERROR server failed: %v", err)
		return err
	}

	return nil
}

type deps struct {
	store    *containers.Store
	registry *containers.Registry
	factory  *containers.Factory
	codec    *containers.Codec
	meta     *containers.Metadata
}

// buildDeps wires the content store, registry, factory, codec, and the
// optional database and bus handles from configuration.
func buildDeps(ctx context.Context, cfg config.Config) (*deps, func(), error) {
	cleanups := make([]func(), 0, 3)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	s3Client, err := gos3.NewClientFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("init s3 client: %w", err)
	}
	bucket, err := gos3.NewBucket(s3Client, cfg.Storage.Bucket, cfg.Storage.Compress)
	if err != nil {
		return nil, nil, err
	}

	registry, err := loadRegistry(cfg.Storage.KindsDir)
	if err != nil {
		return nil, nil, err
	}

	factory, err := containers.NewFactory(registry, bucket, containers.FactoryConfig{
		Retention:    cfg.Storage.Retention,
		StoreTimeout: cfg.Storage.StoreTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	key, err := containers.SigningKeyFromEnv()
	if err != nil {
		return nil, nil, err
	}
	codec, err := containers.NewCodec(key, bucket)
	if err != nil {
		return nil, nil, err
	}

	store := &containers.Store{Content: bucket}
	d := &deps{store: store, registry: registry, factory: factory, codec: codec}

	if cfg.DB.Enabled {
		pool, err := db.Open(ctx, cfg.DB.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		cleanups = append(cleanups, pool.Close)

		orm, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open orm: %w", err)
		}

		store.DB = pool
		store.ORM = orm

		meta, err := containers.NewMetadata(orm, pool)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		d.meta = meta
	}

	if cfg.Bus.Enabled {
		b, err := bus.New(cfg.Bus.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect bus: %w", err)
		}
		cleanups = append(cleanups, b.Close)
		store.Bus = b
	}

	return d, cleanup, nil
}

func loadRegistry(kindsDir string) (*containers.Registry, error) {
	if kindsDir != "" {
		return containers.NewRegistryFromDir(kindsDir)
	}
	return containers.NewRegistry()
}

func newGenerateCommand() *cobra.Command {
	var (
		kind      string
		orderID   int64
		rawFields []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one container from the shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			d, cleanup, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			fields, err := parseFieldArgs(rawFields)
			if err != nil {
				return err
			}

			container, err := d.factory.Generate(ctx, kind, fields, orderID)
			if err != nil {
				return err
			}

			if d.meta != nil {
				if err := d.meta.Save(ctx, container, "cli"); err != nil {
					return err
				}
			}

			link, err := d.codec.MintURL(cfg.HTTP.BaseURL, container, orderID)
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{
				"container":    container,
				"download_url": link,
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Container kind to generate")
	cmd.Flags().Int64Var(&orderID, "order", 0, "Order id the container belongs to")
	cmd.Flags().StringArrayVar(&rawFields, "field", nil, "Field value as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func newMintCommand() *cobra.Command {
	var (
		containerID string
		orderID     int64
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Re-mint a download link for a persisted container",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.DB.Enabled {
				return errors.New("DATABASE_URL is required for mint")
			}

			d, cleanup, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := parseContainerID(containerID)
			if err != nil {
				return err
			}

			container, err := d.meta.ByID(ctx, id, orderID)
			if err != nil {
				return err
			}

			link, err := d.codec.MintURL(cfg.HTTP.BaseURL, container, orderID)
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{
				"download_url": link,
				"expires_at":   container.ExpiresAt.Format(time.RFC3339),
			})
		},
	}

	cmd.Flags().StringVar(&containerID, "container", "", "Container id")
	cmd.Flags().Int64Var(&orderID, "order", 0, "Order id the container belongs to")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}

			pool, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.Migrate(ctx, pool)
		},
	}
}

func parseContainerID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid container id %q", raw)
	}
	return id, nil
}

func parseFieldArgs(raw []string) (map[string]string, error) {
	fields := make(map[string]string, len(raw))
	for _, pair := range raw {
		name, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --field %q, expected name=value", pair)
		}
		fields[strings.TrimSpace(name)] = value
	}
	return fields, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
