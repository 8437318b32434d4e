package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/lumina/config"
	agentcore "github.com/mohammad-safakhou/lumina/internal/agent/core"
	agenttel "github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/internal/runtime"
	"github.com/mohammad-safakhou/lumina/internal/search"
	srv "github.com/mohammad-safakhou/lumina/internal/server"
	"github.com/mohammad-safakhou/lumina/internal/store"
	"github.com/mohammad-safakhou/lumina/internal/uploads"
	"github.com/mohammad-safakhou/lumina/provider"
	"github.com/mohammad-safakhou/lumina/repository/redis_repository"
	"github.com/mohammad-safakhou/lumina/tools/web_search"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var autoMigrate bool

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Serve the blog API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, autoMigrate)
		},
	}
	serve.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}

func runServe(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	logger := log.New(log.Writer(), "[LUMINA] ", log.LstdFlags)

	reg := prometheus.NewRegistry()
	telemetry, _, _, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "lumina", ServiceVersion: version}, reg)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if autoMigrate {
		dsn, err := runtime.BuildPostgresDSN(cfg)
		if err != nil {
			return err
		}
		if err := srv.Migrate(cfg.Server.MigrationDir, dsn, "up", 0); err != nil {
			return err
		}
	}
	db, err := runtime.OpenPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	st := store.New(db)
	defer st.Close()

	var rdb *redis.Client
	if cfg.Storage.Redis.Configured() {
		rdb, err = redis_repository.Conn(ctx, cfg.Storage.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	set, err := provider.NewSet(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm providers: %w", err)
	}
	searcher, err := newSearcher(cfg.Sources.WebSearch, rdb, logger)
	if err != nil {
		return err
	}
	stats := agenttel.NewTelemetry(cfg.Telemetry, reg)
	drafter := agentcore.NewOrchestrator(set.Drafting, searcher, stats, nil).
		WithResearchHits(cfg.Pipeline.ResearchHits)

	var idx *search.Index
	if cfg.Search.Enabled {
		idx, err = search.NewIndex(cfg.Search.IndexPath)
		if err != nil {
			return err
		}
		defer idx.Close()
		posts, err := st.ListPosts(ctx)
		if err != nil {
			return fmt.Errorf("load posts for index: %w", err)
		}
		if err := idx.Rebuild(posts); err != nil {
			return err
		}
		logger.Printf("indexed %d posts", len(posts))
	}

	var up *uploads.Store
	if cfg.Storage.S3.Configured() {
		if up, err = uploads.NewFromConfig(ctx, cfg.Storage.S3); err != nil {
			return err
		}
	} else {
		logger.Printf("storage.s3 not configured; uploads disabled")
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	e := srv.New(srv.Deps{
		Config:   cfg,
		Store:    st,
		Secret:   secret,
		Drafter:  drafter,
		Editing:  set.Editing,
		Media:    set.Media,
		Index:    idx,
		Uploads:  up,
		Registry: reg,
		Stats:    stats,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.Server.Address)
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.Scheduler.Enabled {
		sched, err := newScheduler(cfg, st, rdb)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}
	return g.Wait()
}

// newSearcher returns nil without an API key; the pipeline then skips research.
func newSearcher(cfg config.WebSearchConfig, rdb *redis.Client, logger *log.Logger) (agentcore.Searcher, error) {
	ws, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey(), cfg.Timeout)
	if errors.Is(err, web_search.ErrMissingAPIKey) {
		logger.Printf("web search key missing; drafts run without research")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		return web_search.NewCached(ws, rdb, cfg.CacheTTL), nil
	}
	return ws, nil
}

func newScheduler(cfg *config.Config, st *store.Store, rdb *redis.Client) (*srv.Scheduler, error) {
	var lock srv.Locker
	if rdb != nil {
		lock = srv.RedisLocker{Rdb: rdb}
	}
	return srv.NewScheduler(st, lock, cfg.Scheduler.Cron, cfg.Scheduler.LockTTL)
}
