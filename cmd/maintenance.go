package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/internal/helpers"
	"github.com/mohammad-safakhou/lumina/internal/runtime"
	"github.com/mohammad-safakhou/lumina/internal/store"
	"github.com/mohammad-safakhou/lumina/repository/redis_repository"
)

func openStore(ctx context.Context, cfgPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := runtime.OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store.New(db), nil
}

func fixSummariesCMD() *cobra.Command {
	var cfgPath string
	var fix = &cobra.Command{
		Use:   "fix-summaries",
		Short: "Re-derive summaries of posts with an empty or placeholder summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			fixed, err := st.FixSummaries(cmd.Context(), helpers.DeriveSummary)
			if err != nil {
				return err
			}
			for _, f := range fixed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.ID, f.Title, f.Summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fixed %d posts\n", len(fixed))
			return nil
		},
	}
	fix.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return fix
}

func publishDueCMD() *cobra.Command {
	var cfgPath string
	var publish = &cobra.Command{
		Use:   "publish-due",
		Short: "Publish scheduled posts whose time has passed, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, st, err := openStore(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			var rdb *redis.Client
			if cfg.Storage.Redis.Configured() {
				if rdb, err = redis_repository.Conn(ctx, cfg.Storage.Redis); err != nil {
					return err
				}
				defer rdb.Close()
			}
			sched, err := newScheduler(cfg, st, rdb)
			if err != nil {
				return err
			}
			ids, err := sched.Tick(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d posts\n", len(ids))
			return nil
		},
	}
	publish.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return publish
}
