package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/livesync"
	"github.com/sells-group/prospect-cli/internal/reconcile"
)

var (
	watchAgent      string
	watchDebounceMS int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompute progress live as plan and activity rows change",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchDebounceMS > 0 {
			cfg.LiveSync.DebounceMS = watchDebounceMS
		}
		if err := cfg.Validate("watch"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		suburbs := initSuburbs()
		agg := reconcile.New(suburbs)
		out := cmd.OutOrStdout()

		recompute := func(ctx context.Context) error {
			plans, err := st.FetchPlans(ctx, watchAgent)
			if err != nil {
				return err
			}
			activities, err := st.FetchActivities(ctx, watchAgent, "")
			if err != nil {
				return err
			}
			p := agg.Overall(plans, activities)
			fmt.Fprintf(out, "--- %s ---\n", time.Now().Format(time.TimeOnly))
			renderProgress(out, p)
			return nil
		}

		// Render once before waiting on changes.
		if err := recompute(ctx); err != nil {
			return err
		}

		coord := livesync.NewCoordinator(st.Changes(), recompute, livesync.Options{
			Debounce:    cfg.LiveSync.Debounce(),
			MinInterval: cfg.LiveSync.MinInterval(),
		})
		coord.Start(ctx)
		defer coord.Stop()

		zap.L().Info("watching for changes",
			zap.String("agent", watchAgent),
			zap.Duration("debounce", cfg.LiveSync.Debounce()))

		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAgent, "agent", "", "agent reference (required)")
	watchCmd.Flags().IntVar(&watchDebounceMS, "debounce", 0, "debounce window in ms (default from config)")
	watchCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(watchCmd)
}
