/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/eventbus"
	"github.com/friendsincode/grimnir_playout/internal/locking"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/scheduler"
	"github.com/friendsincode/grimnir_playout/internal/server"
)

var (
	buildPlayoutID int
	buildMode      string
	buildDays      int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build one playout now",
	Long: `Run a single playout build outside the rolling scheduler.

Modes:
  continue  extend the timeline from its anchor
  refresh   rebuild from now, keeping cursor positions
  reset     discard everything and start over

Examples:
  grimnirplayout build --playout 3
  grimnirplayout build --playout 3 --mode reset --days 7
`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().IntVar(&buildPlayoutID, "playout", 0, "Playout ID (required)")
	buildCmd.Flags().StringVar(&buildMode, "mode", string(playout.ModeContinue), "Build mode: continue, refresh or reset")
	buildCmd.Flags().IntVar(&buildDays, "days", 0, "Days to build ahead (defaults to configuration)")
	_ = buildCmd.MarkFlagRequired("playout")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	mode, err := playout.ParseMode(buildMode)
	if err != nil {
		return err
	}
	if err := loadConfig(); err != nil {
		return err
	}
	if buildDays < 0 {
		return fmt.Errorf("--days must be positive, got %d", buildDays)
	}
	if buildDays > 0 {
		cfg.DaysToBuild = buildDays
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	svc, err := newBuildService(database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.BuildPlayout(ctx, buildPlayoutID, mode)
	if err != nil {
		return fmt.Errorf("build playout %d: %w", buildPlayoutID, err)
	}
	printBuildResult(result)
	return nil
}

// newBuildService wires a scheduler service for one-shot builds. It shares
// the channel locks and event bus of running servers so a manual build
// cannot interleave with the rolling scheduler.
func newBuildService(database *gorm.DB) (*scheduler.Service, error) {
	bus, err := eventbus.New(eventbus.Config{
		NATSURL:       cfg.NATSURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}, "cli-"+uuid.NewString(), logger)
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	closers = append(closers, bus.Close)

	var locker locking.Locker = locking.NewLocalLocker()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client.Close)
		locker = locking.NewRedisLocker(client, cfg.LockLease, logger)
	}

	source := collection.NewRepository(database, logger)
	return scheduler.New(
		playout.NewStore(database, logger),
		server.NewPlayoutBuilder(cfg, source, logger),
		locker,
		bus,
		nil,
		cfg.SchedulerInterval,
		logger,
	), nil
}

func printBuildResult(result *playout.BuildResult) {
	fmt.Printf("\nPlayout %d (%s):\n", result.PlayoutID, result.Mode)
	fmt.Printf("  Run:      %s\n", result.RunID)
	fmt.Printf("  Outcome:  %s\n", result.Outcome)
	fmt.Printf("  Items:    %d\n", result.ItemsAdded)
	if !result.Finish.IsZero() {
		fmt.Printf("  Through:  %s\n", result.Finish.Format("2006-01-02 15:04 MST"))
	}
	if len(result.Warnings) > 0 {
		fmt.Printf("  Warnings: %d\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Printf("    - %s: %s\n", w.Kind, w.Message)
		}
	}
}
