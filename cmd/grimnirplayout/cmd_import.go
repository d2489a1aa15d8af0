/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/yamlschedule"
)

var (
	importDryRun bool
	importBuild  bool
)

var importCmd = &cobra.Command{
	Use:   "import <lineup.yaml>",
	Short: "Import channels, schedules and media from a lineup file",
	Long: `Load a YAML lineup into the database.

Entities that already exist by name (channels by number) are kept and
referenced, so importing the same file twice is harmless. Use "-" to read
the lineup from stdin.
`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and report without writing")
	importCmd.Flags().BoolVar(&importBuild, "build", false, "Build every newly created playout after importing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open lineup: %w", err)
		}
		defer f.Close()
		r = f
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	logger.Info().Str("path", args[0]).Bool("dry_run", importDryRun).Msg("starting lineup import")

	ctx := context.Background()
	result, err := yamlschedule.NewImporter(database, logger).Import(ctx, r, yamlschedule.Options{DryRun: importDryRun})
	var verrs yamlschedule.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Printf("\nLineup is invalid:\n")
		for _, v := range verrs {
			fmt.Printf("  - %s\n", v.Error())
		}
		return fmt.Errorf("%d validation error(s)", len(verrs))
	}
	if err != nil {
		return err
	}

	if importDryRun {
		fmt.Printf("\nImport Preview:\n")
	} else {
		fmt.Printf("\nImport Complete:\n")
	}
	fmt.Printf("  Media:       %d\n", result.MediaItemsImported)
	fmt.Printf("  Collections: %d\n", result.CollectionsCreated)
	fmt.Printf("  Playlists:   %d\n", result.PlaylistsCreated)
	fmt.Printf("  Filler:      %d\n", result.FillerPresetsCreated)
	fmt.Printf("  Schedules:   %d\n", result.SchedulesCreated)
	fmt.Printf("  Channels:    %d\n", result.ChannelsCreated)
	fmt.Printf("  Playouts:    %d\n", result.PlayoutsCreated)
	fmt.Printf("  Webhooks:    %d\n", result.WebhooksCreated)
	if len(result.Skipped) > 0 {
		kinds := make([]string, 0, len(result.Skipped))
		for kind := range result.Skipped {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		fmt.Printf("\nAlready present:\n")
		for _, kind := range kinds {
			fmt.Printf("  %-12s %d\n", kind+":", result.Skipped[kind])
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	if !importBuild || importDryRun || len(result.CreatedPlayoutIDs) == 0 {
		return nil
	}
	svc, err := newBuildService(database)
	if err != nil {
		return err
	}
	for _, id := range result.CreatedPlayoutIDs {
		built, err := svc.BuildPlayout(ctx, id, playout.ModeReset)
		if err != nil {
			return fmt.Errorf("build playout %d: %w", id, err)
		}
		printBuildResult(built)
	}
	return nil
}
