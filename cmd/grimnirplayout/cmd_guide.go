/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

var (
	guidePlayoutID int
	guideFrom      string
	guideDays      int
	guideOut       string
)

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Export a playout's program guide as iCalendar",
	Long: `Write the built timeline of a playout as an .ics program guide.

Examples:
  grimnirplayout guide --playout 3 > guide.ics
  grimnirplayout guide --playout 3 --from 2026-01-01 --days 7 --out week.ics
`,
	RunE: runGuide,
}

func init() {
	guideCmd.Flags().IntVar(&guidePlayoutID, "playout", 0, "Playout ID (required)")
	guideCmd.Flags().StringVar(&guideFrom, "from", "", "Start of the guide, RFC3339 or YYYY-MM-DD (defaults to now)")
	guideCmd.Flags().IntVar(&guideDays, "days", 0, "Days to include (defaults to configured build horizon)")
	guideCmd.Flags().StringVar(&guideOut, "out", "", "Output file (defaults to stdout)")
	_ = guideCmd.MarkFlagRequired("playout")
	rootCmd.AddCommand(guideCmd)
}

func parseGuideStart(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --from %q", s)
	}
	return t, nil
}

func runGuide(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := parseGuideStart(guideFrom, loc)
	if err != nil {
		return err
	}
	days := guideDays
	if days <= 0 {
		days = cfg.DaysToBuild
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	export, err := schedule.NewExportService(database, logger).
		ExportToICal(context.Background(), guidePlayoutID, start, start.AddDate(0, 0, days))
	if err != nil {
		return err
	}

	if guideOut == "" {
		_, err = os.Stdout.Write(export.Data)
		return err
	}
	if err := os.WriteFile(guideOut, export.Data, 0o644); err != nil {
		return fmt.Errorf("write guide: %w", err)
	}
	logger.Info().
		Int("playout_id", guidePlayoutID).
		Int("entries", export.Entries).
		Str("path", guideOut).
		Msg("guide exported")
	return nil
}
