/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_playout/internal/integrity"
)

var checkRepair bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan playout data for dangling references",
	Long: `Report playouts, playout items and schedule items that reference
missing rows. With --repair, findings that can be fixed automatically are
repaired; the rest are listed for manual attention.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "repair findings that support it")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return err
	}

	svc := integrity.NewService(database, logger)
	report, err := svc.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	out := cmd.OutOrStdout()
	if report.Total == 0 {
		fmt.Fprintln(out, "no findings")
		return nil
	}

	types := make([]string, 0, len(report.ByType))
	for t := range report.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "%-32s %d\n", t, report.ByType[integrity.FindingType(t)])
	}
	fmt.Fprintln(out)

	var repaired, manual int
	for _, f := range report.Findings {
		fmt.Fprintf(out, "[%s] %s (%s %d)\n", f.Severity, f.Summary, f.Type, f.ResourceID)
		if !f.Repairable {
			manual++
			continue
		}
		if !checkRepair {
			continue
		}
		result, err := svc.Repair(cmd.Context(), integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			return fmt.Errorf("repair %s: %w", f.ID, err)
		}
		fmt.Fprintf(out, "    %s\n", result.Message)
		if result.Changed {
			repaired++
		}
	}

	fmt.Fprintf(out, "\n%d findings, %d repaired, %d need manual repair\n", report.Total, repaired, manual)
	if manual > 0 || (!checkRepair && report.Total > 0) {
		return fmt.Errorf("%d unresolved findings", report.Total-repaired)
	}
	return nil
}
