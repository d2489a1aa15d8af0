/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package expression

import (
	"testing"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

func fiveMinuteChapters(titles ...string) []models.MediaChapter {
	chapters := make([]models.MediaChapter, 6)
	for i := range chapters {
		chapters[i] = models.MediaChapter{
			ChapterID: i + 1,
			StartTime: time.Duration(i) * 5 * time.Minute,
			EndTime:   time.Duration(i+1) * 5 * time.Minute,
		}
		if len(titles) > 0 {
			chapters[i].Title = titles[i%len(titles)]
		}
	}
	return chapters
}

func TestFilterChapters(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		titles  []string
		wantEnd []time.Duration
	}{
		{
			name:    "two points in thirty minutes",
			expr:    "(point > 5 * 60) and (last_mid_filler > 5 * 60) and (matched_points < 2)",
			wantEnd: []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
		{
			name:    "progress based",
			expr:    "(total_progress >= 0.2 and matched_points = 0) or (total_progress >= 0.6 and matched_points = 1)",
			wantEnd: []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
		{
			name:    "case insensitive title match",
			expr:    "title == 'here'",
			titles:  []string{"Not Here", "Here"},
			wantEnd: []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
		{
			name:    "case insensitive title exclude",
			expr:    "title != 'not here'",
			titles:  []string{"Not Here", "Here"},
			wantEnd: []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
		{
			name:   "partial title match",
			expr:   `title like "%here%"`,
			titles: []string{"Not Here", "Here"},
			wantEnd: []time.Duration{
				5 * time.Minute, 10 * time.Minute, 15 * time.Minute,
				20 * time.Minute, 25 * time.Minute, 30 * time.Minute,
			},
		},
		{
			name:    "nothing matches",
			expr:    "num > 10",
			wantEnd: []time.Duration{30 * time.Minute},
		},
		{
			name:    "non boolean result never matches",
			expr:    "point * 2",
			wantEnd: []time.Duration{30 * time.Minute},
		},
		{
			name:    "remaining duration",
			expr:    "remaining_duration = 10 * 60 or num = 1",
			wantEnd: []time.Duration{5 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
		{
			name:    "not operator",
			expr:    "not (num = total_points)",
			wantEnd: []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute, 20 * time.Minute, 30 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FilterChapters(tt.expr, fiveMinuteChapters(tt.titles...), 30*time.Minute)
			if err != nil {
				t.Fatalf("FilterChapters() error = %v", err)
			}
			if len(result) != len(tt.wantEnd) {
				t.Fatalf("got %d chapters, want %d: %+v", len(result), len(tt.wantEnd), result)
			}
			for i, c := range result {
				if c.EndTime != tt.wantEnd[i] {
					t.Errorf("chapter %d ends at %v, want %v", i, c.EndTime, tt.wantEnd[i])
				}
			}
			if result[0].StartTime != 0 {
				t.Errorf("first chapter starts at %v", result[0].StartTime)
			}
			for i := 1; i < len(result); i++ {
				if result[i].StartTime != result[i-1].EndTime {
					t.Errorf("chapter %d starts at %v, previous ends at %v", i, result[i].StartTime, result[i-1].EndTime)
				}
			}
		})
	}
}

func TestFilterChaptersEmptyExpression(t *testing.T) {
	chapters := fiveMinuteChapters()
	result, err := FilterChapters("  ", chapters, 30*time.Minute)
	if err != nil || len(result) != len(chapters) {
		t.Fatalf("FilterChapters() = %d chapters, %v", len(result), err)
	}
}

func TestFilterChaptersInvalidExpression(t *testing.T) {
	chapters := fiveMinuteChapters()
	result, err := FilterChapters("point >", chapters, 30*time.Minute)
	if err == nil {
		t.Fatal("expected an error for an incomplete expression")
	}
	if len(result) != len(chapters) {
		t.Fatalf("invalid expression should keep chapters, got %d", len(result))
	}
}

func TestEvaluateCount(t *testing.T) {
	tests := []struct {
		expr   string
		count  int
		random int
		want   int
	}{
		{"count", 7, 3, 7},
		{"random", 7, 3, 3},
		{"count / 2", 7, 0, 3},
		{"random + 1", 10, 4, 5},
		{"2", 0, 0, 2},
		{"count > 3", 7, 0, 0},
		{"'text'", 7, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvaluateCount(tt.expr, tt.count, tt.random)
			if err != nil {
				t.Fatalf("EvaluateCount() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateCount(%q) = %d, want %d", tt.expr, got, tt.want)
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a = 1 and b <> 2", "a == 1 && b != 2"},
		{"not x or y", "! x || y"},
		{"title like 'A%'", `like(title, "a%")`},
		{"x >= 1", "x >= 1"},
		{"'${x}'", `"$${x}"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := rewrite(tt.in)
			if err != nil {
				t.Fatalf("rewrite() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("rewrite(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := rewrite("'open"); err == nil {
		t.Error("expected error for unterminated string")
	}
	if _, err := rewrite("like 'x'"); err == nil {
		t.Error("expected error for like without a left operand")
	}
}
