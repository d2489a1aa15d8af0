/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"runtime"
	"testing"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "bare",
			info: Info{Version: "1.2.3", GoVersion: "go1.24.0"},
			want: "grimnirplayout 1.2.3 go1.24.0",
		},
		{
			name: "commit is shortened",
			info: Info{Version: "1.2.3", Commit: "0123456789abcdef", GoVersion: "go1.24.0"},
			want: "grimnirplayout 1.2.3 (0123456789ab) go1.24.0",
		},
		{
			name: "dirty tree with date",
			info: Info{Version: "1.2.3", Commit: "abc", Modified: true, BuildDate: "2026-01-01", GoVersion: "go1.24.0"},
			want: "grimnirplayout 1.2.3 (abc-dirty) built 2026-01-01 go1.24.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetUsesLinkerValues(t *testing.T) {
	old := Commit
	Commit = "feedface"
	defer func() { Commit = old }()

	info := Get()
	if info.Version != Version || info.Commit != "feedface" {
		t.Errorf("Get() = %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
}
