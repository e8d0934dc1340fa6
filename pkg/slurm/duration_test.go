// Copyright (c) 2026 Quantum HPC Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slurm

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tt := []struct {
		in   string
		want time.Duration
	}{
		{"24:00:00", 24 * time.Hour},
		{"00:30:00", 30 * time.Minute},
		{"1-02:03:04", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"02:03", 2*time.Hour + 3*time.Minute},
		{"0:05:23", 5*time.Minute + 23*time.Second},
	}
	for _, tc := range tt {
		got, err := ParseDuration(tc.in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", tc.in, err)
		}
		if *got != tc.want {
			t.Fatalf("ParseDuration(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseDurationUnlimited(t *testing.T) {
	_, err := ParseDuration("UNLIMITED")
	if err != ErrDurationIsUnlimited {
		t.Fatalf("expected ErrDurationIsUnlimited, got %v", err)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"", "banana", "1:2:3:4", "x-01:00:00"} {
		if _, err := ParseDuration(in); err == nil {
			t.Fatalf("ParseDuration(%q) expected error", in)
		}
	}
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-08-20T10:01:00")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 20, 10, 1, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	for _, in := range []string{"Unknown", "N/A", "None", ""} {
		got, err = parseTime(in)
		if err != nil || got != nil {
			t.Fatalf("parseTime(%q) = %v, %v, want nil, nil", in, got, err)
		}
	}
}
