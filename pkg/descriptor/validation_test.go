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

package descriptor

import (
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func validDescriptor() *JobDescriptor {
	return &JobDescriptor{
		JobName:      "cirq-scalability",
		Account:      "proj_try",
		Partition:    "boost_usr_prod",
		WallTime:     "04:00:00",
		Nodes:        1,
		TasksPerNode: 4,
		GPUs:         2,
		MemoryMB:     123000,
		Command:      Command{Interpreter: "python", Script: "scalability.py"},
	}
}

func TestValidateOK(t *testing.T) {
	if err := validDescriptor().Validate(DefaultLimits()); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejects(t *testing.T) {
	tt := []struct {
		name   string
		mutate func(*JobDescriptor)
		want   string
	}{
		{"memory over node capacity", func(d *JobDescriptor) { d.MemoryMB = 500000 }, "exceeds node capacity"},
		{"gpus over node capacity", func(d *JobDescriptor) { d.GPUs = 5 }, "exceeds per-node capacity"},
		{"tasks over node capacity", func(d *JobDescriptor) { d.TasksPerNode = 64 }, "exceeds per-node capacity"},
		{"zero nodes", func(d *JobDescriptor) { d.Nodes = 0 }, "nodes must be >= 1"},
		{"zero memory", func(d *JobDescriptor) { d.MemoryMB = 0 }, "memory_mb must be > 0"},
		{"missing account", func(d *JobDescriptor) { d.Account = "" }, "account is required"},
		{"missing command", func(d *JobDescriptor) { d.Command = Command{} }, "command interpreter and script are required"},
		{"bad wall time", func(d *JobDescriptor) { d.WallTime = "soon" }, "invalid wall_time"},
		{"wall time over partition limit", func(d *JobDescriptor) { d.WallTime = "2-00:00:00" }, "exceeds partition limit"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			d := validDescriptor()
			tc.mutate(d)
			err := d.Validate(DefaultLimits())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestValidatePlaceholders(t *testing.T) {
	d := validDescriptor()
	d.Account = NewPlaceholder("ACCOUNT")
	d.Command.Script = NewPlaceholder("SCRIPT")

	err := d.Validate(DefaultLimits())
	if !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Fatalf("expected ErrUnresolvedPlaceholder, got %v", err)
	}
	if !strings.Contains(err.Error(), "account") || !strings.Contains(err.Error(), "command.script") {
		t.Fatalf("error should name offending fields: %v", err)
	}
}

func TestPlaceholders(t *testing.T) {
	d := validDescriptor()
	d.Account = NewPlaceholder("ACCOUNT")
	d.Env = map[string]string{"TOKEN": NewPlaceholder("TOKEN")}
	d.Monitor = &Monitor{Command: "nvidia-smi -l 5", LogFile: NewPlaceholder("LOG")}

	got := d.Placeholders()
	want := []string{"account", "env.TOKEN", "monitor.log_file"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("placeholders = %v, want %v", got, want)
	}
}

func TestContainsPlaceholder(t *testing.T) {
	if !ContainsPlaceholder("<<ACCOUNT>>") {
		t.Error("canonical marker not detected")
	}
	if !ContainsPlaceholder("prefix<<X>>suffix") {
		t.Error("embedded marker not detected")
	}
	if ContainsPlaceholder("a < b > c") {
		t.Error("plain angle brackets are not markers")
	}
	if ContainsPlaceholder("proj_try") {
		t.Error("plain value flagged")
	}
}

func TestResolve(t *testing.T) {
	d := validDescriptor()
	d.Account = NewPlaceholder("ACCOUNT")

	d.Resolve(Overrides{Account: "proj_real", GPUs: 4})
	if d.Account != "proj_real" {
		t.Errorf("account = %q", d.Account)
	}
	if d.GPUs != 4 {
		t.Errorf("gpus = %d", d.GPUs)
	}
	// untouched fields stay
	if d.JobName != "cirq-scalability" || d.TasksPerNode != 4 {
		t.Errorf("unexpected override side effects: %+v", d)
	}

	if err := d.Validate(DefaultLimits()); err != nil {
		t.Fatalf("resolved descriptor should validate: %v", err)
	}
}

// An unresolved placeholder must never be silently substituted: resolve
// without the account override keeps the marker and validation fails.
func TestResolveKeepsUnresolved(t *testing.T) {
	d := validDescriptor()
	d.Account = NewPlaceholder("ACCOUNT")

	d.Resolve(Overrides{GPUs: 1})
	if !ContainsPlaceholder(d.Account) {
		t.Fatalf("account marker lost: %q", d.Account)
	}
	if err := d.Validate(DefaultLimits()); err == nil {
		t.Fatal("expected validation failure")
	}
}
