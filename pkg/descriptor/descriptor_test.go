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
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleYAML = `job_name: cirq-scalability
account: proj_try
partition: boost_usr_prod
wall_time: "04:00:00"
nodes: 1
tasks_per_node: 4
gpus: 2
memory_mb: 123000
env:
  OMP_NUM_THREADS: "4"
command:
  interpreter: python
  script: scalability.py
  args: ["--qubits", "32"]
monitor:
  log_file: gpu.log
  interval_seconds: 5
`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "job.yaml", sampleYAML)

	d, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.JobName != "cirq-scalability" {
		t.Errorf("JobName = %q", d.JobName)
	}
	if d.GPUs != 2 || d.MemoryMB != 123000 {
		t.Errorf("resources = %d gpus, %d mb", d.GPUs, d.MemoryMB)
	}
	if d.Command.Interpreter != "python" || d.Command.Script != "scalability.py" {
		t.Errorf("command = %+v", d.Command)
	}
	if !reflect.DeepEqual(d.Command.Args, []string{"--qubits", "32"}) {
		t.Errorf("args = %v", d.Command.Args)
	}
	if d.Monitor == nil || d.Monitor.LogFile != "gpu.log" {
		t.Errorf("monitor = %+v", d.Monitor)
	}
	if d.Env["OMP_NUM_THREADS"] != "4" {
		t.Errorf("env = %v", d.Env)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "job.yaml", sampleYAML)
	d, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "copy.yaml")
	if err = d.Write(out); err != nil {
		t.Fatal(err)
	}
	d2, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d, d2) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", d, d2)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "b.yaml", sampleYAML)
	writeTemp(t, dir, "a.yml", sampleYAML)
	writeTemp(t, dir, "ignored.txt", "not yaml")

	ds, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(ds))
	}
}

func TestSetDefaults(t *testing.T) {
	d := &JobDescriptor{JobName: "ghz"}
	d.SetDefaults(DefaultLimits())

	if d.Nodes != 1 || d.TasksPerNode != 1 {
		t.Errorf("defaults = %d nodes, %d tasks", d.Nodes, d.TasksPerNode)
	}
	if d.Partition != "boost_usr_prod" {
		t.Errorf("partition = %q", d.Partition)
	}
	if d.Stdout != "ghz-%j.out" || d.Stderr != "ghz-%j.err" {
		t.Errorf("output patterns = %q / %q", d.Stdout, d.Stderr)
	}
}

func TestSetDefaultsPlaceholderName(t *testing.T) {
	d := &JobDescriptor{JobName: NewPlaceholder("NAME")}
	d.SetDefaults(DefaultLimits())
	if d.Stdout != "" || d.Stderr != "" {
		t.Errorf("placeholder job name must not leak into output patterns: %q %q", d.Stdout, d.Stderr)
	}
}

func TestDuration(t *testing.T) {
	d := &JobDescriptor{WallTime: "1-00:00:00"}
	got, err := d.Duration()
	if err != nil {
		t.Fatal(err)
	}
	if *got != 24*time.Hour {
		t.Fatalf("duration = %s", got)
	}
}

func TestLoadLimits(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "cluster.yaml", "node_memory_mb: 256000\ngpus_per_node: 8\n")

	limits, err := LoadLimits(path)
	if err != nil {
		t.Fatal(err)
	}
	if limits.NodeMemoryMB != 256000 || limits.GpusPerNode != 8 {
		t.Errorf("limits = %+v", limits)
	}
	// unset fields keep defaults
	if limits.Partition != "boost_usr_prod" || limits.TasksPerNode != 32 {
		t.Errorf("defaults not kept: %+v", limits)
	}
}
