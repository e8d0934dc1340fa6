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

package batch

import (
	"strings"
	"testing"

	"github.com/quantumhpc/qdispatch/pkg/descriptor"
)

func sampleDescriptor() *descriptor.JobDescriptor {
	return &descriptor.JobDescriptor{
		JobName:      "cirq-scalability",
		Account:      "proj_try",
		Partition:    "boost_usr_prod",
		WallTime:     "04:00:00",
		Nodes:        1,
		TasksPerNode: 4,
		GPUs:         2,
		MemoryMB:     123000,
		Stdout:       "cirq-scalability-%j.out",
		Stderr:       "cirq-scalability-%j.err",
		WorkDir:      "/leonardo_work/quantum",
		Env:          map[string]string{"OMP_NUM_THREADS": "4"},
		Command: descriptor.Command{
			Interpreter: "python",
			Script:      "scalability.py",
			Args:        []string{"--qubits", "32"},
		},
		Monitor: &descriptor.Monitor{
			Command: "nvidia-smi --query-gpu=utilization.gpu --format=csv -l 5",
			LogFile: "gpu.log",
		},
	}
}

func TestRenderDirectives(t *testing.T) {
	script := Render(sampleDescriptor())

	for _, want := range []string{
		"#!/bin/bash\n",
		"#SBATCH --account=proj_try\n",
		"#SBATCH --partition=boost_usr_prod\n",
		"#SBATCH --time=04:00:00\n",
		"#SBATCH --nodes=1\n",
		"#SBATCH --ntasks-per-node=4\n",
		"#SBATCH --gres=gpu:2\n",
		"#SBATCH --mem=123000\n",
		"#SBATCH --job-name=cirq-scalability\n",
		"#SBATCH --output=cirq-scalability-%j.out\n",
		"#SBATCH --error=cirq-scalability-%j.err\n",
		"export OMP_NUM_THREADS=4\n",
		"cd /leonardo_work/quantum\n",
		"python scalability.py --qubits 32\n",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

// The monitor is launched detached right before the main command, so
// the job's exit status stays the main command's.
func TestRenderMonitorBeforeCommand(t *testing.T) {
	script := Render(sampleDescriptor())

	monitorLine := "nvidia-smi --query-gpu=utilization.gpu --format=csv -l 5 > gpu.log 2>&1 &"
	mi := strings.Index(script, monitorLine)
	ci := strings.Index(script, "python scalability.py")
	if mi == -1 {
		t.Fatalf("monitor trailer missing:\n%s", script)
	}
	if mi > ci {
		t.Fatalf("monitor trailer must precede the main command:\n%s", script)
	}
}

func TestRenderSingleCommand(t *testing.T) {
	d := sampleDescriptor()
	script := Render(d)

	_, diag, err := Parse(script)
	if err != nil {
		t.Fatal(err)
	}
	if diag.ActiveCommands != 1 {
		t.Fatalf("rendered script has %d active commands, want 1", diag.ActiveCommands)
	}
}

func TestRenderOmitsEmpty(t *testing.T) {
	d := &descriptor.JobDescriptor{
		JobName:   "ghz",
		Account:   "proj",
		Partition: "boost_usr_prod",
		WallTime:  "01:00:00",
		Nodes:     1,
		MemoryMB:  123000,
		Command:   descriptor.Command{Interpreter: "python", Script: "ghz.py"},
	}
	script := Render(d)

	if strings.Contains(script, "--gres") {
		t.Error("gres directive present for zero gpus")
	}
	if strings.Contains(script, "export") || strings.Contains(script, "cd ") {
		t.Error("setup lines present for empty env/workdir")
	}
	if !strings.HasSuffix(script, "python ghz.py\n") {
		t.Errorf("script must end with the command:\n%s", script)
	}
}
