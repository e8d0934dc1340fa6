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

// Package batch renders job descriptors to sbatch scripts and parses
// legacy hand-written scripts back into descriptors.
package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quantumhpc/qdispatch/pkg/descriptor"
	"github.com/quantumhpc/qdispatch/pkg/monitor"
)

// Render builds the canonical sbatch script for a descriptor: the
// directive block, environment setup, the optional detached monitor
// launch, then exactly one foreground command.
func Render(d *descriptor.JobDescriptor) string {
	const (
		accountT   = "#SBATCH --account=%s"
		partitionT = "#SBATCH --partition=%s"
		timeT      = "#SBATCH --time=%s"
		nodesT     = "#SBATCH --nodes=%d"
		ntasksT    = "#SBATCH --ntasks-per-node=%d"
		gresT      = "#SBATCH --gres=gpu:%d"
		memT       = "#SBATCH --mem=%d"
		jobNameT   = "#SBATCH --job-name=%s"
		outputT    = "#SBATCH --output=%s"
		errorT     = "#SBATCH --error=%s"
	)

	lines := []string{"#!/bin/bash"}

	if d.Account != "" {
		lines = append(lines, fmt.Sprintf(accountT, d.Account))
	}
	if d.Partition != "" {
		lines = append(lines, fmt.Sprintf(partitionT, d.Partition))
	}
	if d.WallTime != "" {
		lines = append(lines, fmt.Sprintf(timeT, d.WallTime))
	}
	if d.Nodes != 0 {
		lines = append(lines, fmt.Sprintf(nodesT, d.Nodes))
	}
	if d.TasksPerNode != 0 {
		lines = append(lines, fmt.Sprintf(ntasksT, d.TasksPerNode))
	}
	if d.GPUs != 0 {
		lines = append(lines, fmt.Sprintf(gresT, d.GPUs))
	}
	if d.MemoryMB != 0 {
		lines = append(lines, fmt.Sprintf(memT, d.MemoryMB))
	}
	if d.JobName != "" {
		lines = append(lines, fmt.Sprintf(jobNameT, d.JobName))
	}
	if d.Stdout != "" {
		lines = append(lines, fmt.Sprintf(outputT, d.Stdout))
	}
	if d.Stderr != "" {
		lines = append(lines, fmt.Sprintf(errorT, d.Stderr))
	}

	lines = append(lines, "")

	if len(d.Env) != 0 {
		keys := make([]string, 0, len(d.Env))
		for k := range d.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("export %s=%s", k, d.Env[k]))
		}
	}

	if d.WorkDir != "" {
		lines = append(lines, fmt.Sprintf("cd %s", d.WorkDir))
	}

	if d.Monitor != nil {
		m := *d.Monitor
		monitor.Normalize(&m)
		lines = append(lines, monitor.Trailer(&m))
	}

	lines = append(lines, d.Command.Line())

	return strings.Join(lines, "\n") + "\n"
}
