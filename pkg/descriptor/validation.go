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
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/quantumhpc/qdispatch/pkg/slurm"
)

// Placeholders mark values the operator still has to fill in, e.g.
// <<ACCOUNT>>. The old scripts used ad hoc markers; descriptors keep a
// single recognizable form.
var placeholderRe = regexp.MustCompile(`<<[A-Za-z0-9_-]*>>`)

// NewPlaceholder returns the canonical marker for a named value.
func NewPlaceholder(name string) string {
	return "<<" + name + ">>"
}

// ErrUnresolvedPlaceholder is returned by Validate when any field still
// carries a placeholder marker. Placeholders are never substituted
// silently.
var ErrUnresolvedPlaceholder = errors.New("descriptor contains unresolved placeholders")

// ContainsPlaceholder reports whether s carries a placeholder marker.
func ContainsPlaceholder(s string) bool {
	return placeholderRe.MatchString(s)
}

// Placeholders lists every field of the descriptor that still carries a
// placeholder marker.
func (d *JobDescriptor) Placeholders() []string {
	var fields []string
	check := func(name, value string) {
		if ContainsPlaceholder(value) {
			fields = append(fields, name)
		}
	}

	check("job_name", d.JobName)
	check("account", d.Account)
	check("partition", d.Partition)
	check("wall_time", d.WallTime)
	check("stdout", d.Stdout)
	check("stderr", d.Stderr)
	check("work_dir", d.WorkDir)
	check("command.interpreter", d.Command.Interpreter)
	check("command.script", d.Command.Script)
	for _, arg := range d.Command.Args {
		if ContainsPlaceholder(arg) {
			fields = append(fields, "command.args")
			break
		}
	}
	for k, v := range d.Env {
		if ContainsPlaceholder(v) {
			fields = append(fields, "env."+k)
		}
	}
	if d.Monitor != nil {
		check("monitor.command", d.Monitor.Command)
		check("monitor.log_file", d.Monitor.LogFile)
	}
	return fields
}

// Overrides are operator supplied values applied before validation,
// covering the fields the old scripts left as placeholders.
type Overrides struct {
	Account      string
	JobName      string
	TasksPerNode int64
	GPUs         int64
}

// Resolve applies non-zero override values to the descriptor.
func (d *JobDescriptor) Resolve(o Overrides) {
	if o.Account != "" {
		d.Account = o.Account
	}
	if o.JobName != "" {
		d.JobName = o.JobName
	}
	if o.TasksPerNode > 0 {
		d.TasksPerNode = o.TasksPerNode
	}
	if o.GPUs > 0 {
		d.GPUs = o.GPUs
	}
}

// Validate checks the descriptor for completeness and against per-node
// cluster limits. A descriptor that validates renders to a script the
// scheduler will not reject for malformed or overcommitted requests.
func (d *JobDescriptor) Validate(limits ClusterLimits) error {
	if fields := d.Placeholders(); len(fields) != 0 {
		return errors.Wrapf(ErrUnresolvedPlaceholder, "fields: %s", strings.Join(fields, ", "))
	}

	if d.JobName == "" {
		return errors.New("job_name is required")
	}
	if d.Account == "" {
		return errors.New("account is required")
	}
	if d.Partition == "" {
		return errors.New("partition is required")
	}
	if d.Command.Interpreter == "" || d.Command.Script == "" {
		return errors.New("command interpreter and script are required")
	}

	if d.Nodes < 1 {
		return errors.Errorf("nodes must be >= 1, got %d", d.Nodes)
	}
	if d.TasksPerNode < 1 {
		return errors.Errorf("tasks_per_node must be >= 1, got %d", d.TasksPerNode)
	}
	if d.GPUs < 0 {
		return errors.Errorf("gpus must be >= 0, got %d", d.GPUs)
	}
	if d.MemoryMB <= 0 {
		return errors.Errorf("memory_mb must be > 0, got %d", d.MemoryMB)
	}

	if limits.NodeMemoryMB > 0 && d.MemoryMB > limits.NodeMemoryMB {
		return errors.Errorf("memory_mb %d exceeds node capacity %d", d.MemoryMB, limits.NodeMemoryMB)
	}
	if limits.GpusPerNode > 0 && d.GPUs > limits.GpusPerNode {
		return errors.Errorf("gpus %d exceeds per-node capacity %d", d.GPUs, limits.GpusPerNode)
	}
	if limits.TasksPerNode > 0 && d.TasksPerNode > limits.TasksPerNode {
		return errors.Errorf("tasks_per_node %d exceeds per-node capacity %d", d.TasksPerNode, limits.TasksPerNode)
	}

	wallTime, err := d.Duration()
	if err != nil {
		return errors.Wrapf(err, "invalid wall_time %q", d.WallTime)
	}
	if limits.MaxWallTime != "" {
		maxWallTime, err := slurm.ParseDuration(limits.MaxWallTime)
		if err != nil && err != slurm.ErrDurationIsUnlimited {
			return errors.Wrapf(err, "invalid max_wall_time %q", limits.MaxWallTime)
		}
		if maxWallTime != nil && *wallTime > *maxWallTime {
			return errors.Errorf("wall_time %s exceeds partition limit %s", d.WallTime, limits.MaxWallTime)
		}
	}

	if d.Monitor != nil && d.Monitor.LogFile == "" && d.Monitor.Command != "" {
		return errors.New("monitor.log_file is required when monitor.command is set")
	}

	return nil
}
