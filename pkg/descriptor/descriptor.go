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

// Package descriptor defines the structured job description that replaces
// hand-edited sbatch scripts. A descriptor carries the resource request,
// exactly one command, and an optional background monitor.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/quantumhpc/qdispatch/pkg/slurm"
)

// Command is the single foreground invocation of a job. Enumerating the
// interpreter and script explicitly replaces the old convention of
// commenting out all command lines but one.
type Command struct {
	Interpreter string   `yaml:"interpreter"`
	Script      string   `yaml:"script"`
	Args        []string `yaml:"args,omitempty"`
}

// Line renders the command as a shell line.
func (c Command) Line() string {
	parts := []string{c.Interpreter, c.Script}
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Monitor describes an optional diagnostic command launched in the
// background right before the main command. It is detached and never
// awaited, its output goes to LogFile.
type Monitor struct {
	Command         string `yaml:"command,omitempty"`
	LogFile         string `yaml:"log_file,omitempty"`
	IntervalSeconds int    `yaml:"interval_seconds,omitempty"`
}

// JobDescriptor is a complete declaration of a batch job: the scheduler
// resource request plus the command to run.
type JobDescriptor struct {
	JobName      string            `yaml:"job_name"`
	Account      string            `yaml:"account"`
	Partition    string            `yaml:"partition"`
	WallTime     string            `yaml:"wall_time"`
	Nodes        int64             `yaml:"nodes"`
	TasksPerNode int64             `yaml:"tasks_per_node"`
	GPUs         int64             `yaml:"gpus"`
	MemoryMB     int64             `yaml:"memory_mb"`
	Stdout       string            `yaml:"stdout,omitempty"`
	Stderr       string            `yaml:"stderr,omitempty"`
	WorkDir      string            `yaml:"work_dir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	Command      Command           `yaml:"command"`
	Monitor      *Monitor          `yaml:"monitor,omitempty"`
}

// ClusterLimits bounds resource requests per node. Defaults match the
// booster partition the original experiments ran on.
type ClusterLimits struct {
	Partition    string `yaml:"partition"`
	NodeMemoryMB int64  `yaml:"node_memory_mb"`
	GpusPerNode  int64  `yaml:"gpus_per_node"`
	TasksPerNode int64  `yaml:"tasks_per_node"`
	MaxWallTime  string `yaml:"max_wall_time"`
}

// DefaultLimits returns limits for a 4 GPU, 494000 MB booster node.
func DefaultLimits() ClusterLimits {
	return ClusterLimits{
		Partition:    "boost_usr_prod",
		NodeMemoryMB: 494000,
		GpusPerNode:  4,
		TasksPerNode: 32,
		MaxWallTime:  "24:00:00",
	}
}

// LoadLimits reads cluster limits from a YAML file. Zero fields fall
// back to the defaults.
func LoadLimits(path string) (ClusterLimits, error) {
	limits := DefaultLimits()

	file, err := os.Open(path)
	if err != nil {
		return limits, errors.Wrapf(err, "could not open limits file %s", path)
	}
	defer file.Close()

	var loaded ClusterLimits
	if err = yaml.NewDecoder(file).Decode(&loaded); err != nil {
		return limits, errors.Wrapf(err, "could not decode limits file %s", path)
	}

	if loaded.Partition != "" {
		limits.Partition = loaded.Partition
	}
	if loaded.NodeMemoryMB > 0 {
		limits.NodeMemoryMB = loaded.NodeMemoryMB
	}
	if loaded.GpusPerNode > 0 {
		limits.GpusPerNode = loaded.GpusPerNode
	}
	if loaded.TasksPerNode > 0 {
		limits.TasksPerNode = loaded.TasksPerNode
	}
	if loaded.MaxWallTime != "" {
		limits.MaxWallTime = loaded.MaxWallTime
	}
	return limits, nil
}

// Load reads a single descriptor from a YAML file.
func Load(path string) (*JobDescriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open descriptor %s", path)
	}
	defer file.Close()

	var d JobDescriptor
	if err = yaml.NewDecoder(file).Decode(&d); err != nil {
		return nil, errors.Wrapf(err, "could not decode descriptor %s", path)
	}
	return &d, nil
}

// LoadDir reads all *.yaml and *.yml descriptors in a directory, sorted
// by file name.
func LoadDir(dir string) ([]*JobDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read descriptor dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	descriptors := make([]*JobDescriptor, 0, len(names))
	for _, name := range names {
		d, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// Encode renders the descriptor as YAML.
func (d *JobDescriptor) Encode() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal descriptor")
	}
	return out, nil
}

// Write stores the descriptor as YAML.
func (d *JobDescriptor) Write(path string) error {
	out, err := d.Encode()
	if err != nil {
		return err
	}
	if err = os.WriteFile(path, out, 0644); err != nil {
		return errors.Wrapf(err, "could not write descriptor %s", path)
	}
	return nil
}

// SetDefaults fills derivable fields: single node jobs, default
// partition, and output file patterns built from the job name with the
// scheduler job-id token.
func (d *JobDescriptor) SetDefaults(limits ClusterLimits) {
	if d.Nodes == 0 {
		d.Nodes = 1
	}
	if d.TasksPerNode == 0 {
		d.TasksPerNode = 1
	}
	if d.Partition == "" {
		d.Partition = limits.Partition
	}
	if d.Stdout == "" && d.JobName != "" && !ContainsPlaceholder(d.JobName) {
		d.Stdout = fmt.Sprintf("%s-%%j.out", d.JobName)
	}
	if d.Stderr == "" && d.JobName != "" && !ContainsPlaceholder(d.JobName) {
		d.Stderr = fmt.Sprintf("%s-%%j.err", d.JobName)
	}
}

// Duration parses the wall time field.
func (d *JobDescriptor) Duration() (*time.Duration, error) {
	return slurm.ParseDuration(d.WallTime)
}
