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

// Package dispatch drives a descriptor through resolve, validate,
// render and submit, and wraps job inspection for submitted jobs.
package dispatch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"

	"github.com/quantumhpc/qdispatch/pkg/batch"
	"github.com/quantumhpc/qdispatch/pkg/descriptor"
	"github.com/quantumhpc/qdispatch/pkg/slurm"
)

// SlurmClient is the part of the slurm client the dispatcher needs.
type SlurmClient interface {
	SBatch(script string) (int64, error)
	SCancel(jobID int64) error
	SJobInfo(jobID int64) ([]*slurm.JobInfo, error)
	SJobSteps(jobID int64) ([]*slurm.JobStepInfo, error)
	Resources(partition string) (*slurm.Resources, error)
	Partition(partition string) (*slurm.Partition, error)
	Nodes(nodeNames []string) ([]slurm.Node, error)
	Open(path string) (io.ReadCloser, error)
	Tail(path string) (io.ReadCloser, error)
}

// Dispatcher submits descriptors to Slurm and keeps rendered scripts in
// a spool directory for later inspection.
type Dispatcher struct {
	client   SlurmClient
	limits   descriptor.ClusterLimits
	spoolDir string
}

// NewDispatcher creates a dispatcher over the given client.
func NewDispatcher(client SlurmClient, limits descriptor.ClusterLimits, spoolDir string) *Dispatcher {
	return &Dispatcher{client: client, limits: limits, spoolDir: spoolDir}
}

// SubmitOptions tune a single submission.
type SubmitOptions struct {
	Overrides descriptor.Overrides
	// DryRun renders and validates but does not call sbatch.
	DryRun bool
	// SkipLiveCheck disables querying the cluster for partition limits
	// before submission.
	SkipLiveCheck bool
}

// SubmitResult reports a finished submission.
type SubmitResult struct {
	JobID      int64
	Script     string
	ScriptPath string
}

// Prepare resolves, defaults and validates a descriptor, then renders
// its sbatch script. Unresolved placeholders fail here, before the
// scheduler ever sees the script.
func (dp *Dispatcher) Prepare(d *descriptor.JobDescriptor, o descriptor.Overrides) (string, error) {
	d.Resolve(o)
	d.SetDefaults(dp.limits)
	if err := d.Validate(dp.limits); err != nil {
		return "", errors.Wrap(err, "descriptor validation failed")
	}
	return batch.Render(d), nil
}

// Submit runs the full pipeline and hands the script to sbatch.
func (dp *Dispatcher) Submit(d *descriptor.JobDescriptor, opts SubmitOptions) (*SubmitResult, error) {
	script, err := dp.Prepare(d, opts.Overrides)
	if err != nil {
		return nil, err
	}

	if !opts.SkipLiveCheck {
		if err = dp.liveValidate(d); err != nil {
			return nil, err
		}
	}

	res := &SubmitResult{Script: script}
	if opts.DryRun {
		return res, nil
	}

	res.ScriptPath, err = dp.spool(d.JobName, script)
	if err != nil {
		return nil, err
	}

	id, err := dp.client.SBatch(script)
	if err != nil {
		return nil, errors.Wrap(err, "could not submit batch script")
	}
	res.JobID = id

	logrus.Infof("Submitted job %d (%s), script %s", id, d.JobName, res.ScriptPath)
	return res, nil
}

// liveValidate checks the request against limits reported by the
// cluster itself rather than the static configuration.
func (dp *Dispatcher) liveValidate(d *descriptor.JobDescriptor) error {
	r, err := dp.client.Resources(d.Partition)
	if err != nil {
		return errors.Wrapf(err, "could not query partition %s", d.Partition)
	}

	if r.Nodes > 0 && d.Nodes > r.Nodes {
		return errors.Errorf("nodes %d exceeds partition total %d", d.Nodes, r.Nodes)
	}
	if r.MemPerNode > 0 && d.MemoryMB > r.MemPerNode {
		return errors.Errorf("memory_mb %d exceeds partition limit %d", d.MemoryMB, r.MemPerNode)
	}
	if r.WallTime > 0 {
		wallTime, err := d.Duration()
		if err != nil {
			return errors.Wrapf(err, "invalid wall_time %q", d.WallTime)
		}
		if *wallTime > r.WallTime {
			return errors.Errorf("wall_time %s exceeds partition limit %s", d.WallTime, r.WallTime)
		}
	}

	if d.GPUs == 0 {
		return nil
	}

	p, err := dp.client.Partition(d.Partition)
	if err != nil {
		return errors.Wrapf(err, "could not query partition %s nodes", d.Partition)
	}
	nodes, err := dp.client.Nodes(p.Nodes)
	if err != nil {
		return errors.Wrap(err, "could not query node resources")
	}
	for _, n := range nodes {
		if n.Gpus >= d.GPUs {
			return nil
		}
	}
	if len(nodes) != 0 {
		return errors.Errorf("no node in partition %s has %d gpus", d.Partition, d.GPUs)
	}
	return nil
}

// spool writes the rendered script next to earlier submissions so the
// exact submitted text can be audited later.
func (dp *Dispatcher) spool(jobName, script string) (string, error) {
	if !fileutil.Exist(dp.spoolDir) {
		if err := os.MkdirAll(dp.spoolDir, 0755); err != nil {
			return "", errors.Wrapf(err, "could not create spool dir %s", dp.spoolDir)
		}
	}

	path := filepath.Join(dp.spoolDir, jobName+"-"+uuid.New().String()+".sbatch")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return "", errors.Wrapf(err, "could not spool script %s", path)
	}
	return path, nil
}

// Status returns scontrol information for a submitted job.
func (dp *Dispatcher) Status(jobID int64) ([]*slurm.JobInfo, error) {
	return dp.client.SJobInfo(jobID)
}

// Steps returns sacct step information for a submitted job.
func (dp *Dispatcher) Steps(jobID int64) ([]*slurm.JobStepInfo, error) {
	return dp.client.SJobSteps(jobID)
}

// Cancel kills a submitted job. The detached monitor, if any, is left
// to the node cleanup.
func (dp *Dispatcher) Cancel(jobID int64) error {
	return dp.client.SCancel(jobID)
}

// Logs opens the job's stdout file, optionally following appends while
// the job is still writing.
func (dp *Dispatcher) Logs(jobID int64, follow bool) (io.ReadCloser, error) {
	infos, err := dp.Status(jobID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 || infos[0].StdOut == "" {
		return nil, errors.Errorf("no stdout path known for job %d", jobID)
	}

	if follow {
		return dp.client.Tail(infos[0].StdOut)
	}
	return dp.client.Open(infos[0].StdOut)
}
