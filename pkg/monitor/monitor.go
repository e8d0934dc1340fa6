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

// Package monitor launches the background GPU utilization sampler that
// runs next to a job. The sampler is fire and forget: it is detached
// from the launching process and abandoned when the node is reclaimed,
// the job's exit status is always the main command's.
package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantumhpc/qdispatch/pkg/descriptor"
)

const (
	// DefaultIntervalSeconds is the sampling period used when the
	// descriptor does not set one.
	DefaultIntervalSeconds = 5

	defaultLogFile = "gpu-monitor.log"
)

// DefaultCommand returns the nvidia-smi sampling loop used when a
// descriptor enables monitoring without naming a command.
func DefaultCommand(intervalSeconds int) string {
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultIntervalSeconds
	}
	return fmt.Sprintf(
		"nvidia-smi --query-gpu=timestamp,index,utilization.gpu,utilization.memory,memory.used --format=csv -l %d",
		intervalSeconds,
	)
}

// Normalize fills monitor defaults in place.
func Normalize(m *descriptor.Monitor) {
	if m == nil {
		return
	}
	if m.Command == "" {
		m.Command = DefaultCommand(m.IntervalSeconds)
	}
	if m.LogFile == "" {
		m.LogFile = defaultLogFile
	}
}

// Trailer renders the background launch line placed right before the
// main command in a batch script.
func Trailer(m *descriptor.Monitor) string {
	return fmt.Sprintf("%s > %s 2>&1 &", m.Command, m.LogFile)
}

// Start launches the monitor command detached, with stdout and stderr
// appended to its log file. The returned pid is informational only, the
// process is never awaited.
func Start(m *descriptor.Monitor) (int, error) {
	Normalize(m)

	log, err := os.OpenFile(m.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, errors.Wrapf(err, "could not open monitor log %s", m.LogFile)
	}
	defer log.Close()

	cmd := exec.Command("/bin/sh", "-c", m.Command)
	cmd.Stdout = log
	cmd.Stderr = log
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err = cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "could not start monitor")
	}

	pid := cmd.Process.Pid
	if err = cmd.Process.Release(); err != nil {
		return pid, errors.Wrap(err, "could not detach monitor")
	}

	logrus.Infof("Started monitor pid %d, log %s", pid, m.LogFile)
	return pid, nil
}
