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

package main

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"

	"github.com/quantumhpc/qdispatch/pkg/descriptor"
	"github.com/quantumhpc/qdispatch/pkg/dispatch"
	"github.com/quantumhpc/qdispatch/pkg/slurm"
)

func init() {
	logrus.SetReportCaller(true)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:03:04",
	})
}

var (
	limitsPath string
	spoolDir   string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "qdispatch",
		Short:         "Validate, render and submit Slurm jobs from structured descriptors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&limitsPath, "limits", "", "path to a cluster limits file (default ~/.qdispatch/cluster.yaml)")
	root.PersistentFlags().StringVar(&spoolDir, "spool-dir", "", "directory for submitted scripts (default ~/.qdispatch/spool)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "dump resolved descriptors before use")

	root.AddCommand(
		newValidateCmd(),
		newRenderCmd(),
		newParseCmd(),
		newSubmitCmd(),
		newStatusCmd(),
		newStepsCmd(),
		newCancelCmd(),
		newLogsCmd(),
		newResourcesCmd(),
		newVersionCmd(),
		newMonitorCmd(),
	)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// configDir is where limits and spooled scripts live by default.
func configDir() string {
	home, err := homedir.Dir()
	if err != nil {
		logrus.Fatalf("Could not resolve home directory: %v", err)
	}
	return filepath.Join(home, ".qdispatch")
}

func loadLimits() descriptor.ClusterLimits {
	path := limitsPath
	if path == "" {
		path = filepath.Join(configDir(), "cluster.yaml")
		if !fileutil.Exist(path) {
			return descriptor.DefaultLimits()
		}
	}

	limits, err := descriptor.LoadLimits(path)
	if err != nil {
		logrus.Fatalf("Could not load cluster limits: %v", err)
	}
	return limits
}

func newDispatcher() *dispatch.Dispatcher {
	client, err := slurm.NewClient()
	if err != nil {
		logrus.Fatalf("Could not create slurm client: %v", err)
	}

	dir := spoolDir
	if dir == "" {
		dir = filepath.Join(configDir(), "spool")
	}
	return dispatch.NewDispatcher(client, loadLimits(), dir)
}

func loadDescriptor(path string) *descriptor.JobDescriptor {
	d, err := descriptor.Load(path)
	if err != nil {
		logrus.Fatalf("Could not load descriptor: %v", err)
	}
	return d
}
