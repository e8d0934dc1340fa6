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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantumhpc/qdispatch/pkg/batch"
	"github.com/quantumhpc/qdispatch/pkg/descriptor"
	"github.com/quantumhpc/qdispatch/pkg/dispatch"
	"github.com/quantumhpc/qdispatch/pkg/monitor"
	"github.com/quantumhpc/qdispatch/pkg/slurm"
)

func overrideFlags(fs *pflag.FlagSet, o *descriptor.Overrides) {
	fs.StringVar(&o.Account, "account", "", "account to charge the job to")
	fs.StringVar(&o.JobName, "job-name", "", "override the descriptor job name")
	fs.Int64Var(&o.TasksPerNode, "tasks-per-node", 0, "override tasks per node")
	fs.Int64Var(&o.GPUs, "gpus", 0, "override the gpu count")
}

func newValidateCmd() *cobra.Command {
	var o descriptor.Overrides
	cmd := &cobra.Command{
		Use:   "validate <descriptor.yaml>",
		Short: "Check a descriptor against cluster limits without submitting",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d := loadDescriptor(args[0])
			limits := loadLimits()
			d.Resolve(o)
			d.SetDefaults(limits)
			if verbose {
				spew.Dump(d)
			}
			if err := d.Validate(limits); err != nil {
				logrus.Fatalf("Descriptor %s is invalid: %v", args[0], err)
			}
			fmt.Printf("%s: ok\n", args[0])
		},
	}
	overrideFlags(cmd.Flags(), &o)
	return cmd
}

func newRenderCmd() *cobra.Command {
	var o descriptor.Overrides
	cmd := &cobra.Command{
		Use:   "render <descriptor.yaml>",
		Short: "Print the sbatch script a descriptor renders to",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d := loadDescriptor(args[0])
			limits := loadLimits()
			d.Resolve(o)
			d.SetDefaults(limits)
			if err := d.Validate(limits); err != nil {
				logrus.Fatalf("Descriptor %s is invalid: %v", args[0], err)
			}
			fmt.Print(batch.Render(d))
		},
	}
	overrideFlags(cmd.Flags(), &o)
	return cmd
}

func newParseCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "parse <script.sh>",
		Short: "Convert a legacy sbatch script into a descriptor",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				logrus.Fatalf("Could not read script: %v", err)
			}

			d, diag, err := batch.Parse(string(raw))
			if err != nil {
				logrus.Fatalf("Could not parse script: %v", err)
			}

			if diag.ActiveCommands != 1 {
				logrus.Warnf("Script has %d active command lines, expected exactly 1", diag.ActiveCommands)
			}
			if len(diag.DisabledCommands) != 0 {
				logrus.Warnf("Script has %d disabled command alternatives", len(diag.DisabledCommands))
			}
			if len(diag.Placeholders) != 0 {
				logrus.Warnf("Unresolved placeholders in: %s", strings.Join(diag.Placeholders, ", "))
			}
			for _, l := range diag.SetupLines {
				logrus.Warnf("Dropping setup line: %s", l)
			}

			if out == "" {
				enc, err := d.Encode()
				if err != nil {
					logrus.Fatal(err)
				}
				fmt.Print(string(enc))
				return
			}
			if err = d.Write(out); err != nil {
				logrus.Fatal(err)
			}
			logrus.Infof("Wrote %s", out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the descriptor to a file instead of stdout")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var opts dispatch.SubmitOptions
	cmd := &cobra.Command{
		Use:   "submit <descriptor.yaml>",
		Short: "Render a descriptor and hand it to sbatch",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d := loadDescriptor(args[0])
			if verbose {
				spew.Dump(d)
			}

			res, err := newDispatcher().Submit(d, opts)
			if err != nil {
				logrus.Fatalf("Submission failed: %v", err)
			}
			if opts.DryRun {
				fmt.Print(res.Script)
				return
			}
			fmt.Printf("%d\n", res.JobID)
		},
	}
	overrideFlags(cmd.Flags(), &opts.Overrides)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate and render only, do not submit")
	cmd.Flags().BoolVar(&opts.SkipLiveCheck, "skip-live-check", false, "do not query the cluster for partition limits")
	return cmd
}

func parseJobID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		logrus.Fatalf("Invalid job id %q", arg)
	}
	return id
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <jobid>",
		Short: "Show scontrol information for a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			infos, err := newDispatcher().Status(parseJobID(args[0]))
			if err != nil {
				logrus.Fatalf("Could not get job info: %v", err)
			}
			for _, info := range infos {
				fmt.Printf("%s\t%s\t%s\tnodes=%s\texit=%s\n",
					info.ID, info.Name, info.State, info.NodeList, info.ExitCode)
			}
		},
	}
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <jobid>",
		Short: "Show sacct step information for a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			steps, err := newDispatcher().Steps(parseJobID(args[0]))
			if err != nil {
				logrus.Fatalf("Could not get job steps: %v", err)
			}
			for _, s := range steps {
				fmt.Printf("%s\t%s\t%s\texit=%d\n", s.ID, s.Name, s.State, s.ExitCode)
			}
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobid>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := newDispatcher().Cancel(parseJobID(args[0])); err != nil {
				logrus.Fatalf("Could not cancel job: %v", err)
			}
		},
	}
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <jobid>",
		Short: "Print a job's stdout file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			rc, err := newDispatcher().Logs(parseJobID(args[0]), follow)
			if err != nil {
				logrus.Fatalf("Could not open job output: %v", err)
			}
			defer rc.Close()

			if _, err = io.Copy(os.Stdout, rc); err != nil && err != io.EOF {
				logrus.Fatalf("Could not read job output: %v", err)
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep reading while the job appends output")
	return cmd
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources [partition]",
		Short: "Show limits and node resources of a partition, or list partitions",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, err := slurm.NewClient()
			if err != nil {
				logrus.Fatalf("Could not create slurm client: %v", err)
			}

			if len(args) == 0 {
				names, err := client.Partitions()
				if err != nil {
					logrus.Fatalf("Could not list partitions: %v", err)
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return
			}
			partition := args[0]

			r, err := client.Resources(partition)
			if err != nil {
				logrus.Fatalf("Could not query partition: %v", err)
			}
			fmt.Printf("partition=%s nodes=%d mem_per_node=%d cpu_per_node=%d wall_time=%s\n",
				partition, r.Nodes, r.MemPerNode, r.CPUPerNode, r.WallTime)

			p, err := client.Partition(partition)
			if err != nil {
				logrus.Fatalf("Could not query partition nodes: %v", err)
			}
			nodes, err := client.Nodes(p.Nodes)
			if err != nil {
				logrus.Fatalf("Could not query node resources: %v", err)
			}
			for _, n := range nodes {
				fmt.Printf("%s\tcpus=%d mem=%d gpus=%d:%s alloc_gpus=%d\n",
					n.Name, n.Cpus, n.Memory, n.Gpus, n.GpuType, n.AlloGpus)
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the Slurm version the cluster runs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client, err := slurm.NewClient()
			if err != nil {
				logrus.Fatalf("Could not create slurm client: %v", err)
			}
			v, err := client.Version()
			if err != nil {
				logrus.Fatalf("Could not get slurm version: %v", err)
			}
			fmt.Println(v)
		},
	}
}

func newMonitorCmd() *cobra.Command {
	m := &descriptor.Monitor{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Launch the detached GPU utilization sampler",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pid, err := monitor.Start(m)
			if err != nil {
				logrus.Fatalf("Could not start monitor: %v", err)
			}
			fmt.Printf("%d\n", pid)
		},
	}
	cmd.Flags().StringVar(&m.Command, "command", "", "sampler command (default nvidia-smi query loop)")
	cmd.Flags().StringVar(&m.LogFile, "log-file", "", "sampler log file (default gpu-monitor.log)")
	cmd.Flags().IntVar(&m.IntervalSeconds, "interval", 0, "sampling period in seconds")
	return cmd
}
