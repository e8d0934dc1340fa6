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

package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseSacctResponse parses the output of
// sacct -p -n -o start,end,exitcode,state,jobid,jobname.
func parseSacctResponse(raw string) ([]*JobStepInfo, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	infos := make([]*JobStepInfo, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}

		// with -p every field ends with a separator, drop the trailing one
		splitted := strings.Split(strings.TrimSuffix(l, "|"), "|")
		if len(splitted) != 6 {
			return nil, errors.New("output must contain 6 sections")
		}

		startedAt, err := parseTime(splitted[0])
		if err != nil {
			return nil, err
		}

		finishedAt, err := parseTime(splitted[1])
		if err != nil {
			return nil, err
		}

		exitCodeSplitted := strings.Split(splitted[2], ":")
		if len(exitCodeSplitted) != 2 {
			return nil, errors.New("exit code must contain 2 sections")
		}
		exitCode, err := strconv.Atoi(exitCodeSplitted[0])
		if err != nil {
			return nil, err
		}

		infos = append(infos, &JobStepInfo{
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			ExitCode:   exitCode,
			State:      splitted[3],
			ID:         splitted[4],
			Name:       splitted[5],
		})
	}

	return infos, nil
}

// parseResources extracts partition limits from scontrol show partition
// output.
func parseResources(raw string) (*Resources, error) {
	fields := slurmFieldMap(raw)

	r := &Resources{}
	if v, ok := fields["TotalNodes"]; ok && v != unknownMarker {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse TotalNodes %q", v)
		}
		r.Nodes = n
	}
	if v, ok := fields["MaxMemPerNode"]; ok && v != unlimitedMarker {
		m, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse MaxMemPerNode %q", v)
		}
		r.MemPerNode = m
	}
	if v, ok := fields["MaxCPUsPerNode"]; ok && v != unlimitedMarker {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse MaxCPUsPerNode %q", v)
		}
		r.CPUPerNode = c
	}
	if v, ok := fields["MaxTime"]; ok {
		d, err := ParseDuration(v)
		if err != nil && err != ErrDurationIsUnlimited {
			return nil, errors.Wrapf(err, "could not parse MaxTime %q", v)
		}
		if d != nil {
			r.WallTime = *d
		}
	}
	return r, nil
}

// parsePartitionsNames collects PartitionName values from scontrol show
// partition output.
func parsePartitionsNames(raw string) []string {
	var names []string
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		fields := slurmFieldMap(block)
		if name, ok := fields["PartitionName"]; ok {
			names = append(names, name)
		}
	}
	return names
}

func parsePartition(raw string) *Partition {
	fields := slurmFieldMap(raw)

	p := &Partition{}
	if nodes, ok := fields["Nodes"]; ok && nodes != "(null)" {
		p.Nodes = expandNodeList(nodes)
	}
	return p
}

// expandNodeList expands scontrol's compressed hostlist notation, e.g.
// "lrdn[0001,0003-0004],login01" into individual node names.
func expandNodeList(list string) []string {
	var names []string
	for _, item := range splitOutsideBrackets(list) {
		names = append(names, expandHostItem(item)...)
	}
	return names
}

// splitOutsideBrackets splits a hostlist on commas that are not inside
// a bracket range.
func splitOutsideBrackets(list string) []string {
	var items []string
	depth, start := 0, 0
	for i, r := range list {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, list[start:i])
				start = i + 1
			}
		}
	}
	if start < len(list) {
		items = append(items, list[start:])
	}
	return items
}

// expandHostItem expands a single prefix[ranges]suffix item. Numeric
// ranges keep the zero padding of their lower bound.
func expandHostItem(item string) []string {
	open := strings.IndexByte(item, '[')
	if open == -1 {
		return []string{item}
	}
	closing := strings.IndexByte(item, ']')
	if closing < open {
		return []string{item}
	}

	prefix, suffix := item[:open], item[closing+1:]
	var names []string
	for _, r := range strings.Split(item[open+1:closing], ",") {
		bounds := strings.SplitN(r, "-", 2)
		lo, err := strconv.Atoi(bounds[0])
		if err != nil {
			names = append(names, prefix+r+suffix)
			continue
		}
		hi := lo
		if len(bounds) == 2 {
			if h, err := strconv.Atoi(bounds[1]); err == nil {
				hi = h
			}
		}
		width := len(bounds[0])
		for i := lo; i <= hi; i++ {
			names = append(names, fmt.Sprintf("%s%0*d%s", prefix, width, i, suffix))
		}
	}
	return names
}

// parseVersionResponse extracts the version number from sinfo -V
// output, e.g. "slurm 23.02.6".
func parseVersionResponse(raw string) (string, error) {
	s := strings.Split(strings.TrimSpace(raw), " ")
	if len(s) != 2 {
		return "", errors.Errorf("could not parse sinfo response %s", raw)
	}
	return s[1], nil
}

// parseNode extracts resources from a single scontrol show nodes block.
func parseNode(raw string) Node {
	fields := slurmFieldMap(raw)

	var node Node
	if v, ok := fields["NodeName"]; ok {
		node.Name = v
	}
	if v, ok := fields["CPUTot"]; ok {
		node.Cpus, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["CPUAlloc"]; ok {
		node.AlloCpus, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["RealMemory"]; ok {
		node.Memory, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["AllocMem"]; ok {
		node.AlloMemory, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["Gres"]; ok {
		node.GpuType, node.Gpus = parseGresGpus(v)
	}
	if v, ok := fields["AllocTRES"]; ok {
		for _, tres := range strings.Split(v, ",") {
			kv := strings.SplitN(tres, "=", 2)
			if len(kv) != 2 || kv[0] != "gres/gpu" {
				continue
			}
			node.AlloGpus, _ = strconv.ParseInt(kv[1], 10, 64)
		}
	}
	return node
}

// parseGresGpus decodes a gres gpu declaration of the form gpu:N or
// gpu:type:N, with an optional socket suffix like (S:0-1).
func parseGresGpus(gres string) (gpuType string, count int64) {
	for _, g := range strings.Split(gres, ",") {
		if i := strings.IndexByte(g, '('); i != -1 {
			g = g[:i]
		}
		parts := strings.Split(g, ":")
		if parts[0] != "gpu" {
			continue
		}
		switch len(parts) {
		case 2:
			count, _ = strconv.ParseInt(parts[1], 10, 64)
		case 3:
			gpuType = parts[1]
			count, _ = strconv.ParseInt(parts[2], 10, 64)
		}
		return gpuType, count
	}
	return "", 0
}

// slurmFieldMap splits scontrol style Key=Value output into a map.
// Fields whose value itself contains '=' (such as AllocTRES) keep the
// remainder intact.
func slurmFieldMap(raw string) map[string]string {
	fields := make(map[string]string)
	for _, f := range strings.Fields(raw) {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = kv[1]
	}
	return fields
}
