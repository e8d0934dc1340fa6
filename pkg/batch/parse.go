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
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/quantumhpc/qdispatch/pkg/descriptor"
)

const directivePrefix = "#SBATCH"

// Diagnostics report what Parse found beyond the descriptor itself. The
// old scripts kept several command alternatives with all but one
// commented out, and left marker tokens in directive values, both are
// surfaced here instead of being silently fixed up.
type Diagnostics struct {
	// ActiveCommands counts uncommented command lines. The convention
	// is exactly one, anything else is flagged by the caller.
	ActiveCommands int
	// DisabledCommands are commented-out command alternatives.
	DisabledCommands []string
	// Placeholders are directive keys whose value is a marker token.
	Placeholders []string
	// SetupLines are environment setup lines (module load and the like)
	// that have no descriptor field and are dropped on conversion.
	SetupLines []string
}

// legacy scripts marked values to fill in with <name> or with the
// canonical <<NAME>> form
var legacyPlaceholderRe = regexp.MustCompile(`^<[^<>]+>$`)

func isPlaceholder(v string) bool {
	return descriptor.ContainsPlaceholder(v) || legacyPlaceholderRe.MatchString(v)
}

var setupPrefixes = []string{"module ", "source ", "conda ", "set ", "ulimit "}

func isSetupLine(line string) bool {
	for _, p := range setupPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// looksLikeCommand reports whether a commented-out line is a disabled
// command alternative rather than prose.
var commandPrefixes = []string{"python", "srun ", "mpirun ", "bash ", "sh ", "./"}

func looksLikeCommand(line string) bool {
	for _, p := range commandPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// backgroundRe matches a detached monitor launch of the form
// "cmd > log 2>&1 &".
var backgroundRe = regexp.MustCompile(`^(.+?)\s*>\s*(\S+)\s*(?:2>&1)?\s*&$`)

// Parse converts a legacy sbatch script into a descriptor. It never
// guesses: ambiguous content (several active commands, marker tokens)
// is reported through Diagnostics, and the descriptor keeps the first
// active command found.
func Parse(script string) (*descriptor.JobDescriptor, *Diagnostics, error) {
	d := &descriptor.JobDescriptor{}
	diag := &Diagnostics{}

	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "" || strings.HasPrefix(line, "#!"):
			continue
		case strings.HasPrefix(line, directivePrefix):
			if err := parseDirective(d, diag, strings.TrimSpace(line[len(directivePrefix):])); err != nil {
				return nil, nil, err
			}
		case strings.HasPrefix(line, "#"):
			comment := strings.TrimSpace(strings.TrimLeft(line, "# "))
			if looksLikeCommand(comment) {
				diag.DisabledCommands = append(diag.DisabledCommands, comment)
			}
		case strings.HasPrefix(line, "cd "):
			d.WorkDir = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "export "):
			parseExport(d, strings.TrimSpace(line[7:]))
		case isSetupLine(line):
			diag.SetupLines = append(diag.SetupLines, line)
		case strings.HasSuffix(line, "&"):
			if m := backgroundRe.FindStringSubmatch(line); m != nil {
				d.Monitor = &descriptor.Monitor{Command: strings.TrimSpace(m[1]), LogFile: m[2]}
				continue
			}
			// a trailing & without redirection is still a command
			fallthrough
		default:
			diag.ActiveCommands++
			if diag.ActiveCommands == 1 {
				d.Command = parseCommandLine(strings.TrimSuffix(line, "&"))
			}
		}
	}

	return d, diag, nil
}

// parseDirective handles one #SBATCH line. Both --key=value and
// --key value forms occur in the wild.
func parseDirective(d *descriptor.JobDescriptor, diag *Diagnostics, directive string) error {
	var key, value string
	if i := strings.IndexAny(directive, "= "); i != -1 {
		key, value = directive[:i], strings.TrimSpace(directive[i+1:])
	} else {
		key = directive
	}
	key = strings.TrimLeft(key, "-")

	// short option aliases used by the old scripts
	switch key {
	case "A":
		key = "account"
	case "p":
		key = "partition"
	case "t":
		key = "time"
	case "N":
		key = "nodes"
	case "J":
		key = "job-name"
	case "o":
		key = "output"
	case "e":
		key = "error"
	}

	if isPlaceholder(value) {
		diag.Placeholders = append(diag.Placeholders, key)
	}

	var err error
	switch key {
	case "account":
		d.Account = value
	case "partition":
		d.Partition = value
	case "time":
		d.WallTime = value
	case "job-name":
		d.JobName = value
	case "output":
		d.Stdout = value
	case "error":
		d.Stderr = value
	case "nodes":
		d.Nodes, err = parseDirectiveInt(key, value)
	case "ntasks-per-node":
		d.TasksPerNode, err = parseDirectiveInt(key, value)
	case "mem":
		d.MemoryMB, err = parseMemMB(value)
	case "gres":
		d.GPUs, err = parseGresDirective(value)
	default:
		// directives outside the descriptor schema are ignored
	}
	return err
}

func parseDirectiveInt(key, value string) (int64, error) {
	if isPlaceholder(value) {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return n, nil
}

// parseMemMB decodes a --mem value. The old scripts use unit-less
// megabytes, but M/MB/G/GB/T suffixes are accepted too.
func parseMemMB(value string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "MB"):
		v = strings.TrimSuffix(v, "MB")
	case strings.HasSuffix(v, "GB"):
		v, mult = strings.TrimSuffix(v, "GB"), 1024
	case strings.HasSuffix(v, "TB"):
		v, mult = strings.TrimSuffix(v, "TB"), 1024*1024
	case strings.HasSuffix(v, "K"):
		return 0, errors.Errorf("mem value %q is below one megabyte", value)
	case strings.HasSuffix(v, "M"):
		v = strings.TrimSuffix(v, "M")
	case strings.HasSuffix(v, "G"):
		v, mult = strings.TrimSuffix(v, "G"), 1024
	case strings.HasSuffix(v, "T"):
		v, mult = strings.TrimSuffix(v, "T"), 1024*1024
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid mem value %q", value)
	}
	return n * mult, nil
}

// parseGresDirective decodes --gres=gpu:N and --gres=gpu:type:N.
func parseGresDirective(value string) (int64, error) {
	parts := strings.Split(value, ":")
	if parts[0] != "gpu" {
		return 0, nil
	}
	if len(parts) < 2 {
		return 0, errors.Errorf("invalid gres value %q", value)
	}
	count := parts[len(parts)-1]
	if isPlaceholder(count) {
		return 0, nil
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid gres value %q", value)
	}
	return n, nil
}

func parseExport(d *descriptor.JobDescriptor, assignment string) {
	kv := strings.SplitN(assignment, "=", 2)
	if len(kv) != 2 {
		return
	}
	if d.Env == nil {
		d.Env = make(map[string]string)
	}
	d.Env[kv[0]] = kv[1]
}

func parseCommandLine(line string) descriptor.Command {
	fields := strings.Fields(line)
	cmd := descriptor.Command{}
	if len(fields) > 0 {
		cmd.Interpreter = fields[0]
	}
	if len(fields) > 1 {
		cmd.Script = fields[1]
	}
	if len(fields) > 2 {
		cmd.Args = fields[2:]
	}
	return cmd
}
