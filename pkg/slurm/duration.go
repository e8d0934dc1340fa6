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
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	slurmTimeLayout  = "2006-01-02T15:04:05"
	unlimitedMarker  = "UNLIMITED"
	unknownMarker    = "Unknown"
	notAvailableMark = "N/A"
)

// ParseDuration parses a Slurm duration of the form [days-]HH:MM:SS or
// [days-]HH:MM. It returns ErrDurationIsUnlimited for the UNLIMITED value.
func ParseDuration(duration string) (*time.Duration, error) {
	duration = strings.TrimSpace(duration)
	if duration == unlimitedMarker || duration == "Partition_Limit" {
		return nil, ErrDurationIsUnlimited
	}

	var days int64
	rest := duration
	if i := strings.IndexByte(duration, '-'); i != -1 {
		d, err := strconv.ParseInt(duration[:i], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid days in duration %q", duration)
		}
		days = d
		rest = duration[i+1:]
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, errors.Errorf("invalid duration format %q", duration)
	}

	fields := make([]int64, 3)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid duration format %q", duration)
		}
		fields[i] = v
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second
	return &d, nil
}

// parseTime parses a Slurm timestamp. Unknown and N/A values yield a nil
// time and no error.
func parseTime(timeStr string) (*time.Time, error) {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" || timeStr == unknownMarker || timeStr == notAvailableMark || timeStr == "None" {
		return nil, nil
	}

	t, err := time.Parse(slurmTimeLayout, timeStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
