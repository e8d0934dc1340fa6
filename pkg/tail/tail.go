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

// Package tail implements a reader that follows a file as it is being
// appended to, the way Slurm output files grow while a job runs.
package tail

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

const defaultPollInterval = 500 * time.Millisecond

// Reader reads a file and, instead of returning io.EOF when the current
// end is reached, waits for more data to be appended. Read returns an
// error only after Close is called or the file disappears.
type Reader struct {
	f        *os.File
	interval time.Duration
	done     chan struct{}
}

// NewReader opens path for following reads.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	return &Reader{
		f:        f,
		interval: defaultPollInterval,
		done:     make(chan struct{}),
	}, nil
}

// Read implements io.Reader. At end of file it polls for appended data
// until some arrives or the reader is closed.
func (r *Reader) Read(p []byte) (int, error) {
	for {
		select {
		case <-r.done:
			return 0, io.EOF
		default:
		}

		n, err := r.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		select {
		case <-r.done:
			return 0, io.EOF
		case <-time.After(r.interval):
		}
	}
}

// Close stops the polling loop and closes the underlying file. Pending
// Read calls return io.EOF.
func (r *Reader) Close() error {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	return r.f.Close()
}
