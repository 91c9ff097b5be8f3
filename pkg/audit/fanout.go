/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import "go4.org/syncutil"

// FanOut mirrors every Record to multiple logs concurrently — e.g. a
// fast local memory log plus a durable remote SQL log — so a slow
// backend doesn't serialize the others.
type FanOut struct {
	logs []*Log
}

// NewFanOut fans writes out across logs. Reads (Recent) are served
// from the first log only; the rest are write-only mirrors.
func NewFanOut(logs ...*Log) *FanOut {
	return &FanOut{logs: logs}
}

// Record writes e to every backing log concurrently and returns the
// first error encountered, if any; every backend is still attempted
// even if an earlier one fails.
func (f *FanOut) Record(e Entry) error {
	var grp syncutil.Group
	for _, l := range f.logs {
		l := l
		grp.Go(func() error {
			return l.Record(e)
		})
	}
	return grp.Err()
}

// Recent delegates to the first configured log.
func (f *FanOut) Recent(n int) ([]Entry, error) {
	if len(f.logs) == 0 {
		return nil, nil
	}
	return f.logs[0].Recent(n)
}

// Close closes every backing log, returning the first error.
func (f *FanOut) Close() error {
	var first error
	for _, l := range f.logs {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
