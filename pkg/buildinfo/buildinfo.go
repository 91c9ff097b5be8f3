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

// Package buildinfo reports the version of the running kernel binary,
// set at link time.
package buildinfo

// GitInfo is either the empty string (the default) or the git hash of
// the most recent commit, set with a linker flag:
//
//	go install --ldflags="-X github.com/scarlett-os/kernel/pkg/buildinfo.GitInfo=`git rev-parse --short HEAD`" ./cmd/kerneld
var GitInfo string

// Version is a string like "0.1" or "1.0", if applicable.
var Version string

// Summary returns the version and/or git hash of this binary, for
// kerneld's boot log and /version response. Returns "unknown" if
// neither linker flag was set.
func Summary() string {
	if Version != "" && GitInfo != "" {
		return Version + ", " + GitInfo
	}
	if GitInfo != "" {
		return GitInfo
	}
	if Version != "" {
		return Version
	}
	return "unknown"
}
