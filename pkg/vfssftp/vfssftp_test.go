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

package vfssftp

import (
	"io"
	"os"
	"testing"
)

func TestListerAtPaginatesAndSignalsEOF(t *testing.T) {
	entries := listerAt([]os.FileInfo{
		fileInfo{name: "a"},
		fileInfo{name: "b"},
		fileInfo{name: "c"},
	})

	out := make([]os.FileInfo, 2)
	n, err := entries.ListAt(out, 0)
	if err != nil {
		t.Fatalf("ListAt: %v", err)
	}
	if n != 2 || out[0].Name() != "a" || out[1].Name() != "b" {
		t.Fatalf("unexpected first page: n=%d out=%v", n, out)
	}

	out = make([]os.FileInfo, 2)
	n, err = entries.ListAt(out, 2)
	if n != 1 || out[0].Name() != "c" {
		t.Fatalf("unexpected second page: n=%d out=%v", n, out)
	}
	if err != io.EOF {
		t.Fatalf("expected io.EOF on final short page, got %v", err)
	}
}

func TestListerAtOffsetPastEndReturnsEOF(t *testing.T) {
	entries := listerAt([]os.FileInfo{fileInfo{name: "a"}})
	out := make([]os.FileInfo, 2)
	n, err := entries.ListAt(out, 5)
	if n != 0 || err != io.EOF {
		t.Fatalf("ListAt past end = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestBaseNameAndJoinPath(t *testing.T) {
	if got := baseName("/a/b/c"); got != "c" {
		t.Fatalf("baseName = %q, want c", got)
	}
	if got := baseName("/"); got != "" {
		t.Fatalf("baseName(/) = %q, want empty", got)
	}
	if got := joinPath("/", "etc"); got != "/etc" {
		t.Fatalf("joinPath = %q, want /etc", got)
	}
	if got := joinPath("/mnt", "etc"); got != "/mnt/etc" {
		t.Fatalf("joinPath = %q, want /mnt/etc", got)
	}
}

func TestToSftpErr(t *testing.T) {
	if toSftpErr(nil) != nil {
		t.Fatal("toSftpErr(nil) should be nil")
	}
}
