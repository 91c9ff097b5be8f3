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

package audit_test

import (
	"testing"

	"github.com/scarlett-os/kernel/pkg/audit"
	"github.com/scarlett-os/kernel/pkg/audit/memkv"
)

func TestRecordAndAllPreserveOrder(t *testing.T) {
	log, err := audit.New(memkv.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries := []audit.Entry{
		{UID: 1000, Op: "write", Resource: "/etc/passwd", Allowed: false, Reason: "no grant"},
		{UID: 0, Op: "write", Resource: "/etc/passwd", Allowed: true, Reason: "root"},
		{UID: 1000, Op: "read", Resource: "/etc/passwd", Allowed: true, Reason: "mode bits"},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	all, err := log.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(All) = %d, want 3", len(all))
	}
	for i, e := range all {
		if e.Seq != uint64(i) {
			t.Fatalf("entry %d has Seq %d, want %d", i, e.Seq, i)
		}
		if e.Reason != entries[i].Reason {
			t.Fatalf("entry %d reason = %q, want %q", i, e.Reason, entries[i].Reason)
		}
	}
}

func TestRecentReturnsTrailingWindow(t *testing.T) {
	log, _ := audit.New(memkv.New())
	for i := 0; i < 5; i++ {
		if err := log.Record(audit.Entry{Op: "stat"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	recent, err := log.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[0].Seq != 3 || recent[1].Seq != 4 {
		t.Fatalf("Recent(2) = %+v, want seq 3,4", recent)
	}
}

func TestReopenResumesSequenceAfterHighestKey(t *testing.T) {
	kv := memkv.New()
	log, _ := audit.New(kv)
	for i := 0; i < 3; i++ {
		if err := log.Record(audit.Entry{Op: "open"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	reopened, err := audit.New(kv)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	if err := reopened.Record(audit.Entry{Op: "close"}); err != nil {
		t.Fatalf("Record after reopen: %v", err)
	}
	all, err := reopened.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(All) after reopen = %d, want 4", len(all))
	}
	if all[3].Seq != 3 {
		t.Fatalf("new entry after reopen got Seq %d, want 3 (no collision)", all[3].Seq)
	}
}

func TestFanOutWritesToEveryBackend(t *testing.T) {
	logA, _ := audit.New(memkv.New())
	logB, _ := audit.New(memkv.New())
	fo := audit.NewFanOut(logA, logB)

	if err := fo.Record(audit.Entry{Op: "mount", Resource: "/"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	aEntries, _ := logA.All()
	bEntries, _ := logB.All()
	if len(aEntries) != 1 || len(bEntries) != 1 {
		t.Fatalf("fan-out should reach both backends, got %d and %d entries", len(aEntries), len(bEntries))
	}
}
