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

package capability_test

import (
	"testing"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/capability"
)

func TestCreateCheckRevoke(t *testing.T) {
	tbl := capability.NewTable()
	id, err := tbl.Create("file", 42, capability.RightRead|capability.RightWrite)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !tbl.Check(id, capability.RightRead) {
		t.Fatal("Check(READ) should succeed")
	}
	if tbl.Check(id, capability.RightExecute) {
		t.Fatal("Check(EXECUTE) should fail, not granted")
	}
	if err := tbl.Revoke(id); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if tbl.Check(id, capability.RightRead) {
		t.Fatal("revoked capability should no longer check out")
	}
}

func TestRevokeUnknownIsNotFound(t *testing.T) {
	tbl := capability.NewTable()
	if err := tbl.Revoke(12345); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("Revoke(unknown) = %v, want NotFound", err)
	}
}

func TestTableGrowsPastInitialCapacity(t *testing.T) {
	tbl := capability.NewTable()
	for i := 0; i < 20; i++ {
		if _, err := tbl.Create("slot", uint64(i), capability.RightRead); err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
	}
}

func TestTransferRequiresTransferRight(t *testing.T) {
	tbl := capability.NewTable()
	withTransfer, err := tbl.Create("file", 1, capability.RightRead|capability.RightTransfer)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	msg := &capability.Message{}
	if err := capability.Transfer(tbl, msg, withTransfer); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if len(msg.InlineData) != 8 {
		t.Fatalf("InlineData len = %d, want 8", len(msg.InlineData))
	}

	readOnly, err := tbl.Create("file", 2, capability.RightRead)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	msg2 := &capability.Message{}
	if err := capability.Transfer(tbl, msg2, readOnly); !errkind.Is(err, errkind.PermissionDenied) {
		t.Fatalf("Transfer without TRANSFER right = %v, want PermissionDenied", err)
	}
}

func TestImportBindsSameRightsInReceiverTable(t *testing.T) {
	sender := capability.NewTable()
	receiver := capability.NewTable()

	id, err := sender.Create("socket", 7, capability.RightRead|capability.RightTransfer)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	newID, err := capability.Import(sender, receiver, id)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !receiver.Check(newID, capability.RightRead|capability.RightTransfer) {
		t.Fatal("imported capability should carry the same rights")
	}
}
