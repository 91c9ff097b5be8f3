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

// Package authz is the single authorization chokepoint every vfs entry
// point calls through: uid 0 first, then capability, then ACL, then
// POSIX mode bits, then RBAC, in that fixed order, denying only when
// every rung declines.
package authz

import (
	"context"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/acl"
	"github.com/scarlett-os/kernel/pkg/security/capability"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
)

// Op is the action being authorized, expressed both as a POSIX rwx bit
// and as a capability right so a single call site can check either
// model against a resource.
type Op struct {
	Perm  acl.Perm
	Right capability.Right
	RBAC  rbac.PermissionID
}

var (
	OpRead    = Op{Perm: acl.PermRead, Right: capability.RightRead, RBAC: "fs.read"}
	OpWrite   = Op{Perm: acl.PermWrite, Right: capability.RightWrite, RBAC: "fs.write"}
	OpExecute = Op{Perm: acl.PermExecute, Right: capability.RightExecute, RBAC: "fs.execute"}
)

// Process carries the identity and capability table a call is made on
// behalf of.
type Process struct {
	UID uint32
	GID uint32
	Cap *capability.Table
}

// Resource is whatever is being accessed: POSIX mode/owner bits, an
// optional ACL overriding them, and an optional capability id a caller
// may present instead of an identity check.
type Resource struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	ACL   *acl.ACL // nil: fall back to Mode's three-class check
	CapID uint64   // 0: no capability presented for this access
}

// modeCheck evaluates POSIX owner/group/other bits, the fallback used
// when a resource carries no ACL.
func modeCheck(res Resource, proc Process, op Op) bool {
	var bits uint32
	switch {
	case proc.UID == res.UID:
		bits = (res.Mode >> 6) & 0o7
	case proc.GID == res.GID:
		bits = (res.Mode >> 3) & 0o7
	default:
		bits = res.Mode & 0o7
	}
	return uint32(op.Perm)&bits == uint32(op.Perm)
}

// Authorize implements the fixed precedence chain: root bypasses
// everything; a presented capability that carries the right is
// honored; an attached ACL then decides; POSIX mode bits follow; RBAC
// is the final fallback. Any rung granting access short-circuits the
// rest.
func Authorize(ctx context.Context, proc Process, op Op, res Resource, roles *rbac.Store) error {
	if proc.UID == 0 {
		return nil
	}
	if res.CapID != 0 && proc.Cap != nil && proc.Cap.Check(res.CapID, op.Right) {
		return nil
	}
	if res.ACL != nil {
		if res.ACL.Check(proc.UID, proc.GID, op.Perm) {
			return nil
		}
	} else if modeCheck(res, proc, op) {
		return nil
	}
	if roles != nil && roles.Allows(proc.UID, op.RBAC) {
		return nil
	}
	return errkind.New("authz.Authorize", errkind.PermissionDenied, fmt.Errorf("uid %d lacks %v on resource uid %d gid %d mode %o", proc.UID, op, res.UID, res.GID, res.Mode))
}
