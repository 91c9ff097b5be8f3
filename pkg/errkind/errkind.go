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

// Package errkind defines the closed set of failure reasons shared by
// every layer of the kernel: block devices, filesystem drivers, the
// VFS, the security subsystems, and the network stack. Most exported
// operations in those packages return either a nil error or a *Error
// wrapping one of these kinds. Some return plain errors instead:
// pkg/net/tcp (its own sentinel errors and context errors),
// pkg/net/ethernet (ErrClosed and its no-route error) and
// pkg/security/policy (seed-file errors); Of reports such an error as
// InvalidState.
package errkind

import "fmt"

// Kind is a single, opaque-to-callers failure reason. There is exactly
// one numbering, shared by every package in this module; callers must
// compare kinds with Is, never with the underlying int.
type Kind int

const (
	Ok Kind = iota
	InvalidArg
	OutOfMemory
	NotFound
	AlreadyExists
	NotEmpty
	PermissionDenied
	NotSupported
	Timeout
	Interrupted
	InvalidState
	Again
	InvalidAddress
	MappingFailed
	FileNotFound
	NotADirectory
	IsADirectory
	EndOfFile
	ReadOnly
	DiskFull
	IoError
	DeviceNotFound
	DeviceBusy
	InvalidFs
	EndOfFileSentinel
)

var names = [...]string{
	Ok:                "ok",
	InvalidArg:        "invalid argument",
	OutOfMemory:       "out of memory",
	NotFound:          "not found",
	AlreadyExists:     "already exists",
	NotEmpty:          "not empty",
	PermissionDenied:  "permission denied",
	NotSupported:      "not supported",
	Timeout:           "timed out",
	Interrupted:       "interrupted",
	InvalidState:      "invalid state",
	Again:             "try again",
	InvalidAddress:    "invalid address",
	MappingFailed:     "mapping failed",
	FileNotFound:      "file not found",
	NotADirectory:     "not a directory",
	IsADirectory:      "is a directory",
	EndOfFile:         "end of file",
	ReadOnly:          "read-only filesystem",
	DiskFull:          "disk full",
	IoError:           "i/o error",
	DeviceNotFound:    "device not found",
	DeviceBusy:        "device busy",
	InvalidFs:         "invalid filesystem",
	EndOfFileSentinel: "end of file sentinel",
}

// String renders the kind's human-readable phrase.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(names) || names[k] == "" {
		return fmt.Sprintf("errkind.Kind(%d)", int(k))
	}
	return names[k]
}

// Error is the single error type every kernel package returns. Op names
// the failing operation ("ata.ReadBlock", "fat32.Open", ...) for
// diagnostics; it is never part of the caller-visible identity of the
// error (two *Errors with the same Kind and different Op are == under Is).
type Error struct {
	Op   string
	Kind Kind
	Err  error // optional wrapped cause, for %w-style chains
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, errkind.New("", errkind.NotFound, nil)) works, and so
// does the more idiomatic errkind.Is(err, errkind.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error for kind k raised by operation op, optionally
// wrapping cause.
func New(op string, k Kind, cause error) error {
	if k == Ok {
		return nil
	}
	return &Error{Op: op, Kind: k, Err: cause}
}

// Is reports whether the first *Error in err's chain carries kind k.
func Is(err error, k Kind) bool {
	if err == nil {
		return k == Ok
	}
	var e *Error
	for {
		if ke, ok := err.(*Error); ok {
			e = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
		if err == nil {
			return false
		}
	}
	return e.Kind == k
}

// Of extracts the Kind carried by err, or Ok if err is nil, or InvalidState
// if err doesn't wrap an *Error (a programmer error in the caller's own
// package, not a kernel-defined failure).
func Of(err error) Kind {
	if err == nil {
		return Ok
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return Of(u.Unwrap())
	}
	return InvalidState
}
