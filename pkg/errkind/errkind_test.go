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

package errkind_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

func TestNewOkIsNil(t *testing.T) {
	if err := errkind.New("vfs.Open", errkind.Ok, nil); err != nil {
		t.Fatalf("New(Ok) = %v, want nil", err)
	}
}

func TestIsMatchesKindNotOp(t *testing.T) {
	a := errkind.New("ata.ReadBlock", errkind.IoError, nil)
	b := errkind.New("fat32.Open", errkind.IoError, nil)
	if !errkind.Is(a, errkind.IoError) || !errkind.Is(b, errkind.IoError) {
		t.Fatal("Is should match on Kind regardless of Op")
	}
	if errkind.Is(a, errkind.NotFound) {
		t.Fatal("Is should not match a different Kind")
	}
}

func TestIsThroughWrap(t *testing.T) {
	cause := errors.New("boom")
	err := errkind.New("vfs.Open", errkind.PermissionDenied, cause)
	wrapped := fmt.Errorf("open %q: %w", "/etc/passwd", err)
	if !errkind.Is(wrapped, errkind.PermissionDenied) {
		t.Fatal("Is should see through fmt.Errorf %w wrapping")
	}
	if !errors.Is(wrapped, err) {
		t.Fatal("errors.Is should also work via the Is method")
	}
}

func TestOf(t *testing.T) {
	if got := errkind.Of(nil); got != errkind.Ok {
		t.Fatalf("Of(nil) = %v, want Ok", got)
	}
	err := errkind.New("sfs.Format", errkind.DiskFull, nil)
	if got := errkind.Of(err); got != errkind.DiskFull {
		t.Fatalf("Of(err) = %v, want DiskFull", got)
	}
	if got := errkind.Of(errors.New("not a kernel error")); got != errkind.InvalidState {
		t.Fatalf("Of(plain) = %v, want InvalidState", got)
	}
}

func TestStringTable(t *testing.T) {
	cases := []struct {
		k    errkind.Kind
		want string
	}{
		{errkind.Ok, "ok"},
		{errkind.FileNotFound, "file not found"},
		{errkind.DiskFull, "disk full"},
		{errkind.IoError, "i/o error"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("%d.String() = %q, want %q", c.k, got, c.want)
		}
	}
}
