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

package blockdev_test

import (
	"bytes"
	"testing"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/memdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

func TestRegisterGetRoundTrip(t *testing.T) {
	var reg blockdev.Registry
	reg.Init()
	dev := memdev.New("hda", 512, 16)
	if err := reg.Register(dev); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := reg.Get("hda")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "hda" {
		t.Fatalf("Get returned device %q", got.Name())
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	var reg blockdev.Registry
	reg.Init()
	if err := reg.Register(memdev.New("hda", 512, 16)); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(memdev.New("hda", 512, 16))
	if !errkind.Is(err, errkind.AlreadyExists) {
		t.Fatalf("Register duplicate = %v, want AlreadyExists", err)
	}
}

func TestGetUnknownIsDeviceNotFound(t *testing.T) {
	var reg blockdev.Registry
	reg.Init()
	_, err := reg.Get("nope")
	if !errkind.Is(err, errkind.DeviceNotFound) {
		t.Fatalf("Get unknown = %v, want DeviceNotFound", err)
	}
}

func TestReadAfterWriteSameBlock(t *testing.T) {
	dev := memdev.New("hda", 512, 4)
	want := bytes.Repeat([]byte{0xAB}, 512)
	if err := dev.WriteBlock(2, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 512)
	if err := dev.ReadBlock(2, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("read after write did not return the written bytes")
	}
}

func TestWriteBeyondBlockCountIsIoError(t *testing.T) {
	dev := memdev.New("hda", 512, 4)
	err := dev.WriteBlock(4, make([]byte, 512))
	if !errkind.Is(err, errkind.IoError) {
		t.Fatalf("WriteBlock out of range = %v, want IoError", err)
	}
}

func TestGenericMultiBlockStopsAtFirstError(t *testing.T) {
	dev := memdev.New("hda", 512, 2)
	buf := make([]byte, 512*3) // spans past the end of a 2-block device
	err := dev.WriteBlocks(0, buf)
	if !errkind.Is(err, errkind.IoError) {
		t.Fatalf("WriteBlocks overrun = %v, want IoError", err)
	}
}
