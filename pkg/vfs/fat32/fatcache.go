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

package fat32

import "github.com/scarlett-os/kernel/pkg/blockdev"

// fatCache is a single-sector cache for the FAT sector currently being
// read or written, keyed by absolute sector number. FAT access must be
// serialised; callers hold fs.mu for the duration of any call through
// this cache.
type fatCache struct {
	dev    blockdev.Device
	sector uint32
	valid  bool
	data   []byte
}

func newFATCache(dev blockdev.Device, bytesPerSector uint16) *fatCache {
	return &fatCache{dev: dev, data: make([]byte, bytesPerSector)}
}

// load fills the cache with absolute sector sec, re-reading only if
// the cache doesn't already hold it.
func (c *fatCache) load(sec uint32) error {
	if c.valid && c.sector == sec {
		return nil
	}
	if err := c.dev.ReadBlock(uint64(sec), c.data); err != nil {
		return err
	}
	c.sector = sec
	c.valid = true
	return nil
}

// flush writes the cached sector to sec, then mirrors it to every
// other FAT copy at the same relative offset.
func (c *fatCache) flush(fatStart, fatSize uint32, numFATs uint8, sec uint32) error {
	if err := c.dev.WriteBlock(uint64(sec), c.data); err != nil {
		return err
	}
	offsetWithinFAT := sec - fatStart
	for i := uint8(1); i < numFATs; i++ {
		mirrorSec := fatStart + uint32(i)*fatSize + offsetWithinFAT
		if err := c.dev.WriteBlock(uint64(mirrorSec), c.data); err != nil {
			return err
		}
	}
	return nil
}
