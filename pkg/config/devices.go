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

package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/internal/chanworker"
	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/filedev"
	"github.com/scarlett-os/kernel/pkg/blockdev/gcsdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/memdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/s3dev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

// deviceBringupWorkers bounds how many devices are constructed at
// once. "file"/"s3"/"gcs" devices each do real I/O at boot (opening a
// file, dialing a bucket); a mem device is instant, so a small worker
// pool shortens boot time on a manifest with several remote devices
// without unbounded fan-out against the cloud provider.
const deviceBringupWorkers = 4

type deviceBuildResult struct {
	dev blockdev.Device
	err error
}

// Build constructs every declared device concurrently (bounded by
// deviceBringupWorkers) and registers each against reg in manifest
// order once every build has finished.
func (b *Boot) Build(ctx context.Context, reg *blockdev.Registry) error {
	results := make([]deviceBuildResult, len(b.Devices))
	var wg sync.WaitGroup
	wg.Add(len(b.Devices))

	type job struct {
		idx  int
		spec DeviceSpec
	}
	workc := chanworker.NewPool(deviceBringupWorkers, func(el interface{}, ok bool) {
		if !ok {
			return // final sentinel; all real jobs already Done()
		}
		j := el.(job)
		dev, err := buildDevice(ctx, j.spec)
		results[j.idx] = deviceBuildResult{dev: dev, err: err}
		wg.Done()
	})
	for i, d := range b.Devices {
		workc <- job{idx: i, spec: d}
	}
	close(workc)
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	for _, r := range results {
		if err := reg.Register(r.dev); err != nil {
			return err
		}
	}
	return nil
}

func buildDevice(ctx context.Context, d DeviceSpec) (blockdev.Device, error) {
	switch d.Kind {
	case "mem":
		return memdev.New(d.Name, d.BlockSize, d.BlockCount), nil
	case "file":
		return filedev.Open(d.Name, d.Path, d.BlockSize, int64(d.BlockSize)*int64(d.BlockCount), d.Create)
	case "s3":
		return s3dev.New(s3dev.Config{
			Name:       d.Name,
			Bucket:     d.Bucket,
			Prefix:     d.Prefix,
			Region:     d.Region,
			BlockSize:  d.BlockSize,
			BlockCount: d.BlockCount,
		})
	case "gcs":
		return gcsdev.New(ctx, gcsdev.Config{
			Name:       d.Name,
			Bucket:     d.Bucket,
			Prefix:     d.Prefix,
			BlockSize:  d.BlockSize,
			BlockCount: d.BlockCount,
		})
	default:
		return nil, errkind.New("config.buildDevice", errkind.InvalidArg, fmt.Errorf("unknown device kind %q", d.Kind))
	}
}
