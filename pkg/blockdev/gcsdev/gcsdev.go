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

// Package gcsdev backs a blockdev.Device with a Google Cloud Storage
// bucket, one object per block number, keyed "<prefix><blockNum>".
// Adapted from pkg/blobserver/google/cloudstorage, which stores one
// object per content-addressed blob; here the addressing scheme is the
// block number instead of a content hash, the same substitution s3dev
// makes for S3.
package gcsdev

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	"cloud.google.com/go/storage"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

var Logger = log.Default()

// bucketHandle is the subset of *storage.BucketHandle that Device
// needs, so tests can substitute a fake without a live project.
type bucketHandle interface {
	Object(name string) *storage.ObjectHandle
}

// realBucket adapts *storage.Client to bucketHandle for a fixed bucket.
type realBucket struct{ b *storage.BucketHandle }

func (r realBucket) Object(name string) *storage.ObjectHandle { return r.b.Object(name) }

// Device is a blockdev.Device backed by a GCS bucket.
type Device struct {
	blockdev.Generic
	name   string
	bucket bucketHandle
	prefix string
}

// Config names the bucket the device lives in; BlockSize and
// BlockCount describe the device's fixed geometry (GCS itself is
// unaware of block boundaries).
type Config struct {
	Name       string
	Bucket     string
	Prefix     string // object key prefix, e.g. "disks/sda/"
	BlockSize  uint32
	BlockCount uint64
}

// New opens a GCS-backed device using the default application
// credentials, the same discovery chain storage.NewClient uses when
// called with no options.
func New(ctx context.Context, cfg Config) (*Device, error) {
	cl, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errkind.New("gcsdev.New", errkind.DeviceNotFound, err)
	}
	return newWithBucket(cfg, realBucket{cl.Bucket(cfg.Bucket)}), nil
}

func newWithBucket(cfg Config, bucket bucketHandle) *Device {
	d := &Device{
		name:   cfg.Name,
		bucket: bucket,
		prefix: cfg.Prefix,
	}
	d.Generic = blockdev.Generic{
		BlockSz:      cfg.BlockSize,
		BlockCnt:     cfg.BlockCount,
		ReadBlockFn:  d.readOneBlock,
		WriteBlockFn: d.writeOneBlock,
	}
	return d
}

func (d *Device) Name() string { return d.name }

func (d *Device) key(blockNum uint64) string {
	return fmt.Sprintf("%s%s", d.prefix, strconv.FormatUint(blockNum, 10))
}

func (d *Device) readOneBlock(blockNum uint64, buf []byte) error {
	if err := blockdev.CheckBounds(d, blockNum, 1); err != nil {
		return err
	}
	ctx := context.Background()
	r, err := d.bucket.Object(d.key(blockNum)).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		// An object never written reads back as zeros, the same
		// convention a freshly truncated file device gives us.
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		Logger.Printf("gcsdev %q: get block %d: %v", d.name, blockNum, err)
		return errkind.New("gcsdev.ReadBlock", errkind.IoError, err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return errkind.New("gcsdev.ReadBlock", errkind.IoError, err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (d *Device) writeOneBlock(blockNum uint64, buf []byte) error {
	if err := blockdev.CheckBounds(d, blockNum, 1); err != nil {
		return err
	}
	ctx := context.Background()
	w := d.bucket.Object(d.key(blockNum)).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(buf)); err != nil {
		w.Close()
		Logger.Printf("gcsdev %q: put block %d: %v", d.name, blockNum, err)
		return errkind.New("gcsdev.WriteBlock", errkind.IoError, err)
	}
	if err := w.Close(); err != nil {
		Logger.Printf("gcsdev %q: close block %d: %v", d.name, blockNum, err)
		return errkind.New("gcsdev.WriteBlock", errkind.IoError, err)
	}
	return nil
}

var _ blockdev.Device = (*Device)(nil)
