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

// Package s3dev backs a blockdev.Device with an S3 bucket, one object
// per block number, keyed "<prefix><blockNum>". Adapted from
// pkg/blobserver/s3, which stores one object per content-addressed
// blob; here the addressing scheme is the block number instead of a
// content hash, since blocks are mutable and positional rather than
// immutable and content-addressed.
package s3dev

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

var Logger = log.Default()

// Device is a blockdev.Device backed by an S3 bucket.
type Device struct {
	blockdev.Generic
	name   string
	client s3iface.S3API
	bucket string
	prefix string
}

// Config names the bucket and region the device lives in; BlockSize
// and BlockCount describe the device's fixed geometry (S3 itself is
// unaware of block boundaries).
type Config struct {
	Name       string
	Bucket     string
	Prefix     string // key prefix, e.g. "disks/sda/"
	Region     string
	BlockSize  uint32
	BlockCount uint64
}

// New opens an S3-backed device using the default AWS credential chain.
func New(cfg Config) (*Device, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, errkind.New("s3dev.New", errkind.DeviceNotFound, err)
	}
	return newWithClient(cfg, s3.New(sess)), nil
}

func newWithClient(cfg Config, client s3iface.S3API) *Device {
	d := &Device{
		name:   cfg.Name,
		client: client,
		bucket: cfg.Bucket,
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
	out, err := d.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(blockNum)),
	})
	if err != nil {
		// A block that was never written reads back as zeros, the
		// same convention a freshly truncated file device gives us.
		if isNotFound(err) {
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		Logger.Printf("s3dev %q: get block %d: %v", d.name, blockNum, err)
		return errkind.New("s3dev.ReadBlock", errkind.IoError, err)
	}
	defer out.Body.Close()
	n, err := io.ReadFull(out.Body, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return errkind.New("s3dev.ReadBlock", errkind.IoError, err)
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
	_, err := d.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(blockNum)),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		Logger.Printf("s3dev %q: put block %d: %v", d.name, blockNum, err)
		return errkind.New("s3dev.WriteBlock", errkind.IoError, err)
	}
	return nil
}

func isNotFound(err error) bool {
	type awsErr interface{ Code() string }
	if ae, ok := err.(awsErr); ok {
		return ae.Code() == s3.ErrCodeNoSuchKey || ae.Code() == "NotFound"
	}
	return false
}

var _ blockdev.Device = (*Device)(nil)
