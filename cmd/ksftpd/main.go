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

// Command ksftpd serves a kernel boot manifest's VFS mount table over
// SFTP, authenticating against the kernel's own user database instead
// of host accounts.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"log"
	"net"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/config"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/security/policy"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
	"github.com/scarlett-os/kernel/pkg/security/userdb"
	"github.com/scarlett-os/kernel/pkg/vfs"
	_ "github.com/scarlett-os/kernel/pkg/vfs/ext4"
	_ "github.com/scarlett-os/kernel/pkg/vfs/fat32"
	_ "github.com/scarlett-os/kernel/pkg/vfs/sfs"
	"github.com/scarlett-os/kernel/pkg/vfssftp"
)

var (
	manifest = flag.String("config", "", "path to the boot manifest (TOML)")
	addr     = flag.String("addr", ":2222", "address to listen on")
)

func main() {
	flag.Parse()
	if *manifest == "" {
		log.Fatal("-config is required")
	}

	boot, err := config.Load(*manifest)
	if err != nil {
		log.Fatalf("loading boot manifest: %v", err)
	}
	reg := &blockdev.Registry{}
	reg.Init()
	if err := boot.Build(context.Background(), reg); err != nil {
		log.Fatalf("building devices: %v", err)
	}
	blockdev.Default = reg

	roles := rbac.New()
	if boot.RBACSeed != "" {
		if err := policy.SeedRBAC(roles, boot.RBACSeed); err != nil {
			log.Fatalf("seeding RBAC policy from %s: %v", boot.RBACSeed, err)
		}
	}

	kv := vfs.New(discardConsole{}, roles)
	for _, m := range boot.Mounts {
		if err := kv.MountNamed(m.Device, m.Path, m.Filesystem); err != nil {
			log.Fatalf("mounting %q at %q: %v", m.Filesystem, m.Path, err)
		}
	}

	users := userdb.New()
	signer, err := ephemeralHostKey()
	if err != nil {
		log.Fatalf("generating host key: %v", err)
	}

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			uid, err := users.Authenticate(meta.User(), string(password))
			if err != nil {
				return nil, err
			}
			return &ssh.Permissions{Extensions: map[string]string{"uid": fmtUint(uid)}}, nil
		},
	}
	serverConfig.AddHostKey(signer)

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen %s: %v", *addr, err)
	}
	log.Printf("ksftpd listening on %s", *addr)

	for {
		nConn, err := listener.Accept()
		if err != nil {
			log.Printf("accept: %v", err)
			continue
		}
		go serveConn(nConn, serverConfig, kv)
	}
}

func serveConn(nConn net.Conn, serverConfig *ssh.ServerConfig, kv *vfs.VFS) {
	sshConn, chans, reqs, err := ssh.NewServerConn(nConn, serverConfig)
	if err != nil {
		log.Printf("handshake failed: %v", err)
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	proc := procFromPermissions(sshConn.Permissions)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			log.Printf("channel accept: %v", err)
			continue
		}
		go serveSession(channel, requests, kv, proc)
	}
}

// procFromPermissions recovers the authz.Process PasswordCallback
// stashed on the connection via ssh.Permissions.Extensions, so every
// VFS call this session makes is authorized as the account that just
// authenticated rather than as whoever's running ksftpd.
func procFromPermissions(perm *ssh.Permissions) authz.Process {
	if perm == nil {
		return authz.Process{}
	}
	uid, _ := strconv.ParseUint(perm.Extensions["uid"], 10, 32)
	return authz.Process{UID: uint32(uid)}
}

func serveSession(channel ssh.Channel, requests <-chan *ssh.Request, kv *vfs.VFS, proc authz.Process) {
	defer channel.Close()
	for req := range requests {
		isSubsystem := req.Type == "subsystem"
		req.Reply(isSubsystem, nil)
		if !isSubsystem {
			continue
		}
		server := sftp.NewRequestServer(channel, vfssftp.Handlers(kv, proc))
		if err := server.Serve(); err != nil {
			log.Printf("sftp session ended: %v", err)
		}
		return
	}
}

func ephemeralHostKey() (ssh.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}

func fmtUint(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

type discardConsole struct{}

func (discardConsole) WriteOut(p []byte) (int, error) { return len(p), nil }
func (discardConsole) ReadIn(p []byte) (int, error)   { return 0, nil }
