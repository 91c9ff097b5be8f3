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

package userdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

const (
	passwdPath = "/etc/passwd"
	groupPath  = "/etc/group"
)

// readWholeFile reads fs's entire relPath, or returns
// (nil, false, nil) when the path does not exist.
func readWholeFile(fs vfs.Filesystem, relPath string) ([]byte, bool, error) {
	fh, err := fs.Open(relPath, vfs.Read)
	if errkind.Is(err, errkind.NotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer fs.Close(fh)

	var out []byte
	buf := make([]byte, 4096)
	var offset int64
	for {
		n, err := fs.ReadAt(fh, buf, offset)
		if n > 0 {
			out = append(out, buf[:n]...)
			offset += int64(n)
		}
		if errkind.Is(err, errkind.EndOfFile) || n == 0 {
			break
		}
		if err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func writeWholeFile(fs vfs.Filesystem, relPath string, data []byte) error {
	fh, err := fs.Open(relPath, vfs.Read|vfs.Write|vfs.Create|vfs.Trunc)
	if err != nil {
		return err
	}
	defer fs.Close(fh)
	_, err = fs.WriteAt(fh, data, 0)
	return err
}

// SaveToDisk writes every active user to /etc/passwd as
// "username:hash:uid:gid::/home/username:/bin/sh", creating /etc first.
func (db *DB) SaveToDisk(fs vfs.Filesystem) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := fs.Mkdir("/etc", 0o755); err != nil && !errkind.Is(err, errkind.AlreadyExists) {
		return err
	}

	var sb strings.Builder
	for _, u := range db.users {
		if !u.Active {
			continue
		}
		fmt.Fprintf(&sb, "%s:%s:%d:%d::/home/%s:/bin/sh\n", u.Name, u.Hash, u.Uid, u.Gid, u.Name)
	}
	return writeWholeFile(fs, passwdPath, []byte(sb.String()))
}

// LoadFromDisk replaces the in-memory user table with the contents of
// /etc/passwd. A missing file is not an error — the table is left as
// it was (typically just the seeded root user).
func (db *DB) LoadFromDisk(fs vfs.Filesystem) error {
	data, exists, err := readWholeFile(fs, passwdPath)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.users = [maxUsers]User{}
	db.users[0] = User{Name: "root", Uid: rootUID, Gid: rootGID, Active: true}
	slot := 1
	maxUID := uint32(firstAllocatedID)

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) != 7 {
			return errkind.New("userdb.LoadFromDisk", errkind.InvalidArg, fmt.Errorf("malformed passwd line %q", line))
		}
		name, hash := fields[0], fields[1]
		uid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return errkind.New("userdb.LoadFromDisk", errkind.InvalidArg, err)
		}
		gid, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return errkind.New("userdb.LoadFromDisk", errkind.InvalidArg, err)
		}
		if name == "root" {
			db.users[0].Hash = hash
			continue
		}
		if slot >= maxUsers {
			return errkind.New("userdb.LoadFromDisk", errkind.OutOfMemory, fmt.Errorf("passwd file has more than %d users", maxUsers))
		}
		db.users[slot] = User{Name: name, Hash: hash, Uid: uint32(uid), Gid: uint32(gid), Active: true}
		slot++
		if uint32(uid) >= maxUID {
			maxUID = uint32(uid) + 1
		}
	}
	db.nextUID = maxUID
	return nil
}

// SaveGroupsToDisk writes every active group to /etc/group as
// "groupname:x:gid:uid1,uid2,...".
func (db *DB) SaveGroupsToDisk(fs vfs.Filesystem) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := fs.Mkdir("/etc", 0o755); err != nil && !errkind.Is(err, errkind.AlreadyExists) {
		return err
	}

	var sb strings.Builder
	for _, g := range db.groups {
		if !g.Active {
			continue
		}
		members := make([]string, len(g.Members))
		for i, m := range g.Members {
			members[i] = strconv.FormatUint(uint64(m), 10)
		}
		fmt.Fprintf(&sb, "%s:x:%d:%s\n", g.Name, g.Gid, strings.Join(members, ","))
	}
	return writeWholeFile(fs, groupPath, []byte(sb.String()))
}

// LoadGroupsFromDisk replaces the in-memory group table with the
// contents of /etc/group. A missing file is not an error.
func (db *DB) LoadGroupsFromDisk(fs vfs.Filesystem) error {
	data, exists, err := readWholeFile(fs, groupPath)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.groups = [maxGroups]Group{}
	db.groups[0] = Group{Name: "root", Gid: rootGID, Members: []uint32{rootUID}, Active: true}
	slot := 1
	maxGID := uint32(firstAllocatedID)

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ":", 4)
		if len(fields) != 4 {
			return errkind.New("userdb.LoadGroupsFromDisk", errkind.InvalidArg, fmt.Errorf("malformed group line %q", line))
		}
		name := fields[0]
		gid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return errkind.New("userdb.LoadGroupsFromDisk", errkind.InvalidArg, err)
		}
		var members []uint32
		if fields[3] != "" {
			for _, m := range strings.Split(fields[3], ",") {
				uid, err := strconv.ParseUint(m, 10, 32)
				if err != nil {
					return errkind.New("userdb.LoadGroupsFromDisk", errkind.InvalidArg, err)
				}
				members = append(members, uint32(uid))
			}
		}
		if name == "root" {
			db.groups[0].Members = members
			continue
		}
		if slot >= maxGroups {
			return errkind.New("userdb.LoadGroupsFromDisk", errkind.OutOfMemory, fmt.Errorf("group file has more than %d groups", maxGroups))
		}
		db.groups[slot] = Group{Name: name, Gid: uint32(gid), Members: members, Active: true}
		slot++
		if uint32(gid) >= maxGID {
			maxGID = uint32(gid) + 1
		}
	}
	db.nextGID = maxGID
	return nil
}
