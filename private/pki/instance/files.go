// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instance

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pkitools/pki-server/pkg/private/serrors"
)

// MakeDirs creates path and all missing parents. Unless existOK is set, it
// fails if path already exists.
func (i *Instance) MakeDirs(path string, existOK bool) error {
	if _, err := os.Stat(path); err == nil {
		if !existOK {
			return serrors.New("directory already exists", "path", path)
		}
		return nil
	}
	// Remember the first missing ancestor, everything below it is new.
	first := path
	for {
		parent := filepath.Dir(first)
		if parent == first {
			break
		}
		if _, err := os.Stat(parent); err == nil {
			break
		}
		first = parent
	}
	if err := os.MkdirAll(path, 0770); err != nil {
		return serrors.Wrap("creating directory", err, "path", path)
	}
	for p := path; ; p = filepath.Dir(p) {
		if err := i.Chown(p); err != nil {
			return err
		}
		if p == first {
			break
		}
	}
	return nil
}

// Copy copies the file or directory tree src to dst. File modes are kept.
func (i *Instance) Copy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return serrors.Wrap("reading source", err, "src", src)
	}
	if !info.IsDir() {
		return i.copyFile(src, dst, info.Mode().Perm(), nil)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return serrors.Wrap("creating directory", err, "path", target)
			}
			return i.Chown(target)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return i.Symlink(link, target)
		default:
			return i.copyFile(path, target, info.Mode().Perm(), nil)
		}
	})
}

// CopyFile copies src to dst and substitutes slots on the way. Every
// occurrence of [NAME] where NAME is a key of slots is replaced with
// params[slots[NAME]].
func (i *Instance) CopyFile(src, dst string, slots, params map[string]string) error {
	info, err := os.Stat(src)
	if err != nil {
		return serrors.Wrap("reading source", err, "src", src)
	}
	return i.copyFile(src, dst, info.Mode().Perm(), slotReplacer(slots, params))
}

func slotReplacer(slots, params map[string]string) *strings.Replacer {
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "["+name+"]", params[slots[name]])
	}
	return strings.NewReplacer(pairs...)
}

func (i *Instance) copyFile(src, dst string, perm fs.FileMode, r *strings.Replacer) error {
	in, err := os.Open(src)
	if err != nil {
		return serrors.Wrap("opening source", err, "src", src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0770); err != nil {
		return serrors.Wrap("creating directory", err, "path", filepath.Dir(dst))
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return serrors.Wrap("creating file", err, "dst", dst)
	}
	if r == nil {
		_, err = io.Copy(out, in)
	} else {
		var raw []byte
		if raw, err = io.ReadAll(in); err == nil {
			_, err = r.WriteString(out, string(raw))
		}
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return serrors.Wrap("copying file", err, "src", src, "dst", dst)
	}
	return i.Chown(dst)
}

// Symlink creates link pointing to target. An existing link is replaced.
func (i *Instance) Symlink(target, link string) error {
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&fs.ModeSymlink == 0 {
			return serrors.New("path exists and is not a link", "link", link)
		}
		if err := os.Remove(link); err != nil {
			return serrors.Wrap("removing link", err, "link", link)
		}
	}
	if err := os.MkdirAll(filepath.Dir(link), 0770); err != nil {
		return serrors.Wrap("creating directory", err, "path", filepath.Dir(link))
	}
	if err := os.Symlink(target, link); err != nil {
		return serrors.Wrap("creating link", err, "target", target, "link", link)
	}
	return i.Chown(link)
}

// owner resolves the instance user once and changes file ownership when the
// process runs as root.
type owner struct {
	user string

	once     sync.Once
	uid, gid int
	ok       bool
}

func (o *owner) chown(path string) error {
	if unix.Geteuid() != 0 {
		return nil
	}
	o.once.Do(func() {
		u, err := user.Lookup(o.user)
		if err != nil {
			return
		}
		uid, uerr := strconv.Atoi(u.Uid)
		gid, gerr := strconv.Atoi(u.Gid)
		if uerr != nil || gerr != nil {
			return
		}
		o.uid, o.gid, o.ok = uid, gid, true
	})
	if !o.ok {
		return nil
	}
	if err := unix.Lchown(path, o.uid, o.gid); err != nil && !errors.Is(err, unix.ENOENT) {
		return serrors.Wrap("changing owner", err, "path", path, "user", o.user)
	}
	return nil
}
