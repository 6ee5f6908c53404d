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

// Package csconfig reads and writes the flat subsystem configuration mapping
// stored in CS.cfg and in profile files.
//
// The file format is one key=value entry per line. Keys are dotted strings,
// e.g. preop.cert.signing.type. Empty lines and lines starting with '#' are
// ignored. Values are taken verbatim up to the end of the line. On save,
// entries are written sorted by key.
package csconfig

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkitools/pki-server/pkg/private/serrors"
)

// Config is a flat string-keyed configuration mapping.
type Config struct {
	path   string
	values map[string]string
}

// New returns an empty configuration that is not backed by a file.
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// Load reads the configuration from path. The configuration remembers the
// path for Save.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.Wrap("opening configuration", err, "file", path)
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, serrors.Wrap("parsing configuration", err, "file", path)
	}
	c.path = path
	return c, nil
}

// Parse reads a configuration from r.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, serrors.New("missing '=' in entry", "line", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, serrors.New("empty key", "line", lineNo)
		}
		c.values[key] = strings.TrimLeft(value, " \t")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file backing the configuration, if any.
func (c *Config) Path() string {
	return c.path
}

// Get returns the value for key.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def if the key is not set.
func (c *Config) GetDefault(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// Bool parses the value for key as boolean. Unset or unparsable values
// yield def.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// List splits the comma separated value for key. Empty elements are
// dropped.
func (c *Config) List(key string) []string {
	var out []string
	for _, e := range strings.Split(c.values[key], ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Set assigns value to key.
func (c *Config) Set(key, value string) {
	c.values[key] = value
}

// Delete removes key.
func (c *Config) Delete(key string) {
	delete(c.values, key)
}

// Len returns the number of entries.
func (c *Config) Len() int {
	return len(c.values)
}

// Keys returns all keys in sorted order.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subset returns the entries whose key starts with prefix + ".", with the
// prefix removed.
func (c *Config) Subset(prefix string) map[string]string {
	out := make(map[string]string)
	prefix += "."
	for k, v := range c.values {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// WriteTo writes the entries sorted by key.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, k := range c.Keys() {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(c.values[k])
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return serrors.New("configuration is not backed by a file")
	}
	return c.SaveAs(c.path)
}

// SaveAs writes the configuration to path, replacing the file atomically. The
// permissions of an existing file are preserved.
func (c *Config) SaveAs(path string) error {
	mode := os.FileMode(0660)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return serrors.Wrap("creating temporary file", err, "file", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := c.WriteTo(tmp); err != nil {
		tmp.Close()
		return serrors.Wrap("writing configuration", err, "file", path)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return serrors.Wrap("replacing configuration", err, "file", path)
	}
	c.path = path
	return nil
}
