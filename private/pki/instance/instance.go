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

// Package instance models a PKI server instance on disk.
//
// For an instance <inst> below the root prefix <root> the layout is:
//
//	<root>/var/lib/pki/<inst>                  base directory
//	<root>/etc/pki/<inst>                      configuration directory
//	<root>/etc/pki/<inst>/alias                keystore
//	<root>/etc/pki/<inst>/<sub>/CS.cfg         subsystem configuration
//	<root>/var/log/pki/<inst>                  log directory
//	<root>/etc/sysconfig/pki/tomcat/<inst>     registry
package instance

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/keystore"
	"github.com/pkitools/pki-server/private/pki/p12"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

const (
	// DefaultName is the name of the default instance.
	DefaultName = "pki-tomcat"
	// DefaultUser is the user that owns the instance files.
	DefaultUser = "pkiuser"

	externalCertsFile = "external_certs.conf"
)

// Option configures an instance.
type Option func(*Instance)

// WithRoot places the instance below the given root prefix instead of /.
func WithRoot(root string) Option {
	return func(i *Instance) {
		if root != "" {
			i.root = root
		}
	}
}

// WithUser sets the user that owns the instance files.
func WithUser(user string) Option {
	return func(i *Instance) {
		if user != "" {
			i.user = user
		}
	}
}

// Instance is a PKI server instance.
type Instance struct {
	name     string
	root     string
	user     string
	owner    *owner
	exporter *p12.Exporter

	subsystems map[string]*subsystem.Subsystem
}

// New creates an instance handle. Nothing is read from disk until Load.
func New(name string, opts ...Option) *Instance {
	if name == "" {
		name = DefaultName
	}
	i := &Instance{
		name:       name,
		root:       "/",
		user:       DefaultUser,
		exporter:   p12.NewExporter(),
		subsystems: make(map[string]*subsystem.Subsystem),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.owner = &owner{user: i.user}
	return i
}

// Name returns the instance name.
func (i *Instance) Name() string { return i.name }

// Root returns the root prefix.
func (i *Instance) Root() string { return i.root }

// User returns the user that owns the instance files.
func (i *Instance) User() string { return i.user }

// BaseDir returns the instance base directory.
func (i *Instance) BaseDir() string {
	return filepath.Join(i.root, "var", "lib", "pki", i.name)
}

// ConfDir returns the instance configuration directory.
func (i *Instance) ConfDir() string {
	return filepath.Join(i.root, "etc", "pki", i.name)
}

// LogDir returns the instance log directory.
func (i *Instance) LogDir() string {
	return filepath.Join(i.root, "var", "log", "pki", i.name)
}

// RegistryDir returns the instance registry directory.
func (i *Instance) RegistryDir() string {
	return filepath.Join(i.root, "etc", "sysconfig", "pki", "tomcat", i.name)
}

// KeystoreDir returns the directory of the instance keystore.
func (i *Instance) KeystoreDir() string {
	return filepath.Join(i.ConfDir(), "alias")
}

// Keystore returns the instance keystore.
func (i *Instance) Keystore() *keystore.Store {
	return keystore.Open(i.KeystoreDir())
}

// ExternalCertsFile returns the file listing the external certificates.
func (i *Instance) ExternalCertsFile() string {
	return filepath.Join(i.ConfDir(), externalCertsFile)
}

// Exists reports whether the instance base directory exists.
func (i *Instance) Exists() bool {
	info, err := os.Stat(i.BaseDir())
	return err == nil && info.IsDir()
}

// Load discovers the subsystems of the instance. Every directory in the
// configuration directory that contains a CS.cfg is a subsystem. Load can be
// called again to pick up subsystems created in the meantime.
func (i *Instance) Load() error {
	entries, err := os.ReadDir(i.ConfDir())
	if err != nil {
		return serrors.Wrap("reading instance configuration", err, "instance", i.name)
	}
	subsystems := make(map[string]*subsystem.Subsystem)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		confDir := filepath.Join(i.ConfDir(), e.Name())
		if _, err := os.Stat(filepath.Join(confDir, subsystem.ConfigFile)); err != nil {
			continue
		}
		name := strings.ToLower(e.Name())
		sub, err := subsystem.Load(subsystem.Params{
			Name:     name,
			ConfDir:  confDir,
			BaseDir:  filepath.Join(i.BaseDir(), name),
			Keystore: i.Keystore(),
			Exporter: i.exporter,
			Owner:    i,
		})
		if err != nil {
			return serrors.Wrap("loading subsystem", err, "instance", i.name)
		}
		subsystems[name] = sub
	}
	i.subsystems = subsystems
	return nil
}

// Subsystem returns the loaded subsystem with the given name.
func (i *Instance) Subsystem(name string) (*subsystem.Subsystem, bool) {
	sub, ok := i.subsystems[strings.ToLower(name)]
	return sub, ok
}

// Subsystems returns all loaded subsystems sorted by name.
func (i *Instance) Subsystems() []*subsystem.Subsystem {
	subs := make([]*subsystem.Subsystem, 0, len(i.subsystems))
	for _, s := range i.subsystems {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(a, b int) bool { return subs[a].Name() < subs[b].Name() })
	return subs
}

// Chown hands path over to the instance user. It is a no-op unless the
// process runs as root and the instance user exists.
func (i *Instance) Chown(path string) error {
	return i.owner.chown(path)
}
