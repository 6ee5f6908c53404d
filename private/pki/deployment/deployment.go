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

// Package deployment provisions PKI subsystems on disk.
//
// A deployment is driven by a flat parameter mapping. The mapping is built
// from built-in defaults, overlaid by an optional deployment file and by
// explicit parameters, and then interpolated. Scriptlets consume the mapping
// and perform discrete provisioning steps.
package deployment

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/instance"
)

// Subsystem types that can be deployed.
const (
	CA   = "CA"
	OCSP = "OCSP"
	TPS  = "TPS"
)

// ErrMissingParameter indicates that a required deployment parameter is not
// set.
var ErrMissingParameter = errors.New("missing deployment parameter")

// Scriptlet is a discrete provisioning step. Destroy undoes what Spawn did.
type Scriptlet interface {
	Spawn(ctx context.Context, d *Deployer) error
	Destroy(ctx context.Context, d *Deployer) error
}

// Options configure a deployer.
type Options struct {
	// Subsystem is the subsystem type, one of CA, OCSP and TPS.
	Subsystem string
	// Instance is the instance name. A pki_instance_name parameter takes
	// precedence.
	Instance string
	// Root is the root prefix of all paths. Defaults to /.
	Root string
	// File is an optional deployment file.
	File string
	// Hostname defaults to the host name reported by the kernel.
	Hostname string
	// Params are applied on top of the deployment file.
	Params map[string]string
	// Force tolerates missing files during Destroy.
	Force bool
	// RemoveLogs makes Destroy remove the subsystem logs.
	RemoveLogs bool
}

// Deployer holds the state of one deployment run.
type Deployer struct {
	// Mdict is the interpolated parameter mapping.
	Mdict map[string]string
	// Slots maps template slot names to keys of Mdict.
	Slots map[string]string

	Force      bool
	RemoveLogs bool

	External    bool
	Standalone  bool
	Subordinate bool
	Clone       bool

	// Instance is the instance the subsystem is deployed into.
	Instance *instance.Instance
}

// New builds the parameter mapping and returns a deployer for it.
func New(opts Options) (*Deployer, error) {
	subsystemType := strings.ToUpper(opts.Subsystem)
	switch subsystemType {
	case CA, OCSP, TPS:
	default:
		return nil, serrors.New("unsupported subsystem", "subsystem", opts.Subsystem)
	}
	defaults, err := Defaults()
	if err != nil {
		return nil, err
	}
	slots, err := Slots()
	if err != nil {
		return nil, err
	}
	hostname := opts.Hostname
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil {
			return nil, serrors.Wrap("determining host name", err)
		}
	}
	name := opts.Instance
	if name == "" {
		name = instance.DefaultName
	}

	params := make(map[string]string)
	defaults.merge(params, subsystemType)
	params["pki_instance_name"] = name
	params["pki_hostname"] = hostname
	params["pki_install_time"] = time.Now().Format(time.ANSIC)
	if opts.File != "" {
		user, err := LoadSections(opts.File)
		if err != nil {
			return nil, err
		}
		user.merge(params, subsystemType)
	}
	for k, v := range opts.Params {
		params[k] = v
	}
	// The subsystem and the root prefix are fixed by the caller.
	params["pki_subsystem"] = subsystemType
	params["pki_subsystem_type"] = strings.ToLower(subsystemType)
	params["pki_root_prefix"] = rootPrefix(opts.Root)

	mdict, err := Interpolate(params)
	if err != nil {
		return nil, err
	}
	d := &Deployer{
		Mdict:      mdict,
		Slots:      slots,
		Force:      opts.Force,
		RemoveLogs: opts.RemoveLogs,
		Instance: instance.New(mdict["pki_instance_name"],
			instance.WithRoot(opts.Root), instance.WithUser(mdict["pki_user"])),
	}
	d.External = d.Bool("pki_external")
	d.Standalone = d.Bool("pki_standalone")
	d.Subordinate = d.Bool("pki_subordinate")
	d.Clone = d.Bool("pki_clone")
	return d, nil
}

func rootPrefix(root string) string {
	if root == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Clean(root), "/")
}

// Subsystem returns the upper case subsystem type.
func (d *Deployer) Subsystem() string { return d.Mdict["pki_subsystem"] }

// Bool interprets the parameter as a boolean. Missing parameters are false.
func (d *Deployer) Bool(key string) bool {
	return ParseBool(d.Mdict[key])
}

// ParseBool accepts the boolean spellings used in deployment files.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true
	default:
		return false
	}
}

// Require checks that all keys are set.
func (d *Deployer) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := d.Mdict[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return serrors.JoinNoStack(ErrMissingParameter, nil, "keys", missing)
}

// Spawn runs the scriptlets in order.
func (d *Deployer) Spawn(ctx context.Context, scriptlets ...Scriptlet) error {
	for _, s := range scriptlets {
		if err := s.Spawn(ctx, d); err != nil {
			return err
		}
	}
	log.FromCtx(ctx).Info("Deployed subsystem", "subsystem", d.Subsystem(),
		"instance", d.Instance.Name())
	return nil
}

// Destroy runs the scriptlets in reverse order.
func (d *Deployer) Destroy(ctx context.Context, scriptlets ...Scriptlet) error {
	for i := len(scriptlets) - 1; i >= 0; i-- {
		if err := scriptlets[i].Destroy(ctx, d); err != nil {
			return err
		}
	}
	log.FromCtx(ctx).Info("Removed subsystem", "subsystem", d.Subsystem(),
		"instance", d.Instance.Name())
	return nil
}

// RemoveTree removes path and everything below it. A link is removed, not
// followed. Unless force is set, a missing path is an error.
func RemoveTree(path string, force bool) error {
	if _, err := os.Lstat(path); err != nil {
		if force && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return serrors.Wrap("removing tree", err, "path", path)
	}
	if err := os.RemoveAll(path); err != nil && !force {
		return serrors.Wrap("removing tree", err, "path", path)
	}
	return nil
}
