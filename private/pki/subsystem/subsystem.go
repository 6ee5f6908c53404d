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

// Package subsystem implements the operations of a PKI subsystem (CA, OCSP,
// TPS) that is part of a server instance.
//
// A subsystem is described by its configuration mapping (CS.cfg) in the
// subsystem configuration directory. Its system certificates live in the
// instance keystore and its certificates, requests and profiles in a sqlite
// repository below the subsystem path.
package subsystem

import (
	"context"
	"crypto/x509"
	"errors"
	"path/filepath"
	"strings"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/csconfig"
	"github.com/pkitools/pki-server/private/pki/keystore"
	"github.com/pkitools/pki-server/private/pki/p12"
	"github.com/pkitools/pki-server/private/pki/repository"
)

// ConfigFile is the name of the subsystem configuration file.
const ConfigFile = "CS.cfg"

// Owner hands files created on behalf of the subsystem over to the instance
// user.
type Owner interface {
	Chown(path string) error
}

// Params describe where a subsystem lives.
type Params struct {
	// Name is the lower case subsystem name, e.g. ca.
	Name string
	// ConfDir is the subsystem configuration directory containing CS.cfg.
	ConfDir string
	// BaseDir is the subsystem path below the instance base directory.
	BaseDir string
	// Keystore is the instance keystore.
	Keystore *keystore.Store
	// Exporter writes PKCS #12 files. Exports that append to a file only
	// see entries written through the same exporter.
	Exporter *p12.Exporter
	// Owner, if set, is applied to the files created by ImportProfiles and
	// to CS.cfg when it is saved.
	Owner Owner
}

// Subsystem is a loaded PKI subsystem.
type Subsystem struct {
	name     string
	confDir  string
	baseDir  string
	cfg      *csconfig.Config
	keystore *keystore.Store
	exporter *p12.Exporter
	owner    Owner
}

// Load reads the subsystem configuration.
func Load(p Params) (*Subsystem, error) {
	if p.Name == "" {
		return nil, serrors.New("subsystem name missing")
	}
	cfg, err := csconfig.Load(filepath.Join(p.ConfDir, ConfigFile))
	if err != nil {
		return nil, serrors.Wrap("loading subsystem configuration", err, "subsystem", p.Name)
	}
	exporter := p.Exporter
	if exporter == nil {
		exporter = p12.NewExporter()
	}
	ks := p.Keystore
	if ks == nil {
		ks = keystore.Open(filepath.Join(filepath.Dir(p.ConfDir), "alias"))
	}
	return &Subsystem{
		name:     strings.ToLower(p.Name),
		confDir:  p.ConfDir,
		baseDir:  p.BaseDir,
		cfg:      cfg,
		keystore: ks,
		exporter: exporter,
		owner:    p.Owner,
	}, nil
}

// Name returns the lower case subsystem name.
func (s *Subsystem) Name() string { return s.name }

// Type returns the upper case subsystem type, e.g. CA.
func (s *Subsystem) Type() string { return strings.ToUpper(s.name) }

// Config returns the subsystem configuration mapping. Changes are persisted
// with Save.
func (s *Subsystem) Config() *csconfig.Config { return s.cfg }

// ConfDir returns the subsystem configuration directory.
func (s *Subsystem) ConfDir() string { return s.confDir }

// BaseDir returns the subsystem path.
func (s *Subsystem) BaseDir() string { return s.baseDir }

// Save writes the configuration mapping back to CS.cfg. The rewritten file
// is handed to the owner, if one is set.
func (s *Subsystem) Save() error {
	if err := s.cfg.Save(); err != nil {
		return err
	}
	if s.owner == nil {
		return nil
	}
	return s.owner.Chown(s.cfg.Path())
}

// RepositoryPath returns the path of the subsystem repository database.
func (s *Subsystem) RepositoryPath() string {
	return filepath.Join(s.baseDir, "db", repository.FileName)
}

func (s *Subsystem) openRepository() (*repository.DB, error) {
	return repository.Open(s.RepositoryPath())
}

// SystemCert is a certificate that the subsystem itself uses.
type SystemCert struct {
	// Tag identifies the certificate within the subsystem, e.g. signing.
	Tag      string
	Nickname string
	Token    string
	// Cert is nil if the keystore has no certificate for the nickname.
	Cert *x509.Certificate
}

// FindSystemCerts returns the system certificates listed in
// <subsystem>.cert.list.
func (s *Subsystem) FindSystemCerts() ([]SystemCert, error) {
	var certs []SystemCert
	for _, tag := range s.cfg.List(s.name + ".cert.list") {
		cert, err := s.systemCert(tag)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func (s *Subsystem) systemCert(tag string) (SystemCert, error) {
	sc := SystemCert{
		Tag:      tag,
		Nickname: s.cfg.GetDefault(s.name+"."+tag+".nickname", ""),
		Token:    s.cfg.GetDefault(s.name+"."+tag+".tokenname", keystore.InternalToken),
	}
	if sc.Nickname == "" {
		return sc, nil
	}
	store, err := s.keystore.Token(sc.Token)
	if err != nil {
		return SystemCert{}, err
	}
	cert, err := store.Certificate(sc.Nickname)
	switch {
	case errors.Is(err, keystore.ErrNotFound):
	case err != nil:
		return SystemCert{}, serrors.Wrap("loading system certificate", err, "tag", tag)
	default:
		sc.Cert = cert
	}
	return sc, nil
}

// withRepository opens the repository for the duration of f.
func (s *Subsystem) withRepository(
	ctx context.Context,
	f func(context.Context, *repository.DB) error,
) error {

	repo, err := s.openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()
	return f(ctx, repo)
}
