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

// Package ca contains the commands that operate on the CA subsystem of a
// server instance.
package ca

import (
	"context"
	"crypto/x509"

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
	"github.com/pkitools/pki-server/private/pki/instance"
	"github.com/pkitools/pki-server/private/pki/repository"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

//go:generate mockgen -destination=mock_ca/mock.go -package=mock_ca . Instance,Subsystem

// SubsystemName is the name of the CA subsystem inside an instance.
const SubsystemName = "ca"

// Subsystem is the CA subsystem the commands operate on.
type Subsystem interface {
	FindCerts(ctx context.Context) ([]repository.CertRecord, error)
	CreateCert(ctx context.Context, opts subsystem.CreateOptions) ([]byte, error)
	ImportCert(ctx context.Context, opts subsystem.ImportOptions) (*x509.Certificate, error)
	RemoveCert(ctx context.Context, serial string) error
	ExportCertChain(ctx context.Context, file, passwordFile string) error
	ExportSystemCert(ctx context.Context, tag, file, passwordFile string,
		noKey, appendTo bool) error
	FindCertRequests(ctx context.Context, cert string) ([]repository.Request, error)
	GetCertRequest(ctx context.Context, id string) (repository.Request, error)
	ImportCertRequest(ctx context.Context, data []byte, profileID string) (string, error)
	ImportProfiles(ctx context.Context, folder string, asCurrentUser bool) error
}

// Instance is the server instance hosting the CA subsystem.
type Instance interface {
	Exists() bool
	Load() error
	Subsystem(name string) (Subsystem, bool)
	ExportExternalCerts(ctx context.Context, file, passwordFile string, appendTo bool) error
}

// Opener opens the instance with the given name below the root prefix.
type Opener func(name, root string) Instance

// OpenInstance opens an instance on the local file system.
func OpenInstance(name, root string) Instance {
	return localInstance{Instance: instance.New(name, instance.WithRoot(root))}
}

type localInstance struct {
	*instance.Instance
}

func (i localInstance) Subsystem(name string) (Subsystem, bool) {
	sub, ok := i.Instance.Subsystem(name)
	if !ok {
		return nil, false
	}
	return sub, true
}

// Cmd returns the ca command tree. If open is nil, instances are opened on the
// local file system.
func Cmd(pather command.Pather, open Opener) *cobra.Command {
	if open == nil {
		open = OpenInstance
	}
	cmd := &cobra.Command{
		Use:   "ca",
		Short: "CA management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newCertCmd(joined, open),
		newCloneCmd(joined, open),
		newProfileCmd(joined, open),
	)
	return cmd
}

// loadCA sets up the environment and returns the instance together with its
// CA subsystem.
func loadCA(env *flag.PKIEnvironment, open Opener) (Instance, Subsystem, error) {
	if err := env.Setup(); err != nil {
		return nil, nil, err
	}
	name := env.Instance()
	inst := open(name, env.Root())
	if !inst.Exists() {
		return nil, nil, serrors.New("invalid instance", "instance", name)
	}
	if err := inst.Load(); err != nil {
		return nil, nil, serrors.Wrap("loading instance", err, "instance", name)
	}
	sub, ok := inst.Subsystem(SubsystemName)
	if !ok {
		return nil, nil, serrors.New("no CA subsystem in instance", "instance", name)
	}
	return inst, sub, nil
}
