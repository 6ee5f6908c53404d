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

package ca

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
	"github.com/pkitools/pki-server/private/pki/p12"
)

// pkcs12Flags are the flags of the commands that write a PKCS #12 file.
type pkcs12Flags struct {
	file         string
	password     string
	passwordFile string
}

func (f *pkcs12Flags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "pkcs12-file", "", "PKCS #12 file")
	fs.StringVar(&f.password, "pkcs12-password", "", "PKCS #12 password")
	fs.StringVar(&f.passwordFile, "pkcs12-password-file", "", "PKCS #12 password file")
}

func (f *pkcs12Flags) validate() error {
	if f.file == "" {
		return serrors.New("missing PKCS #12 file")
	}
	if f.password == "" && f.passwordFile == "" {
		return serrors.New("missing PKCS #12 password")
	}
	return nil
}

// withPasswordFile writes the password to a file in a temporary directory
// and calls fn with the path of that file. The directory is removed when fn
// returns.
func (f *pkcs12Flags) withPasswordFile(fn func(passwordFile string) error) error {
	password := f.password
	if f.passwordFile != "" {
		var err error
		if password, err = p12.ReadPassword(f.passwordFile); err != nil {
			return err
		}
	}
	dir, err := os.MkdirTemp("", "pki-server-")
	if err != nil {
		return serrors.Wrap("creating temporary directory", err)
	}
	defer os.RemoveAll(dir)

	passwordFile := filepath.Join(dir, "pkcs12_password.txt")
	if err := os.WriteFile(passwordFile, []byte(password), 0600); err != nil {
		return serrors.Wrap("writing password file", err)
	}
	return fn(passwordFile)
}

func newCertChainCmd(pather command.Pather, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "CA certificate chain management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newCertChainExportCmd(joined, open),
	)
	return cmd
}

func newCertChainExportCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags pkcs12Flags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export certificate chain",
		Example: fmt.Sprintf(
			"  %[1]s export --pkcs12-file ca_chain.p12 --pkcs12-password-file password.txt",
			pather.CommandPath()),
		Long: `'export' writes the CA signing certificate and its issuers to a PKCS #12
file. Private keys are not exported.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			return flags.withPasswordFile(func(passwordFile string) error {
				if err := sub.ExportCertChain(cmd.Context(), flags.file, passwordFile); err != nil {
					return serrors.Wrap("exporting certificate chain", err)
				}
				return nil
			})
		},
	}
	envFlags.Register(cmd.Flags())
	flags.register(cmd.Flags())
	return cmd
}
