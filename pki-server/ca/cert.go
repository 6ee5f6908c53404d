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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
	"github.com/pkitools/pki-server/private/pki/repository"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

func newCertCmd(pather command.Pather, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "CA certificate management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newCertFindCmd(joined, open),
		newCertCreateCmd(joined, open),
		newCertImportCmd(joined, open),
		newCertRemoveCmd(joined, open),
		newCertChainCmd(joined, open),
		newCertRequestCmd(joined, open),
	)
	return cmd
}

func newCertFindCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	cmd := &cobra.Command{
		Use:     "find",
		Short:   "Find certificates in the CA repository",
		Example: fmt.Sprintf("  %[1]s find -i pki-tomcat", pather.CommandPath()),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			certs, err := sub.FindCerts(cmd.Context())
			if err != nil {
				return serrors.Wrap("finding certificates", err)
			}
			printCerts(cmd.OutOrStdout(), certs)
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	return cmd
}

func newCertCreateCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		opts subsystem.CreateOptions
		cert string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create certificate from certificate request in CA",
		Example: fmt.Sprintf(`  %[1]s create --request 1 --profile caCert.profile --key-id 0x1f
  %[1]s create --request 2 --profile caServerCert.profile --type local --cert server.crt`,
			pather.CommandPath()),
		Long: `'create' issues a certificate for a request stored in the CA repository.

With type 'selfsign' the certificate is signed with the key given by --key-id and
--key-token. With type 'local' it is signed with the CA signing certificate.

The certificate is written to the file given by --cert, or to standard out.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			data, err := sub.CreateCert(cmd.Context(), flags.opts)
			if err != nil {
				return serrors.Wrap("creating certificate", err)
			}
			if flags.cert == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(flags.cert, data, 0644); err != nil {
				return serrors.Wrap("writing certificate", err, "file", flags.cert)
			}
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.opts.RequestID, "request", "", "Request ID")
	cmd.Flags().StringVar(&flags.opts.Profile, "profile", "", "Profile ID")
	cmd.Flags().StringVar(&flags.opts.Type, "type", subsystem.CertTypeSelfSign,
		"Certificate type (selfsign|local)")
	cmd.Flags().StringVar(&flags.opts.KeyID, "key-id", "", "Key ID")
	cmd.Flags().StringVar(&flags.opts.KeyToken, "key-token", "", "Key token")
	cmd.Flags().StringVar(&flags.opts.KeyAlgorithm, "key-algorithm", "",
		"Key algorithm, checked against the signing key if set")
	cmd.Flags().StringVar(&flags.opts.SigningAlgorithm, "signing-algorithm", "SHA256withRSA",
		"Signing algorithm")
	cmd.Flags().StringVar(&flags.opts.Serial, "serial", "", "Certificate serial number")
	cmd.Flags().StringVar(&flags.opts.Format, "format", subsystem.FormatPEM,
		"Certificate format (PEM|DER)")
	cmd.Flags().StringVar(&flags.cert, "cert", "", "Certificate path")
	return cmd
}

func newCertImportCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		cert    string
		format  string
		profile string
		request string
	}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import certificate into CA",
		Example: fmt.Sprintf("  %[1]s import --cert ca_signing.crt --profile caCert.profile",
			pather.CommandPath()),
		Long: `'import' adds an existing certificate to the CA repository.

The certificate is read from the file given by --cert, or from standard in.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			data, err := readInput(cmd, flags.cert)
			if err != nil {
				return err
			}
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			cert, err := sub.ImportCert(cmd.Context(), subsystem.ImportOptions{
				Data:      data,
				Format:    flags.format,
				Profile:   flags.profile,
				RequestID: flags.request,
			})
			if err != nil {
				return serrors.Wrap("importing certificate", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported certificate %s\n",
				repository.FormatSerial(cert.SerialNumber))
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.cert, "cert", "", "Certificate path")
	cmd.Flags().StringVar(&flags.format, "format", subsystem.FormatPEM,
		"Certificate format (PEM|DER)")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "Profile ID")
	cmd.Flags().StringVar(&flags.request, "request", "", "Request ID")
	return cmd
}

func newCertRemoveCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	cmd := &cobra.Command{
		Use:     "del <serial number>",
		Aliases: []string{"remove"},
		Short:   "Remove certificate from CA",
		Example: fmt.Sprintf("  %[1]s del 0x1f", pather.CommandPath()),
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0:
				return serrors.New("missing serial number")
			case len(args) > 1:
				return serrors.New("too many arguments", "args", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			if err := sub.RemoveCert(cmd.Context(), args[0]); err != nil {
				return serrors.Wrap("removing certificate", err)
			}
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	return cmd
}

// readInput reads the file, or standard in if file is empty.
func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, serrors.Wrap("reading standard in", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading file", err, "file", file)
	}
	return data, nil
}
