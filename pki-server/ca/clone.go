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

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
)

// cloneCertTags are the system certificates a clone needs, in export order.
var cloneCertTags = []string{"subsystem", "signing", "ocsp_signing", "audit_signing"}

func newCloneCmd(pather command.Pather, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "CA clone management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newClonePrepareCmd(joined, open),
	)
	return cmd
}

func newClonePrepareCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		pkcs12 pkcs12Flags
		noKey  bool
	}
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare CA clone",
		Example: fmt.Sprintf(
			"  %[1]s prepare --pkcs12-file ca-certs.p12 --pkcs12-password Secret.123",
			pather.CommandPath()),
		Long: `'prepare' exports the system certificates and the external certificates
of the instance to a PKCS #12 file that is used to set up a CA clone.

A PKCS #12 file holds a single private key. The subsystem key goes to the
given file, and every further system key is written next to it as
<stem>-<tag>.p12, e.g. ca-certs-signing.p12, ca-certs-ocsp_signing.p12 and
ca-certs-audit_signing.p12 for ca-certs.p12. Copy all of these files to the
clone. With --no-key only the given file is written.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.pkcs12.validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			inst, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			file := flags.pkcs12.file
			return flags.pkcs12.withPasswordFile(func(passwordFile string) error {
				for i, tag := range cloneCertTags {
					log.FromCtx(ctx).Info("Exporting system certificate", "tag", tag,
						"file", file)
					err := sub.ExportSystemCert(ctx, tag, file, passwordFile, flags.noKey, i > 0)
					if err != nil {
						return serrors.Wrap("exporting system certificate", err, "tag", tag)
					}
				}
				if err := inst.ExportExternalCerts(ctx, file, passwordFile, true); err != nil {
					return serrors.Wrap("exporting external certificates", err)
				}
				return nil
			})
		},
	}
	envFlags.Register(cmd.Flags())
	flags.pkcs12.register(cmd.Flags())
	cmd.Flags().BoolVar(&flags.noKey, "no-key", false, "Do not include private keys")
	return cmd
}
