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

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
)

func newCertRequestCmd(pather command.Pather, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "CA certificate request management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newCertRequestFindCmd(joined, open),
		newCertRequestShowCmd(joined, open),
		newCertRequestImportCmd(joined, open),
	)
	return cmd
}

func newCertRequestFindCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		cert     string
		certFile string
	}
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find certificate requests in CA",
		Example: fmt.Sprintf(`  %[1]s find
  %[1]s find --cert-file server.crt`, pather.CommandPath()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.cert != "" && flags.certFile != "" {
				return serrors.New("--cert and --cert-file are mutually exclusive")
			}
			cmd.SilenceUsage = true
			cert := flags.cert
			if flags.certFile != "" {
				raw, err := os.ReadFile(flags.certFile)
				if err != nil {
					return serrors.Wrap("reading certificate", err, "file", flags.certFile)
				}
				cert = string(raw)
			}
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			reqs, err := sub.FindCertRequests(cmd.Context(), cert)
			if err != nil {
				return serrors.Wrap("finding certificate requests", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d entries matched\n", len(reqs))
			for i, req := range reqs {
				if i != 0 {
					fmt.Fprintln(w)
				}
				printRequest(w, req, false)
			}
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.cert, "cert", "", "Issued certificate")
	cmd.Flags().StringVar(&flags.certFile, "cert-file", "", "Issued certificate file")
	return cmd
}

func newCertRequestShowCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		outputFile string
	}
	cmd := &cobra.Command{
		Use:   "show <request ID>",
		Short: "Show certificate request in CA",
		Example: fmt.Sprintf(`  %[1]s show 1
  %[1]s show 1 --output-file request.csr`, pather.CommandPath()),
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0:
				return serrors.New("missing request ID")
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
			req, err := sub.GetCertRequest(cmd.Context(), args[0])
			if err != nil {
				return serrors.Wrap("retrieving certificate request", err, "request", args[0])
			}
			if flags.outputFile == "" {
				printRequest(cmd.OutOrStdout(), req, true)
				return nil
			}
			if err := os.WriteFile(flags.outputFile, []byte(req.Request), 0644); err != nil {
				return serrors.Wrap("writing certificate request", err, "file", flags.outputFile)
			}
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.outputFile, "output-file", "", "Output file")
	return cmd
}

func newCertRequestImportCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		request string
		profile string
	}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import certificate request into CA",
		Example: fmt.Sprintf("  %[1]s import --request server.csr --profile caServerCert.profile",
			pather.CommandPath()),
		Long: `'import' stores a PKCS #10 certificate request in the CA repository and
prints the ID assigned to it. The ID is used by the 'cert create' command.

The request is read from the file given by --request, or from standard in.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			data, err := readInput(cmd, flags.request)
			if err != nil {
				return err
			}
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			id, err := sub.ImportCertRequest(cmd.Context(), data, flags.profile)
			if err != nil {
				return serrors.Wrap("importing certificate request", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  Request ID: %s\n", id)
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.request, "request", "", "Certificate request path")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "Profile ID")
	return cmd
}
