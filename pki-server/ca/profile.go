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

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

func newProfileCmd(pather command.Pather, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "CA profile management commands",
		Args:  cobra.NoArgs,
	}
	joined := command.Join(pather, cmd)
	cmd.AddCommand(
		newProfileImportCmd(joined, open),
	)
	return cmd
}

func newProfileImportCmd(pather command.Pather, open Opener) *cobra.Command {
	var envFlags flag.PKIEnvironment
	var flags struct {
		inputFolder   string
		asCurrentUser bool
	}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CA profiles",
		Example: fmt.Sprintf("  %[1]s import --input-folder /usr/share/pki/ca/profiles/ca",
			pather.CommandPath()),
		Long: `'import' reads every *.cfg and *.profile file of the input folder and stores
it as profile in the CA repository. Profiles with the same ID are replaced.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, sub, err := loadCA(&envFlags, open)
			if err != nil {
				return err
			}
			err = sub.ImportProfiles(cmd.Context(), flags.inputFolder, flags.asCurrentUser)
			if err != nil {
				return serrors.Wrap("importing profiles", err, "folder", flags.inputFolder)
			}
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.inputFolder, "input-folder", subsystem.DefaultProfileFolder,
		"Input folder")
	cmd.Flags().BoolVar(&flags.asCurrentUser, "as-current-user", false,
		"Run as current user")
	return cmd
}
