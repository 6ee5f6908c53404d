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

// Package deploy contains the commands that install and remove a subsystem
// of a server instance.
package deploy

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/app/flag"
	"github.com/pkitools/pki-server/private/pki/deployment"
	"github.com/pkitools/pki-server/private/pki/deployment/subsystemlayout"
)

// Cmd returns the command group of a subsystem type that only carries the
// deployment commands.
func Cmd(
	pather command.Pather,
	subsystemType string,
	scriptlets ...deployment.Scriptlet,
) *cobra.Command {

	name := strings.ToLower(subsystemType)
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s management commands", strings.ToUpper(subsystemType)),
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(Commands(command.Join(pather, cmd), subsystemType, scriptlets...)...)
	return cmd
}

// Commands returns the deploy and undeploy commands of a subsystem type. If no
// scriptlets are given, the subsystem layout scriptlet is run.
func Commands(
	pather command.Pather,
	subsystemType string,
	scriptlets ...deployment.Scriptlet,
) []*cobra.Command {

	if len(scriptlets) == 0 {
		scriptlets = []deployment.Scriptlet{subsystemlayout.Scriptlet{}}
	}
	return []*cobra.Command{
		newDeployCmd(pather, subsystemType, scriptlets),
		newUndeployCmd(pather, subsystemType, scriptlets),
	}
}

func newDeployCmd(
	pather command.Pather,
	subsystemType string,
	scriptlets []deployment.Scriptlet,
) *cobra.Command {

	var envFlags flag.PKIEnvironment
	var flags struct {
		file             string
		skipInstallation bool
		params           map[string]string
	}
	upper := strings.ToUpper(subsystemType)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: fmt.Sprintf("Deploy %s subsystem", upper),
		Example: fmt.Sprintf(`  %[1]s deploy --file ca.toml
  %[1]s deploy -i pki-ca --param pki_clone=True`, pather.CommandPath()),
		Long: fmt.Sprintf(`'deploy' creates the %[1]s subsystem layout of an instance.

The deployment parameters are built from the defaults, the sections DEFAULT and
%[1]s of the deployment file (TOML, or YAML for .yaml and .yml files) and the
--param flags, in this order.
`, upper),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := envFlags.Setup(); err != nil {
				return err
			}
			params := make(map[string]string, len(flags.params)+1)
			for k, v := range flags.params {
				params[k] = v
			}
			if flags.skipInstallation {
				params["pki_skip_installation"] = "True"
			}
			d, err := deployment.New(deployment.Options{
				Subsystem: subsystemType,
				Instance:  envFlags.Instance(),
				Root:      envFlags.Root(),
				File:      flags.file,
				Params:    params,
			})
			if err != nil {
				return serrors.Wrap("preparing deployment", err)
			}
			if err := d.Spawn(cmd.Context(), scriptlets...); err != nil {
				return serrors.Wrap("deploying subsystem", err, "subsystem", upper,
					"instance", d.Instance.Name())
			}
			banner(cmd.OutOrStdout(), fmt.Sprintf("Installed %s subsystem in instance %s",
				upper, d.Instance.Name()))
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Deployment file")
	cmd.Flags().BoolVar(&flags.skipInstallation, "skip-installation", false,
		"Skip the subsystem layout")
	cmd.Flags().StringToStringVar(&flags.params, "param", nil,
		"Deployment parameter as key=value, overrides the deployment file")
	return cmd
}

func newUndeployCmd(
	pather command.Pather,
	subsystemType string,
	scriptlets []deployment.Scriptlet,
) *cobra.Command {

	var envFlags flag.PKIEnvironment
	var flags struct {
		file       string
		force      bool
		removeLogs bool
	}
	upper := strings.ToUpper(subsystemType)
	cmd := &cobra.Command{
		Use:   "undeploy",
		Short: fmt.Sprintf("Remove %s subsystem", upper),
		Example: fmt.Sprintf(`  %[1]s undeploy --force
  %[1]s undeploy --file ca.toml --remove-logs`, pather.CommandPath()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := envFlags.Setup(); err != nil {
				return err
			}
			d, err := deployment.New(deployment.Options{
				Subsystem:  subsystemType,
				Instance:   envFlags.Instance(),
				Root:       envFlags.Root(),
				File:       flags.file,
				Force:      flags.force,
				RemoveLogs: flags.removeLogs,
			})
			if err != nil {
				return serrors.Wrap("preparing deployment", err)
			}
			if err := d.Destroy(cmd.Context(), scriptlets...); err != nil {
				return serrors.Wrap("removing subsystem", err, "subsystem", upper,
					"instance", d.Instance.Name())
			}
			banner(cmd.OutOrStdout(), fmt.Sprintf("Uninstalled %s subsystem from instance %s",
				upper, d.Instance.Name()))
			return nil
		},
	}
	envFlags.Register(cmd.Flags())
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Deployment file")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Ignore missing files")
	cmd.Flags().BoolVar(&flags.removeLogs, "remove-logs", false, "Remove subsystem logs")
	return cmd
}
