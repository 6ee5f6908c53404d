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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkitools/pki-server/pki-server/ca"
	"github.com/pkitools/pki-server/pki-server/deploy"
	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/private/app/command"
	"github.com/pkitools/pki-server/private/pki/deployment"
)

func main() {
	cmd := newRoot()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd.SetArgs(command.ExpandArgs(cmd, os.Args[1:]))
	err := cmd.ExecuteContext(ctx)
	stop()
	log.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pki-server",
		Short: "PKI server management tool",
		Args:  cobra.NoArgs,
		// Errors are printed in main. Commands turn off the usage message once
		// the arguments are well-formed, so that only malformed input prints it.
		SilenceErrors: true,
	}

	caCmd := ca.Cmd(cmd, nil)
	caCmd.AddCommand(deploy.Commands(command.Join(cmd, caCmd), deployment.CA)...)

	cmd.AddCommand(
		command.NewCompletion(cmd),
		command.NewGendocs(cmd),
		newVersion(),
		caCmd,
		deploy.Cmd(cmd, deployment.OCSP),
		deploy.Cmd(cmd, deployment.TPS),
	)
	return cmd
}
