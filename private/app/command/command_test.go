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

package command_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkitools/pki-server/private/app/command"
)

func newTree() *cobra.Command {
	noop := func(*cobra.Command, []string) error { return nil }
	root := &cobra.Command{Use: "pki-server", Args: cobra.NoArgs}
	ca := &cobra.Command{Use: "ca"}
	cert := &cobra.Command{Use: "cert"}
	cert.AddCommand(
		&cobra.Command{Use: "find", RunE: noop},
		&cobra.Command{Use: "del", RunE: noop},
	)
	ca.AddCommand(cert)
	root.AddCommand(ca, &cobra.Command{Use: "self-test", RunE: noop})
	return root
}

func TestJoin(t *testing.T) {
	root := newTree()
	ca := &cobra.Command{Use: "ca"}
	joined := command.Join(root, ca)
	assert.Equal(t, "pki-server ca", joined.CommandPath())
	assert.Equal(t, "pki-server ca cert",
		command.Join(joined, &cobra.Command{Use: "cert"}).CommandPath())
}

func TestExpandArgs(t *testing.T) {
	testCases := map[string]struct {
		Args     []string
		Expected []string
	}{
		"empty": {
			Args:     nil,
			Expected: nil,
		},
		"already split": {
			Args:     []string{"ca", "cert", "find"},
			Expected: []string{"ca", "cert", "find"},
		},
		"hyphenated leaf": {
			Args:     []string{"ca-cert-del", "0x10", "-v"},
			Expected: []string{"ca", "cert", "del", "0x10", "-v"},
		},
		"hyphenated group": {
			Args:     []string{"ca-cert", "--help"},
			Expected: []string{"ca", "cert", "--help"},
		},
		"hyphenated command name": {
			Args:     []string{"self-test"},
			Expected: []string{"self-test"},
		},
		"unknown part": {
			Args:     []string{"ca-key-find"},
			Expected: []string{"ca-key-find"},
		},
		"flag first": {
			Args:     []string{"--help"},
			Expected: []string{"--help"},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.Expected, command.ExpandArgs(newTree(), tc.Args))
		})
	}
}

func TestCompletion(t *testing.T) {
	root := newTree()
	root.AddCommand(command.NewCompletion(root))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"completion", "--shell", "zsh"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "pki-server")

	root.SetArgs([]string{"completion", "--shell", "tcsh"})
	assert.Error(t, root.Execute())
}

func TestGendocs(t *testing.T) {
	root := newTree()
	root.AddCommand(command.NewGendocs(root))
	dir := filepath.Join(t.TempDir(), "docs")

	root.SetArgs([]string{"gendocs", dir})
	require.NoError(t, root.Execute())
	for _, name := range []string{"pki-server.md", "pki-server_ca.md",
		"pki-server_ca_cert_find.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "pki-server_ca_cert.md"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "(app-pki-server-ca-cert)=")
	assert.Contains(t, string(raw), "pki-server_ca_cert_find")
}
