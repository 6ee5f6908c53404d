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

package command

import (
	"strings"

	"github.com/spf13/cobra"
)

// ExpandArgs rewrites a hyphenated command such as "ca-cert-find" into its
// path "ca cert find". The first argument is split only if it is not a
// command itself and every part names a command of the tree below root.
// Other arguments are returned unchanged.
func ExpandArgs(root *cobra.Command, args []string) []string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") || !strings.Contains(args[0], "-") {
		return args
	}
	if sub, _, err := root.Find(args[:1]); err == nil && sub != root {
		return args
	}
	parts := strings.Split(args[0], "-")
	cmd := root
	for _, part := range parts {
		next := child(cmd, part)
		if next == nil {
			return args
		}
		cmd = next
	}
	out := make([]string, 0, len(parts)+len(args)-1)
	out = append(out, parts...)
	return append(out, args[1:]...)
}

func child(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return c
		}
	}
	return nil
}
