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

// Package command contains helpers for building the cobra command tree.
package command

import (
	"github.com/spf13/cobra"
)

// Pather returns the path of a command. *cobra.Command implements it, but the
// path of a command is only complete once it is attached to its parents. Use
// Join to build the path while the tree is being constructed.
type Pather interface {
	CommandPath() string
}

// Join returns the path of cmd as a child of parent.
func Join(parent Pather, cmd *cobra.Command) Pather {
	return stringPather(parent.CommandPath() + " " + cmd.Name())
}

type stringPather string

func (p stringPather) CommandPath() string { return string(p) }
