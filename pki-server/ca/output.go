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
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/pkitools/pki-server/private/pki/repository"
)

// colored reports whether w is a terminal that accepts colored output.
func colored(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func plain() *color.Color {
	c := color.New()
	c.DisableColor()
	return c
}

func printCerts(w io.Writer, certs []repository.CertRecord) {
	fmt.Fprintf(w, "%d entries matched\n", len(certs))
	if len(certs) == 0 {
		return
	}
	valid, revoked := plain(), plain()
	if colored(w) {
		valid = color.New(color.FgGreen)
		revoked = color.New(color.FgRed)
	}
	rows := make([][]string, 0, len(certs))
	for _, c := range certs {
		status := valid
		if c.Status != repository.StatusValid {
			status = revoked
		}
		rows = append(rows, []string{
			repository.FormatSerial(c.Serial),
			c.Subject,
			c.Issuer,
			c.NotBefore.UTC().Format(time.RFC3339),
			c.NotAfter.UTC().Format(time.RFC3339),
			status.Sprint(c.Status),
		})
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"SERIAL", "SUBJECT", "ISSUER", "NOT BEFORE", "NOT AFTER", "STATUS"})
	table.AppendBulk(rows)
	table.Render()
}

func printRequest(w io.Writer, req repository.Request, details bool) {
	keys := plain()
	if colored(w) {
		keys = color.New(color.FgHiCyan)
	}
	fmt.Fprintf(w, "  %s: %s\n", keys.Sprint("Request ID"), req.ID)
	fmt.Fprintf(w, "  %s: %s\n", keys.Sprint("Type"), req.Type)
	fmt.Fprintf(w, "  %s: %s\n", keys.Sprint("Status"), req.Status)
	if details {
		fmt.Fprintf(w, "  %s: %s\n", keys.Sprint("Request"), req.Request)
	}
}
