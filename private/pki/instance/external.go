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

package instance

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/csconfig"
	"github.com/pkitools/pki-server/private/pki/p12"
)

// ExternalCert is a certificate from outside the instance that the instance
// trusts, for example the CA of an external security domain.
type ExternalCert struct {
	Nickname string
	Token    string
}

// ExternalCerts reads the external certificates file. Entries are keyed by
// index: "<n>.nickname" and "<n>.token". A missing file yields no entries.
func (i *Instance) ExternalCerts() ([]ExternalCert, error) {
	cfg, err := csconfig.Load(i.ExternalCertsFile())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]*ExternalCert)
	for _, key := range cfg.Keys() {
		idx, field, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		c, ok := byIndex[n]
		if !ok {
			c = &ExternalCert{}
			byIndex[n] = c
		}
		switch field {
		case "nickname":
			c.Nickname = cfg.GetDefault(key, "")
		case "token":
			c.Token = cfg.GetDefault(key, "")
		}
	}
	indices := make([]int, 0, len(byIndex))
	for n := range byIndex {
		indices = append(indices, n)
	}
	sort.Ints(indices)
	certs := make([]ExternalCert, 0, len(indices))
	for _, n := range indices {
		if byIndex[n].Nickname == "" {
			return nil, serrors.New("external certificate without nickname", "index", n)
		}
		certs = append(certs, *byIndex[n])
	}
	return certs, nil
}

// ExportExternalCerts writes the external certificates to a PKCS #12 file.
// Private keys are never exported. Without external certificates nothing is
// written.
func (i *Instance) ExportExternalCerts(
	ctx context.Context,
	file string,
	passwordFile string,
	appendTo bool,
) error {

	certs, err := i.ExternalCerts()
	if err != nil {
		return err
	}
	if len(certs) == 0 {
		log.FromCtx(ctx).Debug("No external certificates to export", "instance", i.name)
		return nil
	}
	password, err := p12.ReadPassword(passwordFile)
	if err != nil {
		return err
	}
	ks := i.Keystore()
	entries := make([]p12.Entry, 0, len(certs))
	for _, c := range certs {
		token, err := ks.Token(c.Token)
		if err != nil {
			return err
		}
		cert, err := token.Certificate(c.Nickname)
		if err != nil {
			return serrors.Wrap("loading external certificate", err, "nickname", c.Nickname)
		}
		entries = append(entries, p12.Entry{Nickname: c.Nickname, Cert: cert})
	}
	written, err := i.exporter.Export(file, password, entries, appendTo)
	if err != nil {
		return err
	}
	log.FromCtx(ctx).Info("Exported external certificates", "count", len(entries),
		"files", written)
	return nil
}
