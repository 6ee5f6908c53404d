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

// Package p12 writes certificates and private keys to PKCS #12 files.
//
// A PKCS #12 file produced by this package holds at most one private key.
// Certificates without key are written as trust store entries. If an export
// contains more than one private key, the first keyed entry goes to the
// requested file together with all certificates, and every further keyed
// entry is written to a sibling file named <stem>-<tag>.p12.
package p12

import (
	"crypto"
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/pkitools/pki-server/pkg/private/serrors"
)

// Entry is a certificate, optionally with its private key.
type Entry struct {
	// Nickname identifies the entry. It is used as friendly name in trust
	// stores and for deduplication when appending.
	Nickname string
	// Tag names the sibling file of a keyed entry. The nickname is used if
	// empty.
	Tag  string
	Cert *x509.Certificate
	Key  crypto.Signer
}

// Exporter writes PKCS #12 files and remembers what it wrote, so that
// subsequent exports can append to a file.
type Exporter struct {
	mtx     sync.Mutex
	written map[string][]Entry
}

// NewExporter creates an exporter without any recorded files.
func NewExporter() *Exporter {
	return &Exporter{written: make(map[string][]Entry)}
}

// Export writes entries to file, protected by password. If appendTo is set,
// the entries previously exported to the same file by this exporter are
// kept; an entry with the same nickname is replaced. Export returns the
// paths of all written files.
func (e *Exporter) Export(
	file string,
	password string,
	entries []Entry,
	appendTo bool,
) ([]string, error) {

	if len(entries) == 0 && !appendTo {
		return nil, serrors.New("no entries to export", "file", file)
	}
	for _, entry := range entries {
		if entry.Cert == nil {
			return nil, serrors.New("entry without certificate", "nickname", entry.Nickname)
		}
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()

	key := filepath.Clean(file)
	var all []Entry
	if appendTo {
		all = append(all, e.written[key]...)
	}
	all = merge(all, entries)
	if len(all) == 0 {
		return nil, serrors.New("no entries to export", "file", file)
	}

	written, err := write(file, password, all)
	if err != nil {
		return nil, err
	}
	e.written[key] = all
	return written, nil
}

func merge(existing, added []Entry) []Entry {
	out := append([]Entry(nil), existing...)
	for _, a := range added {
		replaced := false
		for i := range out {
			if a.Nickname != "" && out[i].Nickname == a.Nickname {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func write(file, password string, entries []Entry) ([]string, error) {
	var keyed, certs []Entry
	for _, entry := range entries {
		if entry.Key != nil {
			keyed = append(keyed, entry)
		} else {
			certs = append(certs, entry)
		}
	}

	if len(keyed) == 0 {
		trust := make([]pkcs12.TrustStoreEntry, 0, len(certs))
		for _, c := range certs {
			trust = append(trust, pkcs12.TrustStoreEntry{Cert: c.Cert, FriendlyName: c.Nickname})
		}
		raw, err := pkcs12.Modern.EncodeTrustStoreEntries(trust, password)
		if err != nil {
			return nil, serrors.Wrap("encoding trust store", err, "file", file)
		}
		if err := writeFile(file, raw); err != nil {
			return nil, err
		}
		return []string{file}, nil
	}

	primary := keyed[0]
	var chain []*x509.Certificate
	for _, c := range certs {
		chain = append(chain, c.Cert)
	}
	for _, k := range keyed[1:] {
		chain = append(chain, k.Cert)
	}
	raw, err := pkcs12.Modern.Encode(primary.Key, primary.Cert, chain, password)
	if err != nil {
		return nil, serrors.Wrap("encoding key store", err,
			"file", file, "nickname", primary.Nickname)
	}
	if err := writeFile(file, raw); err != nil {
		return nil, err
	}
	written := []string{file}

	for _, k := range keyed[1:] {
		sibling := SiblingFile(file, k.tag())
		raw, err := pkcs12.Modern.Encode(k.Key, k.Cert, nil, password)
		if err != nil {
			return nil, serrors.Wrap("encoding key store", err,
				"file", sibling, "nickname", k.Nickname)
		}
		if err := writeFile(sibling, raw); err != nil {
			return nil, err
		}
		written = append(written, sibling)
	}
	return written, nil
}

func (e Entry) tag() string {
	if e.Tag != "" {
		return e.Tag
	}
	return strings.NewReplacer(" ", "_", "/", "_").Replace(e.Nickname)
}

// SiblingFile returns the file that holds the keyed entry with the given tag
// when exporting to file, e.g. /tmp/ca.p12 and signing yield
// /tmp/ca-signing.p12.
func SiblingFile(file, tag string) string {
	ext := filepath.Ext(file)
	if ext == "" {
		ext = ".p12"
	}
	return strings.TrimSuffix(file, filepath.Ext(file)) + "-" + tag + ext
}

func writeFile(file string, raw []byte) error {
	if err := os.WriteFile(file, raw, 0600); err != nil {
		return serrors.Wrap("writing PKCS #12 file", err, "file", file)
	}
	return nil
}

// ReadPassword reads the password from the first line of the password file.
func ReadPassword(passwordFile string) (string, error) {
	raw, err := os.ReadFile(passwordFile)
	if err != nil {
		return "", serrors.Wrap("reading password file", err, "file", passwordFile)
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// Decode reads a PKCS #12 file. It returns the private key and its
// certificate, if the file holds a key, and all other certificates.
func Decode(
	raw []byte,
	password string,
) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {

	key, cert, chain, err := pkcs12.DecodeChain(raw, password)
	if err == nil {
		return key, cert, chain, nil
	}
	certs, trustErr := pkcs12.DecodeTrustStore(raw, password)
	if trustErr != nil {
		return nil, nil, nil, serrors.Wrap("decoding PKCS #12 data", err)
	}
	return nil, nil, certs, nil
}
