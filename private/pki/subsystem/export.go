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

package subsystem

import (
	"bytes"
	"context"
	"crypto/x509"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/keystore"
	"github.com/pkitools/pki-server/private/pki/p12"
)

// ExportCertChain writes the certificate chain of the subsystem signing
// certificate to a PKCS #12 file. The chain is built from the certificates in
// the keystore. No private keys are exported.
func (s *Subsystem) ExportCertChain(ctx context.Context, file, passwordFile string) error {
	password, err := p12.ReadPassword(passwordFile)
	if err != nil {
		return err
	}
	signing, err := s.systemCert("signing")
	if err != nil {
		return err
	}
	if signing.Cert == nil {
		return serrors.New("signing certificate not found", "subsystem", s.name,
			"nickname", signing.Nickname)
	}
	store, err := s.keystore.Token(signing.Token)
	if err != nil {
		return err
	}
	chain, err := buildChain(store, signing.Nickname, signing.Cert)
	if err != nil {
		return err
	}
	written, err := s.exporter.Export(file, password, chain, false)
	if err != nil {
		return err
	}
	log.FromCtx(ctx).Info("Exported certificate chain", "files", written, "certs", len(chain))
	return nil
}

// buildChain follows the issuers of leaf through the keystore until it reaches
// a self-signed certificate or an issuer that is not in the keystore.
func buildChain(
	store *keystore.Store,
	nickname string,
	leaf *x509.Certificate,
) ([]p12.Entry, error) {

	nicknames, err := store.Nicknames()
	if err != nil {
		return nil, err
	}
	pool := make(map[string]*x509.Certificate, len(nicknames))
	for _, n := range nicknames {
		if n == nickname {
			continue
		}
		cert, err := store.Certificate(n)
		if err != nil {
			return nil, err
		}
		pool[n] = cert
	}

	chain := []p12.Entry{{Nickname: nickname, Cert: leaf}}
	current := leaf
	for !isSelfSigned(current) && len(pool) > 0 {
		var next string
		for n, cert := range pool {
			if bytes.Equal(cert.RawSubject, current.RawIssuer) &&
				current.CheckSignatureFrom(cert) == nil {
				next = n
				break
			}
		}
		if next == "" {
			break
		}
		current = pool[next]
		delete(pool, next)
		chain = append(chain, p12.Entry{Nickname: next, Cert: current})
	}
	return chain, nil
}

func isSelfSigned(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer) && cert.CheckSignatureFrom(cert) == nil
}

// ExportSystemCert writes the system certificate with the given tag to a
// PKCS #12 file. Unless noKey is set, the private key is included. With
// appendTo, the entries previously exported to the same file are kept.
func (s *Subsystem) ExportSystemCert(
	ctx context.Context,
	tag string,
	file string,
	passwordFile string,
	noKey bool,
	appendTo bool,
) error {

	password, err := p12.ReadPassword(passwordFile)
	if err != nil {
		return err
	}
	sc, err := s.systemCert(tag)
	if err != nil {
		return err
	}
	if sc.Nickname == "" {
		return serrors.New("unknown system certificate", "subsystem", s.name, "tag", tag)
	}
	if sc.Cert == nil {
		return serrors.New("system certificate not found", "subsystem", s.name,
			"tag", tag, "nickname", sc.Nickname)
	}
	entry := p12.Entry{Nickname: sc.Nickname, Tag: tag, Cert: sc.Cert}
	if !noKey {
		store, err := s.keystore.Token(sc.Token)
		if err != nil {
			return err
		}
		if entry.Key, err = store.PrivateKey(sc.Nickname); err != nil {
			return serrors.Wrap("loading system certificate key", err, "tag", tag)
		}
	}
	written, err := s.exporter.Export(file, password, []p12.Entry{entry}, appendTo)
	if err != nil {
		return err
	}
	log.FromCtx(ctx).Info("Exported system certificate", "tag", tag,
		"nickname", sc.Nickname, "files", written)
	return nil
}
