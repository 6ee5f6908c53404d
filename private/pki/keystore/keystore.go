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

// Package keystore implements a nickname addressed store for certificates and
// private keys.
//
// Every entry is kept as a pair of PEM files in the store directory:
// <nickname>.crt holds the certificate and <nickname>.key holds the PKCS #8
// encoded private key, if any. Tokens other than the internal token are kept
// in sub directories named after the token.
package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkitools/pki-server/pkg/private/serrors"
)

const (
	// InternalToken is the name of the default token.
	InternalToken = "internal"
	// InternalTokenFull is the long form name of the default token.
	InternalTokenFull = "Internal Key Storage Token"

	certExt = ".crt"
	keyExt  = ".key"
)

var (
	// ErrNotFound indicates that no entry exists for the nickname.
	ErrNotFound = errors.New("keystore: entry not found")
	// ErrInvalidNickname indicates that a nickname cannot be mapped to a file.
	ErrInvalidNickname = errors.New("keystore: invalid nickname")
)

// Store is a directory backed keystore.
type Store struct {
	dir string
}

// Open returns the store located at dir. The directory is created on the
// first write.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Token returns the store for the named token. The empty name and both forms
// of the internal token name refer to s itself.
func (s *Store) Token(name string) (*Store, error) {
	if IsInternalToken(name) {
		return s, nil
	}
	if err := checkName(name); err != nil {
		return nil, serrors.Wrap("invalid token", err, "token", name)
	}
	return &Store{dir: filepath.Join(s.dir, name)}, nil
}

// IsInternalToken reports whether name refers to the internal token.
func IsInternalToken(name string) bool {
	return name == "" || strings.EqualFold(name, InternalToken) ||
		strings.EqualFold(name, InternalTokenFull)
}

// Certificate returns the certificate stored under nickname.
func (s *Store) Certificate(nickname string) (*x509.Certificate, error) {
	raw, err := s.read(nickname, certExt)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, serrors.New("no certificate PEM block", "nickname", nickname)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, serrors.Wrap("parsing certificate", err, "nickname", nickname)
	}
	return cert, nil
}

// PrivateKey returns the private key stored under nickname.
func (s *Store) PrivateKey(nickname string) (crypto.Signer, error) {
	raw, err := s.read(nickname, keyExt)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, serrors.New("no private key PEM block", "nickname", nickname)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, serrors.Wrap("parsing private key", err, "nickname", nickname)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, serrors.New("unsupported private key type",
			"nickname", nickname, "type", fmt.Sprintf("%T", key))
	}
	return signer, nil
}

// HasKey reports whether a private key is stored under nickname.
func (s *Store) HasKey(nickname string) bool {
	path, err := s.path(nickname, keyExt)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// PutCertificate stores cert under nickname, replacing any existing
// certificate.
func (s *Store) PutCertificate(nickname string, cert *x509.Certificate) error {
	raw := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	return s.write(nickname, certExt, raw, 0644)
}

// PutPrivateKey stores key under nickname, replacing any existing key.
func (s *Store) PutPrivateKey(nickname string, key crypto.Signer) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return serrors.Wrap("encoding private key", err, "nickname", nickname)
	}
	raw := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return s.write(nickname, keyExt, raw, 0600)
}

// Remove deletes the certificate and key stored under nickname.
func (s *Store) Remove(nickname string) error {
	found := false
	for _, ext := range []string{certExt, keyExt} {
		path, err := s.path(nickname, ext)
		if err != nil {
			return err
		}
		switch err := os.Remove(path); {
		case err == nil:
			found = true
		case !errors.Is(err, fs.ErrNotExist):
			return serrors.Wrap("removing entry", err, "nickname", nickname)
		}
	}
	if !found {
		return serrors.JoinNoStack(ErrNotFound, nil, "nickname", nickname)
	}
	return nil
}

// Nicknames lists the nicknames of all stored certificates in sorted order.
func (s *Store) Nicknames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, serrors.Wrap("reading keystore", err, "dir", s.dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), certExt) {
			continue
		}
		names = append(names, decodeNickname(strings.TrimSuffix(e.Name(), certExt)))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) read(nickname, ext string) ([]byte, error) {
	path, err := s.path(nickname, ext)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, serrors.JoinNoStack(ErrNotFound, nil, "nickname", nickname)
	}
	if err != nil {
		return nil, serrors.Wrap("reading entry", err, "nickname", nickname)
	}
	return raw, nil
}

func (s *Store) write(nickname, ext string, raw []byte, perm os.FileMode) error {
	path, err := s.path(nickname, ext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return serrors.Wrap("creating keystore", err, "dir", s.dir)
	}
	if err := os.WriteFile(path, raw, perm); err != nil {
		return serrors.Wrap("writing entry", err, "nickname", nickname)
	}
	return nil
}

func (s *Store) path(nickname, ext string) (string, error) {
	if err := checkName(nickname); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, encodeNickname(nickname)+ext), nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return serrors.JoinNoStack(ErrInvalidNickname, nil, "nickname", name)
	}
	return nil
}

// Nicknames such as "caSigningCert cert-pki-tomcat CA" are used verbatim.
// Path separators and the escape character itself are percent encoded.
var (
	nicknameEncoder = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C")
	nicknameDecoder = strings.NewReplacer("%25", "%", "%2F", "/", "%5C", "\\")
)

func encodeNickname(nickname string) string { return nicknameEncoder.Replace(nickname) }
func decodeNickname(name string) string     { return nicknameDecoder.Replace(name) }

// GenerateKey creates a private key for the given algorithm. Supported
// algorithms are "rsa" and "rsa:<bits>" (default 2048 bits), and "ec" and
// "ec:<curve>" with curve nistp256 (default), nistp384 or nistp521. The
// algorithm name is case insensitive.
func GenerateKey(algorithm string) (crypto.Signer, error) {
	kind, param, _ := strings.Cut(strings.ToLower(strings.TrimSpace(algorithm)), ":")
	switch kind {
	case "rsa":
		bits := 2048
		if param != "" {
			var err error
			if bits, err = strconv.Atoi(param); err != nil || bits < 1024 {
				return nil, serrors.New("invalid RSA key size", "size", param)
			}
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, serrors.Wrap("generating RSA key", err)
		}
		return key, nil
	case "ec", "ecc":
		var curve elliptic.Curve
		switch param {
		case "", "nistp256", "p256", "secp256r1":
			curve = elliptic.P256()
		case "nistp384", "p384", "secp384r1":
			curve = elliptic.P384()
		case "nistp521", "p521", "secp521r1":
			curve = elliptic.P521()
		default:
			return nil, serrors.New("unsupported curve", "curve", param)
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, serrors.Wrap("generating EC key", err)
		}
		return key, nil
	default:
		return nil, serrors.New("unsupported key algorithm", "algorithm", algorithm)
	}
}
