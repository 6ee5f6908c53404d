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
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/csconfig"
	"github.com/pkitools/pki-server/private/pki/keystore"
	"github.com/pkitools/pki-server/private/pki/profile"
	"github.com/pkitools/pki-server/private/pki/repository"
	"github.com/pkitools/pki-server/private/storage/db"
)

// Certificate types for CreateCert.
const (
	CertTypeSelfSign = "selfsign"
	CertTypeLocal    = "local"
)

// Certificate encodings.
const (
	FormatPEM = "PEM"
	FormatDER = "DER"
)

var (
	// ErrUnsupportedKeyType indicates a key type other than RSA or EC.
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	// ErrUnsupportedSigningAlgorithm indicates an unknown signing algorithm.
	ErrUnsupportedSigningAlgorithm = errors.New("unsupported signing algorithm")
)

var signingAlgorithms = map[string]x509.SignatureAlgorithm{
	"sha256withrsa": x509.SHA256WithRSA,
	"sha384withrsa": x509.SHA384WithRSA,
	"sha512withrsa": x509.SHA512WithRSA,
	"sha256withec":  x509.ECDSAWithSHA256,
	"sha384withec":  x509.ECDSAWithSHA384,
	"sha512withec":  x509.ECDSAWithSHA512,
}

// ParseSigningAlgorithm maps names such as SHA256withRSA or SHA384withEC to
// the signature algorithm. Names are case insensitive.
func ParseSigningAlgorithm(name string) (x509.SignatureAlgorithm, error) {
	alg, ok := signingAlgorithms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return x509.UnknownSignatureAlgorithm,
			serrors.JoinNoStack(ErrUnsupportedSigningAlgorithm, nil, "algorithm", name)
	}
	return alg, nil
}

// KeyType returns RSA or EC for the public key.
func KeyType(pub crypto.PublicKey) (string, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RSA", nil
	case *ecdsa.PublicKey:
		return "EC", nil
	default:
		return "", serrors.JoinNoStack(ErrUnsupportedKeyType, nil,
			"type", fmt.Sprintf("%T", pub))
	}
}

// algorithmKeyType returns the key type a key or signing algorithm name
// refers to, e.g. RSA for SHA256withRSA and EC for ECC.
func algorithmKeyType(name string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case upper == "RSA" || strings.HasSuffix(upper, "WITHRSA"):
		return "RSA", nil
	case upper == "EC" || upper == "ECC" || strings.HasSuffix(upper, "WITHEC"):
		return "EC", nil
	default:
		return "", serrors.JoinNoStack(ErrUnsupportedKeyType, nil, "algorithm", name)
	}
}

// FindCerts returns all certificates in the repository.
func (s *Subsystem) FindCerts(ctx context.Context) ([]repository.CertRecord, error) {
	var recs []repository.CertRecord
	err := s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		var err error
		recs, err = repo.ListCerts(ctx)
		return err
	})
	return recs, err
}

// CreateOptions configure CreateCert.
type CreateOptions struct {
	RequestID string
	// Profile is a profile file or the ID of an imported profile. The
	// profile of the request is used if empty.
	Profile string
	// Type is selfsign (default) or local.
	Type string
	// KeyID and KeyToken identify the signing key of a self-signed
	// certificate in the keystore.
	KeyID    string
	KeyToken string
	// KeyAlgorithm, if set, must match the type of the signing key.
	KeyAlgorithm string
	// SigningAlgorithm defaults to SHA256withRSA.
	SigningAlgorithm string
	// Serial is a hexadecimal number with 0x prefix or a decimal number. A
	// random serial number is used if empty.
	Serial string
	// Format is PEM (default) or DER.
	Format string
}

// CreateCert issues a certificate for the given request and returns it in
// the requested format. The certificate is added to the repository and the
// request is marked complete.
func (s *Subsystem) CreateCert(ctx context.Context, opts CreateOptions) ([]byte, error) {
	logger := log.FromCtx(ctx)
	if opts.RequestID == "" {
		return nil, serrors.New("missing request ID")
	}
	format, err := checkFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	sigAlgName := opts.SigningAlgorithm
	if sigAlgName == "" {
		sigAlgName = "SHA256withRSA"
	}
	sigAlg, err := ParseSigningAlgorithm(sigAlgName)
	if err != nil {
		return nil, err
	}
	serial, err := serialNumber(opts.Serial)
	if err != nil {
		return nil, err
	}

	var der []byte
	err = s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		req, err := repo.GetRequest(ctx, opts.RequestID)
		if err != nil {
			return err
		}
		csr, err := parseCSR(req.Request)
		if err != nil {
			return serrors.Wrap("parsing certificate request", err, "request", req.ID)
		}
		profileID := opts.Profile
		if profileID == "" {
			profileID = req.Profile
		}
		prof, err := s.loadProfile(ctx, repo, profileID)
		if err != nil {
			return err
		}

		tmpl := &x509.Certificate{
			SerialNumber:       serial,
			Subject:            csr.Subject,
			DNSNames:           csr.DNSNames,
			EmailAddresses:     csr.EmailAddresses,
			IPAddresses:        csr.IPAddresses,
			URIs:               csr.URIs,
			SignatureAlgorithm: sigAlg,
		}
		prof.Apply(tmpl, time.Now().UTC().Truncate(time.Second))

		parent, signer, err := s.issuer(opts, tmpl, csr)
		if err != nil {
			return err
		}
		if err := checkKeyAlgorithms(signer.Public(), opts.KeyAlgorithm, sigAlgName); err != nil {
			return err
		}
		logger.Info("Creating certificate", "request", req.ID, "profile", prof.ID,
			"type", certType(opts.Type), "serial", repository.FormatSerial(serial))
		der, err = x509.CreateCertificate(rand.Reader, tmpl, parent, csr.PublicKey, signer)
		if err != nil {
			return serrors.Wrap("creating certificate", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return serrors.Wrap("parsing created certificate", err)
		}
		rec := repository.NewCertRecord(cert, prof.ID, req.ID)
		return repo.WithTx(ctx, func(ctx context.Context, tx *repository.DB) error {
			if err := tx.InsertCert(ctx, rec); err != nil {
				return err
			}
			return tx.CompleteRequest(ctx, req.ID, cert.SerialNumber)
		})
	})
	if err != nil {
		return nil, err
	}
	return encodeCert(der, format), nil
}

func certType(t string) string {
	if t == "" {
		return CertTypeSelfSign
	}
	return strings.ToLower(t)
}

// issuer returns the issuer certificate template and the signing key.
func (s *Subsystem) issuer(
	opts CreateOptions,
	tmpl *x509.Certificate,
	csr *x509.CertificateRequest,
) (*x509.Certificate, crypto.Signer, error) {

	switch certType(opts.Type) {
	case CertTypeSelfSign:
		if opts.KeyID == "" {
			return nil, nil, serrors.New("missing key ID for self-signed certificate")
		}
		store, err := s.keystore.Token(opts.KeyToken)
		if err != nil {
			return nil, nil, err
		}
		signer, err := store.PrivateKey(opts.KeyID)
		if err != nil {
			return nil, nil, serrors.Wrap("loading signing key", err, "key", opts.KeyID)
		}
		if !publicKeyEqual(signer.Public(), csr.PublicKey) {
			return nil, nil, serrors.New("key does not match certificate request",
				"key", opts.KeyID)
		}
		return tmpl, signer, nil
	case CertTypeLocal:
		nickname, ok := s.cfg.Get(s.name + ".signing.nickname")
		if !ok || nickname == "" {
			return nil, nil, serrors.New("signing certificate not configured",
				"subsystem", s.name)
		}
		token := s.cfg.GetDefault(s.name+".signing.tokenname", keystore.InternalToken)
		store, err := s.keystore.Token(token)
		if err != nil {
			return nil, nil, err
		}
		cert, err := store.Certificate(nickname)
		if err != nil {
			return nil, nil, serrors.Wrap("loading signing certificate", err,
				"nickname", nickname)
		}
		signer, err := store.PrivateKey(nickname)
		if err != nil {
			return nil, nil, serrors.Wrap("loading signing key", err, "nickname", nickname)
		}
		return cert, signer, nil
	default:
		return nil, nil, serrors.New("unsupported certificate type", "type", opts.Type)
	}
}

func checkKeyAlgorithms(pub crypto.PublicKey, keyAlg, sigAlg string) error {
	keyType, err := KeyType(pub)
	if err != nil {
		return err
	}
	for _, name := range []string{keyAlg, sigAlg} {
		if name == "" {
			continue
		}
		expected, err := algorithmKeyType(name)
		if err != nil {
			return err
		}
		if expected != keyType {
			return serrors.New("algorithm does not match signing key",
				"algorithm", name, "key_type", keyType)
		}
	}
	return nil
}

func publicKeyEqual(a, b crypto.PublicKey) bool {
	k, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && k.Equal(b)
}

func serialNumber(s string) (*big.Int, error) {
	if s != "" {
		return repository.ParseSerial(s)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	for {
		serial, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, serrors.Wrap("generating serial number", err)
		}
		if serial.Sign() > 0 {
			return serial, nil
		}
	}
}

func (s *Subsystem) loadProfile(
	ctx context.Context,
	repo *repository.DB,
	id string,
) (*profile.Profile, error) {

	if id == "" {
		return nil, serrors.New("missing profile")
	}
	if _, err := os.Stat(id); err == nil {
		return profile.Load(id)
	}
	stored, err := repo.GetProfile(ctx, id)
	if err != nil {
		return nil, serrors.Wrap("loading profile", err, "profile", id)
	}
	cfg, err := csconfig.Parse(strings.NewReader(stored.Config))
	if err != nil {
		return nil, serrors.Wrap("parsing stored profile", err, "profile", id)
	}
	return profile.Parse(cfg, stored.ID)
}

func checkFormat(format string) (string, error) {
	switch f := strings.ToUpper(format); f {
	case "":
		return FormatPEM, nil
	case FormatPEM, FormatDER:
		return f, nil
	default:
		return "", serrors.New("unsupported certificate format", "format", format)
	}
}

func encodeCert(der []byte, format string) []byte {
	if format == FormatDER {
		return der
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// parseCSR accepts a PEM encoded request, with either header variant, or the
// base64 encoded DER without header.
func parseCSR(data string) (*x509.CertificateRequest, error) {
	der, err := decodeBlock(data, "CERTIFICATE REQUEST", "NEW CERTIFICATE REQUEST")
	if err != nil {
		return nil, err
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, serrors.Wrap("verifying request signature", err)
	}
	return csr, nil
}

// ParseCert decodes a certificate given as PEM, DER or base64 encoded DER
// without header.
func ParseCert(data []byte, format string) (*x509.Certificate, error) {
	f, err := checkFormat(format)
	if err != nil {
		return nil, err
	}
	der := data
	if f == FormatPEM {
		if der, err = decodeBlock(string(data), "CERTIFICATE"); err != nil {
			return nil, err
		}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, serrors.Wrap("parsing certificate", err)
	}
	return cert, nil
}

func decodeBlock(data string, types ...string) ([]byte, error) {
	if block, _ := pem.Decode([]byte(data)); block != nil {
		for _, t := range types {
			if block.Type == t {
				return block.Bytes, nil
			}
		}
		return nil, serrors.New("unexpected PEM block", "type", block.Type)
	}
	// Data without PEM armor is base64 encoded DER, possibly wrapped.
	wrapped := fmt.Sprintf("-----BEGIN %[1]s-----\n%[2]s\n-----END %[1]s-----\n",
		types[0], strings.TrimSpace(data))
	block, _ := pem.Decode([]byte(wrapped))
	if block == nil {
		return nil, serrors.New("invalid encoding, expected PEM or base64")
	}
	return block.Bytes, nil
}

// ImportOptions configure ImportCert.
type ImportOptions struct {
	Data      []byte
	Format    string
	Profile   string
	RequestID string
}

// ImportCert adds an existing certificate to the repository. If a request ID
// is given, the request is marked complete. Nothing is stored if either step
// fails.
func (s *Subsystem) ImportCert(
	ctx context.Context,
	opts ImportOptions,
) (*x509.Certificate, error) {

	cert, err := ParseCert(opts.Data, opts.Format)
	if err != nil {
		return nil, err
	}
	err = s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		return repo.WithTx(ctx, func(ctx context.Context, tx *repository.DB) error {
			rec := repository.NewCertRecord(cert, opts.Profile, opts.RequestID)
			if err := tx.InsertCert(ctx, rec); err != nil {
				return err
			}
			if opts.RequestID == "" {
				return nil
			}
			return tx.CompleteRequest(ctx, opts.RequestID, cert.SerialNumber)
		})
	})
	if err != nil {
		return nil, err
	}
	log.FromCtx(ctx).Info("Imported certificate",
		"serial", repository.FormatSerial(cert.SerialNumber))
	return cert, nil
}

// RemoveCert deletes the certificate with the given serial number from the
// repository.
func (s *Subsystem) RemoveCert(ctx context.Context, serial string) error {
	sn, err := repository.ParseSerial(serial)
	if err != nil {
		return err
	}
	return s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		if err := repo.DeleteCert(ctx, sn); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return serrors.Wrap("certificate not found", err, "serial", serial)
			}
			return err
		}
		log.FromCtx(ctx).Info("Removed certificate", "serial", repository.FormatSerial(sn))
		return nil
	})
}
