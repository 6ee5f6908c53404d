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
	"encoding/pem"
	"math/big"
	"strings"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/repository"
)

// FindCertRequests returns the certificate requests. If cert is not empty,
// only the requests that resulted in that certificate are returned. The
// certificate is given as PEM or base64 encoded DER.
func (s *Subsystem) FindCertRequests(
	ctx context.Context,
	cert string,
) ([]repository.Request, error) {

	var serial *big.Int
	if strings.TrimSpace(cert) != "" {
		c, err := ParseCert([]byte(cert), FormatPEM)
		if err != nil {
			return nil, err
		}
		serial = c.SerialNumber
	}
	var reqs []repository.Request
	err := s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		var err error
		reqs, err = repo.FindRequests(ctx, serial)
		return err
	})
	return reqs, err
}

// GetCertRequest returns the certificate request with the given ID.
func (s *Subsystem) GetCertRequest(ctx context.Context, id string) (repository.Request, error) {
	var req repository.Request
	err := s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		var err error
		req, err = repo.GetRequest(ctx, id)
		return err
	})
	return req, err
}

// ImportCertRequest stores a PKCS #10 request for later issuance and returns
// the request ID.
func (s *Subsystem) ImportCertRequest(
	ctx context.Context,
	data []byte,
	profileID string,
) (string, error) {

	csr, err := parseCSR(string(data))
	if err != nil {
		return "", serrors.Wrap("parsing certificate request", err)
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csr.Raw})
	var id string
	err = s.withRepository(ctx, func(ctx context.Context, repo *repository.DB) error {
		var err error
		id, err = repo.InsertRequest(ctx, repository.Request{
			Type:    repository.RequestTypeEnrollment,
			Status:  repository.RequestPending,
			Profile: profileID,
			Request: string(encoded),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	log.FromCtx(ctx).Info("Imported certificate request", "id", id,
		"subject", csr.Subject.String())
	return id, nil
}
