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

package profile_test

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkitools/pki-server/private/csconfig"
	"github.com/pkitools/pki-server/private/pki/profile"
)

func TestParse(t *testing.T) {
	testCases := map[string]struct {
		input     string
		expected  profile.Profile
		assertErr assert.ErrorAssertionFunc
	}{
		"defaults": {
			input: "",
			expected: profile.Profile{
				ID:    "fallback",
				Range: profile.DefaultValidityDays,
				Unit:  profile.Day,
			},
			assertErr: assert.NoError,
		},
		"ca profile": {
			input: `profileId=caCACert
name=Manual Certificate Manager Signing Certificate Enrollment
enable=true
validity.range=20
validity.rangeUnit=year
basicConstraints.isCA=true
keyUsage=keyCertSign,cRLSign,digitalSignature
`,
			expected: profile.Profile{
				ID:       "caCACert",
				Name:     "Manual Certificate Manager Signing Certificate Enrollment",
				Enabled:  true,
				Range:    20,
				Unit:     profile.Year,
				IsCA:     true,
				KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
			},
			assertErr: assert.NoError,
		},
		"server profile": {
			input: `profileId=caServerCert
desc=server
validity.range=6
validity.rangeUnit=Month
keyUsage=digitalSignature,keyEncipherment
extKeyUsage=serverAuth,clientAuth
`,
			expected: profile.Profile{
				ID:          "caServerCert",
				Description: "server",
				Range:       6,
				Unit:        profile.Month,
				KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
				ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
			},
			assertErr: assert.NoError,
		},
		"policy default range": {
			input: "policyset.caCertSet.2.default.params.range=7305\n",
			expected: profile.Profile{
				ID:    "fallback",
				Range: 7305,
				Unit:  profile.Day,
			},
			assertErr: assert.NoError,
		},
		"bad range":     {input: "validity.range=-1\n", assertErr: assert.Error},
		"bad unit":      {input: "validity.rangeUnit=week\n", assertErr: assert.Error},
		"bad usage":     {input: "keyUsage=everything\n", assertErr: assert.Error},
		"bad ext usage": {input: "extKeyUsage=anything\n", assertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg, err := csconfig.Parse(strings.NewReader(tc.input))
			require.NoError(t, err)
			p, err := profile.Parse(cfg, "fallback")
			tc.assertErr(t, err)
			if err != nil {
				return
			}
			assert.Equal(t, tc.expected.ID, p.ID)
			assert.Equal(t, tc.expected.Name, p.Name)
			assert.Equal(t, tc.expected.Description, p.Description)
			assert.Equal(t, tc.expected.Enabled, p.Enabled)
			assert.Equal(t, tc.expected.Range, p.Range)
			assert.Equal(t, tc.expected.Unit, p.Unit)
			assert.Equal(t, tc.expected.IsCA, p.IsCA)
			assert.Equal(t, tc.expected.KeyUsage, p.KeyUsage)
			assert.Equal(t, tc.expected.ExtKeyUsage, p.ExtKeyUsage)
		})
	}
}

func TestApply(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	p := &profile.Profile{ID: "caCACert", Range: 2, Unit: profile.Year, IsCA: true}
	var tmpl x509.Certificate
	p.Apply(&tmpl, start)
	assert.Equal(t, start, tmpl.NotBefore)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), tmpl.NotAfter)
	assert.True(t, tmpl.IsCA)
	assert.True(t, tmpl.BasicConstraintsValid)
	assert.NotZero(t, tmpl.KeyUsage&x509.KeyUsageCertSign)

	p = &profile.Profile{ID: "caServerCert", Range: 10, Unit: profile.Day,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}
	p.Apply(&tmpl, start)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), tmpl.NotAfter)
	assert.False(t, tmpl.IsCA)
	assert.Zero(t, tmpl.KeyUsage)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, tmpl.ExtKeyUsage)
}

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "caAuditSigningCert.profile")
	require.NoError(t, os.WriteFile(file, []byte("validity.range=30\n"), 0644))
	p, err := profile.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "caAuditSigningCert", p.ID)
	assert.Equal(t, 30, p.Range)
	assert.NotNil(t, p.Config())

	_, err = profile.Load(filepath.Join(t.TempDir(), "missing.profile"))
	assert.Error(t, err)
}
