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

package ca_test

import (
	"bytes"
	"context"
	"crypto/x509"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pkitools/pki-server/pki-server/ca"
	"github.com/pkitools/pki-server/pki-server/ca/mock_ca"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/p12"
	"github.com/pkitools/pki-server/private/pki/repository"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// run executes the ca command tree with the given arguments and returns what
// was written to standard out.
func run(t *testing.T, open ca.Opener, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PKI_INSTANCE", "")
	t.Setenv("PKI_ROOT", "")

	root := &cobra.Command{Use: "pki-server", SilenceErrors: true}
	root.AddCommand(ca.Cmd(root, open))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"ca"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// openCA returns an opener for an instance with a CA subsystem.
func openCA(t *testing.T, ctrl *gomock.Controller) (ca.Opener, *mock_ca.MockInstance,
	*mock_ca.MockSubsystem) {

	inst := mock_ca.NewMockInstance(ctrl)
	sub := mock_ca.NewMockSubsystem(ctrl)
	inst.EXPECT().Exists().Return(true)
	inst.EXPECT().Load().Return(nil)
	inst.EXPECT().Subsystem("ca").Return(sub, true)
	open := func(name, root string) ca.Instance {
		assert.Equal(t, "pki-tomcat", name)
		assert.Equal(t, "/", root)
		return inst
	}
	return open, inst, sub
}

// noOpen returns an opener that fails the test when called.
func noOpen(t *testing.T) ca.Opener {
	return func(name, root string) ca.Instance {
		t.Fatalf("unexpected open of instance %s", name)
		return nil
	}
}

func TestLoadInstance(t *testing.T) {
	testCases := map[string]struct {
		Prepare      func(inst *mock_ca.MockInstance, sub *mock_ca.MockSubsystem)
		ErrAssertion assert.ErrorAssertionFunc
		Contains     string
	}{
		"invalid instance": {
			Prepare: func(inst *mock_ca.MockInstance, _ *mock_ca.MockSubsystem) {
				inst.EXPECT().Exists().Return(false)
			},
			ErrAssertion: assert.Error,
			Contains:     "invalid instance",
		},
		"load error": {
			Prepare: func(inst *mock_ca.MockInstance, _ *mock_ca.MockSubsystem) {
				inst.EXPECT().Exists().Return(true)
				inst.EXPECT().Load().Return(serrors.New("broken CS.cfg"))
			},
			ErrAssertion: assert.Error,
			Contains:     "broken CS.cfg",
		},
		"no CA subsystem": {
			Prepare: func(inst *mock_ca.MockInstance, _ *mock_ca.MockSubsystem) {
				inst.EXPECT().Exists().Return(true)
				inst.EXPECT().Load().Return(nil)
				inst.EXPECT().Subsystem("ca").Return(nil, false)
			},
			ErrAssertion: assert.Error,
			Contains:     "no CA subsystem in instance",
		},
		"valid": {
			Prepare: func(inst *mock_ca.MockInstance, sub *mock_ca.MockSubsystem) {
				inst.EXPECT().Exists().Return(true)
				inst.EXPECT().Load().Return(nil)
				inst.EXPECT().Subsystem("ca").Return(sub, true)
				sub.EXPECT().FindCerts(gomock.Any()).Return(nil, nil)
			},
			ErrAssertion: assert.NoError,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			inst := mock_ca.NewMockInstance(ctrl)
			sub := mock_ca.NewMockSubsystem(ctrl)
			tc.Prepare(inst, sub)
			var opened string
			open := func(name, root string) ca.Instance {
				opened = name
				return inst
			}
			_, err := run(t, open, "cert", "find", "-i", "pki-ca")
			tc.ErrAssertion(t, err)
			if tc.Contains != "" {
				assert.ErrorContains(t, err, tc.Contains)
			}
			assert.Equal(t, "pki-ca", opened)
		})
	}
}

func TestInstanceFromEnvironment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inst := mock_ca.NewMockInstance(ctrl)
	inst.EXPECT().Exists().Return(false)
	var name, root string
	open := func(n, r string) ca.Instance {
		name, root = n, r
		return inst
	}
	cmd := &cobra.Command{Use: "pki-server", SilenceErrors: true}
	cmd.AddCommand(ca.Cmd(cmd, open))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ca", "cert", "find"})
	t.Setenv("PKI_INSTANCE", "pki-env")
	t.Setenv("PKI_ROOT", "/srv/pki")

	assert.Error(t, cmd.Execute())
	assert.Equal(t, "pki-env", name)
	assert.Equal(t, "/srv/pki", root)
}

func TestCertFind(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	open, _, sub := openCA(t, ctrl)
	notBefore := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub.EXPECT().FindCerts(gomock.Any()).Return([]repository.CertRecord{
		{
			Serial:    big.NewInt(0x1f),
			Subject:   "CN=CA Signing Certificate",
			Issuer:    "CN=CA Signing Certificate",
			NotBefore: notBefore,
			NotAfter:  notBefore.AddDate(20, 0, 0),
			Status:    repository.StatusValid,
		},
		{
			Serial:    big.NewInt(0x20),
			Subject:   "CN=server.example.com",
			Issuer:    "CN=CA Signing Certificate",
			NotBefore: notBefore,
			NotAfter:  notBefore.AddDate(2, 0, 0),
			Status:    repository.StatusRevoked,
		},
	}, nil)

	out, err := run(t, open, "cert", "find")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 entries matched\n"), out)
	for _, s := range []string{"SERIAL", "0x1f", "0x20", "CN=server.example.com",
		"2025-01-01T00:00:00Z", "2045-01-01T00:00:00Z", "VALID", "REVOKED"} {
		assert.Contains(t, out, s)
	}
}

func TestCertCreate(t *testing.T) {
	pemCert := []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")
	expected := subsystem.CreateOptions{
		RequestID:        "7",
		Profile:          "caServerCert.profile",
		Type:             subsystem.CertTypeLocal,
		SigningAlgorithm: "SHA256withRSA",
		Serial:           "0x20",
		Format:           subsystem.FormatPEM,
	}
	args := []string{"cert", "create", "--request", "7", "--profile", "caServerCert.profile",
		"--type", "local", "--serial", "0x20"}

	t.Run("stdout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().CreateCert(gomock.Any(), expected).Return(pemCert, nil)
		out, err := run(t, open, args...)
		require.NoError(t, err)
		assert.Equal(t, string(pemCert), out)
	})
	t.Run("file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		file := filepath.Join(t.TempDir(), "server.crt")
		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().CreateCert(gomock.Any(), expected).Return(pemCert, nil)
		out, err := run(t, open, append(args, "--cert", file)...)
		require.NoError(t, err)
		assert.Empty(t, out)
		raw, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, pemCert, raw)
	})
	t.Run("error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().CreateCert(gomock.Any(), gomock.Any()).
			Return(nil, serrors.New("missing request ID"))
		_, err := run(t, open, "cert", "create")
		assert.ErrorContains(t, err, "missing request ID")
	})
}

func TestCertImport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	file := filepath.Join(t.TempDir(), "ca_signing.der")
	require.NoError(t, os.WriteFile(file, []byte{0x30, 0x82}, 0644))

	open, _, sub := openCA(t, ctrl)
	sub.EXPECT().ImportCert(gomock.Any(), subsystem.ImportOptions{
		Data:      []byte{0x30, 0x82},
		Format:    subsystem.FormatDER,
		Profile:   "caCert.profile",
		RequestID: "1",
	}).Return(&x509.Certificate{SerialNumber: big.NewInt(1)}, nil)

	out, err := run(t, open, "cert", "import", "--cert", file, "--format", "DER",
		"--profile", "caCert.profile", "--request", "1")
	require.NoError(t, err)
	assert.Equal(t, "Imported certificate 0x1\n", out)
}

func TestCertRemove(t *testing.T) {
	t.Run("missing serial number", func(t *testing.T) {
		_, err := run(t, noOpen(t), "cert", "del")
		assert.ErrorContains(t, err, "missing serial number")
	})
	t.Run("too many arguments", func(t *testing.T) {
		_, err := run(t, noOpen(t), "cert", "del", "0x1", "0x2")
		assert.Error(t, err)
	})
	t.Run("valid", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().RemoveCert(gomock.Any(), "0x10").Return(nil)
		_, err := run(t, open, "cert", "del", "0x10")
		assert.NoError(t, err)
	})
}

// passwordRecorder records the password file handed to an export and its
// content at the time of the call.
type passwordRecorder struct {
	file     string
	password string
}

func (r *passwordRecorder) record(file string) {
	r.file = file
	raw, _ := os.ReadFile(file)
	r.password = string(raw)
}

func TestCertChainExport(t *testing.T) {
	t.Run("missing arguments", func(t *testing.T) {
		testCases := map[string]struct {
			Args     []string
			Contains string
		}{
			"no file": {
				Args:     []string{"--pkcs12-password", "Secret.123"},
				Contains: "missing PKCS #12 file",
			},
			"no password": {
				Args:     []string{"--pkcs12-file", "ca.p12"},
				Contains: "missing PKCS #12 password",
			},
		}
		for name, tc := range testCases {
			t.Run(name, func(t *testing.T) {
				args := append([]string{"cert", "chain", "export"}, tc.Args...)
				_, err := run(t, noOpen(t), args...)
				assert.ErrorContains(t, err, tc.Contains)
			})
		}
	})

	testCases := map[string]struct {
		Args     func(dir string) []string
		Password string
	}{
		"password": {
			Args: func(string) []string {
				return []string{"--pkcs12-password", "Secret.123"}
			},
			Password: "Secret.123",
		},
		"password file": {
			Args: func(dir string) []string {
				file := filepath.Join(dir, "password.txt")
				require.NoError(t, os.WriteFile(file, []byte("Secret.456\n"), 0600))
				return []string{"--pkcs12-password-file", file}
			},
			Password: "Secret.456",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			dir := t.TempDir()
			p12File := filepath.Join(dir, "ca.p12")
			var rec passwordRecorder
			open, _, sub := openCA(t, ctrl)
			sub.EXPECT().ExportCertChain(gomock.Any(), p12File, gomock.Any()).
				DoAndReturn(func(_ context.Context, _, passwordFile string) error {
					rec.record(passwordFile)
					return nil
				})

			args := append([]string{"cert", "chain", "export", "--pkcs12-file", p12File},
				tc.Args(dir)...)
			_, err := run(t, open, args...)
			require.NoError(t, err)
			assert.Equal(t, tc.Password, rec.password)
			_, err = os.Stat(filepath.Dir(rec.file))
			assert.True(t, os.IsNotExist(err), "temporary directory not removed")
		})
	}
}

func TestCertRequestFind(t *testing.T) {
	reqs := []repository.Request{
		{ID: "1", Type: "enrollment", Status: "complete", Request: "CSR1"},
		{ID: "2", Type: "enrollment", Status: "pending", Request: "CSR2"},
	}
	expected := `2 entries matched
  Request ID: 1
  Type: enrollment
  Status: complete

  Request ID: 2
  Type: enrollment
  Status: pending
`
	t.Run("all", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().FindCertRequests(gomock.Any(), "").Return(reqs, nil)
		out, err := run(t, open, "cert", "request", "find")
		require.NoError(t, err)
		assert.Equal(t, expected, out)
	})
	t.Run("cert file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		file := filepath.Join(t.TempDir(), "server.crt")
		require.NoError(t, os.WriteFile(file, []byte("PEM DATA"), 0644))
		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().FindCertRequests(gomock.Any(), "PEM DATA").Return(reqs[:1], nil)
		out, err := run(t, open, "cert", "request", "find", "--cert-file", file)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "1 entries matched\n"), out)
	})
	t.Run("cert and cert file", func(t *testing.T) {
		_, err := run(t, noOpen(t), "cert", "request", "find", "--cert", "a",
			"--cert-file", "b")
		assert.Error(t, err)
	})
}

func TestCertRequestShow(t *testing.T) {
	req := repository.Request{ID: "3", Type: "enrollment", Status: "pending", Request: "CSR"}

	t.Run("missing request ID", func(t *testing.T) {
		_, err := run(t, noOpen(t), "cert", "request", "show")
		assert.ErrorContains(t, err, "missing request ID")
	})
	t.Run("print", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().GetCertRequest(gomock.Any(), "3").Return(req, nil)
		out, err := run(t, open, "cert", "request", "show", "3")
		require.NoError(t, err)
		assert.Equal(t,
			"  Request ID: 3\n  Type: enrollment\n  Status: pending\n  Request: CSR\n", out)
	})
	t.Run("output file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		file := filepath.Join(t.TempDir(), "request.csr")
		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().GetCertRequest(gomock.Any(), "3").Return(req, nil)
		out, err := run(t, open, "cert", "request", "show", "3", "--output-file", file)
		require.NoError(t, err)
		assert.Empty(t, out)
		raw, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, "CSR", string(raw))
	})
}

func TestCertRequestImport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	file := filepath.Join(t.TempDir(), "server.csr")
	require.NoError(t, os.WriteFile(file, []byte("CSR"), 0644))
	open, _, sub := openCA(t, ctrl)
	sub.EXPECT().ImportCertRequest(gomock.Any(), []byte("CSR"), "caServerCert.profile").
		Return("4", nil)

	out, err := run(t, open, "cert", "request", "import", "--request", file,
		"--profile", "caServerCert.profile")
	require.NoError(t, err)
	assert.Equal(t, "  Request ID: 4\n", out)
}

func TestClonePrepare(t *testing.T) {
	testCases := map[string]struct {
		NoKey bool
	}{
		"with keys":    {NoKey: false},
		"without keys": {NoKey: true},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			p12File := filepath.Join(t.TempDir(), "ca-certs.p12")
			var rec passwordRecorder
			open, inst, sub := openCA(t, ctrl)
			gomock.InOrder(
				sub.EXPECT().ExportSystemCert(gomock.Any(), "subsystem", p12File,
					gomock.Any(), tc.NoKey, false).
					DoAndReturn(func(_ context.Context, _, _, passwordFile string,
						_, _ bool) error {

						rec.record(passwordFile)
						return nil
					}),
				sub.EXPECT().ExportSystemCert(gomock.Any(), "signing", p12File,
					gomock.Any(), tc.NoKey, true),
				sub.EXPECT().ExportSystemCert(gomock.Any(), "ocsp_signing", p12File,
					gomock.Any(), tc.NoKey, true),
				sub.EXPECT().ExportSystemCert(gomock.Any(), "audit_signing", p12File,
					gomock.Any(), tc.NoKey, true),
				inst.EXPECT().ExportExternalCerts(gomock.Any(), p12File, gomock.Any(), true),
			)

			args := []string{"clone", "prepare", "--pkcs12-file", p12File,
				"--pkcs12-password", "Secret.123"}
			if tc.NoKey {
				args = append(args, "--no-key")
			}
			_, err := run(t, open, args...)
			require.NoError(t, err)
			assert.Equal(t, "Secret.123", rec.password)
			_, err = os.Stat(rec.file)
			assert.True(t, os.IsNotExist(err), "password file not removed")
		})
	}

	t.Run("export error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		open, _, sub := openCA(t, ctrl)
		sub.EXPECT().ExportSystemCert(gomock.Any(), "subsystem", gomock.Any(),
			gomock.Any(), false, false).Return(serrors.New("system certificate not found"))
		_, err := run(t, open, "clone", "prepare", "--pkcs12-file", "ca.p12",
			"--pkcs12-password", "Secret.123")
		assert.ErrorContains(t, err, "system certificate not found")
	})
	t.Run("missing password", func(t *testing.T) {
		_, err := run(t, noOpen(t), "clone", "prepare", "--pkcs12-file", "ca.p12")
		assert.ErrorContains(t, err, "missing PKCS #12 password")
	})
	t.Run("help names key files", func(t *testing.T) {
		out, err := run(t, noOpen(t), "clone", "prepare", "--help")
		require.NoError(t, err)
		for _, tag := range []string{"signing", "ocsp_signing", "audit_signing"} {
			assert.Contains(t, out, filepath.Base(p12.SiblingFile("ca-certs.p12", tag)))
		}
	})
}

func TestProfileImport(t *testing.T) {
	testCases := map[string]struct {
		Args          []string
		Folder        string
		AsCurrentUser bool
	}{
		"defaults": {
			Folder: subsystem.DefaultProfileFolder,
		},
		"custom folder": {
			Args:          []string{"--input-folder", "/tmp/profiles", "--as-current-user"},
			Folder:        "/tmp/profiles",
			AsCurrentUser: true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			open, _, sub := openCA(t, ctrl)
			sub.EXPECT().ImportProfiles(gomock.Any(), tc.Folder, tc.AsCurrentUser)
			_, err := run(t, open, append([]string{"profile", "import"}, tc.Args...)...)
			assert.NoError(t, err)
		})
	}
}
