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

package instance_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkitools/pki-server/pkg/log/testlog"
	"github.com/pkitools/pki-server/private/pki/instance"
	"github.com/pkitools/pki-server/private/pki/p12"
)

func TestLayout(t *testing.T) {
	inst := instance.New("", instance.WithRoot("/srv"))
	assert.Equal(t, instance.DefaultName, inst.Name())
	assert.Equal(t, instance.DefaultUser, inst.User())
	assert.Equal(t, "/srv/var/lib/pki/pki-tomcat", inst.BaseDir())
	assert.Equal(t, "/srv/etc/pki/pki-tomcat", inst.ConfDir())
	assert.Equal(t, "/srv/var/log/pki/pki-tomcat", inst.LogDir())
	assert.Equal(t, "/srv/etc/sysconfig/pki/tomcat/pki-tomcat", inst.RegistryDir())
	assert.Equal(t, "/srv/etc/pki/pki-tomcat/alias", inst.KeystoreDir())
	assert.Equal(t, "/srv/etc/pki/pki-tomcat/external_certs.conf", inst.ExternalCertsFile())

	inst = instance.New("pki-ca", instance.WithUser("pkica"))
	assert.Equal(t, "/var/lib/pki/pki-ca", inst.BaseDir())
	assert.Equal(t, "pkica", inst.User())
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))
	assert.False(t, inst.Exists())
	assert.Error(t, inst.Load())

	require.NoError(t, inst.MakeDirs(inst.BaseDir(), false))
	assert.True(t, inst.Exists())
	for _, name := range []string{"ca", "ocsp"} {
		dir := filepath.Join(inst.ConfDir(), name)
		require.NoError(t, inst.MakeDirs(dir, true))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "CS.cfg"),
			[]byte(name+".cert.list=signing\n"), 0660))
	}
	// Directories without CS.cfg are not subsystems.
	require.NoError(t, inst.MakeDirs(filepath.Join(inst.ConfDir(), "alias"), true))

	require.NoError(t, inst.Load())
	subs := inst.Subsystems()
	require.Len(t, subs, 2)
	assert.Equal(t, "ca", subs[0].Name())
	assert.Equal(t, "ocsp", subs[1].Name())

	ca, ok := inst.Subsystem("CA")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(inst.BaseDir(), "ca"), ca.BaseDir())
	_, ok = inst.Subsystem("kra")
	assert.False(t, ok)
}

func TestMakeDirs(t *testing.T) {
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))
	dir := filepath.Join(root, "a", "b", "c")

	require.NoError(t, inst.MakeDirs(dir, false))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Error(t, inst.MakeDirs(dir, false))
	assert.NoError(t, inst.MakeDirs(dir, true))
}

func TestCopy(t *testing.T) {
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))

	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0600))

	dst := filepath.Join(root, "dst")
	require.NoError(t, inst.Copy(src, dst))
	raw, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(raw))
	info, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	single := filepath.Join(root, "single", "a.txt")
	require.NoError(t, inst.Copy(filepath.Join(src, "a.txt"), single))
	raw, err = os.ReadFile(single)
	require.NoError(t, err)
	assert.Equal(t, "a", string(raw))

	assert.Error(t, inst.Copy(filepath.Join(root, "missing"), dst))
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))

	src := filepath.Join(root, "CS.cfg")
	require.NoError(t, os.WriteFile(src, []byte(
		"instanceId=[PKI_INSTANCE_NAME]\n"+
			"machineName=[PKI_HOSTNAME]\n"+
			"unknown=[PKI_UNKNOWN]\n"), 0660))
	slots := map[string]string{
		"PKI_INSTANCE_NAME": "pki_instance_name",
		"PKI_HOSTNAME":      "pki_hostname",
	}
	params := map[string]string{
		"pki_instance_name": "pki-tomcat",
		"pki_hostname":      "pki.example.com",
	}
	dst := filepath.Join(root, "out", "CS.cfg")
	require.NoError(t, inst.CopyFile(src, dst, slots, params))
	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "instanceId=pki-tomcat\n"+
		"machineName=pki.example.com\n"+
		"unknown=[PKI_UNKNOWN]\n", string(raw))
}

func TestSymlink(t *testing.T) {
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	link := filepath.Join(root, "links", "conf")

	require.NoError(t, inst.Symlink(first, link))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, first, target)

	require.NoError(t, inst.Symlink(second, link))
	target, err = os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, second, target)

	regular := filepath.Join(root, "regular")
	require.NoError(t, os.WriteFile(regular, nil, 0644))
	assert.Error(t, inst.Symlink(first, regular))
}

func TestExportExternalCerts(t *testing.T) {
	ctx := testlog.Context(t)
	root := t.TempDir()
	inst := instance.New("pki-tomcat", instance.WithRoot(root))
	pwdFile := filepath.Join(root, "password.txt")
	require.NoError(t, os.WriteFile(pwdFile, []byte("Secret.123\n"), 0600))
	out := filepath.Join(root, "external.p12")

	// No external certificates, nothing is written.
	require.NoError(t, inst.ExportExternalCerts(ctx, out, pwdFile, false))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))

	ks := inst.Keystore()
	extA, extB := selfSigned(t, "External CA A"), selfSigned(t, "External CA B")
	require.NoError(t, ks.PutCertificate("extA", extA))
	require.NoError(t, ks.PutCertificate("extB", extB))
	require.NoError(t, os.WriteFile(inst.ExternalCertsFile(), []byte(
		"0.nickname=extA\n0.token=internal\n1.nickname=extB\n"), 0644))

	certs, err := inst.ExternalCerts()
	require.NoError(t, err)
	assert.Equal(t, []instance.ExternalCert{
		{Nickname: "extA", Token: "internal"},
		{Nickname: "extB"},
	}, certs)

	require.NoError(t, inst.ExportExternalCerts(ctx, out, pwdFile, false))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	key, _, decoded, err := p12.Decode(raw, "Secret.123")
	require.NoError(t, err)
	assert.Nil(t, key)
	assert.Len(t, decoded, 2)

	require.NoError(t, os.WriteFile(inst.ExternalCertsFile(), []byte(
		"0.token=internal\n"), 0644))
	_, err = inst.ExternalCerts()
	assert.Error(t, err)
}

func selfSigned(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
