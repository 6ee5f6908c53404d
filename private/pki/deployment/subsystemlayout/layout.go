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

// Package subsystemlayout creates the directories, files and links of a
// subsystem and records how its system certificates are to be provisioned.
package subsystemlayout

import (
	"context"
	"crypto/rand"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/csconfig"
	"github.com/pkitools/pki-server/private/pki/deployment"
	"github.com/pkitools/pki-server/private/pki/subsystem"
)

const (
	pinLength   = 20
	pinAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	commonKeys = []string{
		"pki_subsystem_log_path",
		"pki_subsystem_archive_log_path",
		"pki_subsystem_signed_audit_log_path",
		"pki_subsystem_configuration_path",
		"pki_source_cs_cfg",
		"pki_target_cs_cfg",
		"pki_source_registry_cfg",
		"pki_target_registry_cfg",
		"pki_subsystem_conf_link",
		"pki_subsystem_logs_link",
		"pki_instance_registry_path",
		"pki_subsystem_registry_link",
		"pki_subsystem_name",
		"pki_security_domain_type",
	}
	caKeys = []string{
		"pki_source_emails",
		"pki_subsystem_emails_path",
		"pki_source_profiles",
		"pki_subsystem_profiles_path",
	}
	// caFiles are copied verbatim, source key first.
	caFiles = [][2]string{
		{"pki_source_flatfile_txt", "pki_target_flatfile_txt"},
		{"pki_source_admincert_profile", "pki_target_admincert_profile"},
		{"pki_source_caauditsigningcert_profile", "pki_target_caauditsigningcert_profile"},
		{"pki_source_cacert_profile", "pki_target_cacert_profile"},
		{"pki_source_caocspcert_profile", "pki_target_caocspcert_profile"},
		{"pki_source_servercert_profile", "pki_target_servercert_profile"},
		{"pki_source_subsystemcert_profile", "pki_target_subsystemcert_profile"},
	}
	tpsKeys = []string{
		"pki_source_phone_home_xml",
		"pki_target_phone_home_xml",
		"pki_authdb_basedn",
		"pki_authdb_hostname",
		"pki_authdb_port",
		"pki_authdb_secure_conn",
	}
	destroyKeys = []string{
		"pki_subsystem_path",
		"pki_subsystem_signed_audit_log_path",
		"pki_subsystem_archive_log_path",
		"pki_subsystem_log_path",
		"pki_subsystem_configuration_path",
		"pki_subsystem_registry_path",
	}
)

// Scriptlet lays out a subsystem.
type Scriptlet struct{}

var _ deployment.Scriptlet = Scriptlet{}

func spawnKeys(subsystemType string) []string {
	keys := append([]string(nil), commonKeys...)
	switch subsystemType {
	case deployment.CA:
		keys = append(keys, caKeys...)
		for _, f := range caFiles {
			keys = append(keys, f[0], f[1])
		}
		keys = append(keys, "pki_source_proxy_conf", "pki_target_proxy_conf")
	case deployment.TPS:
		keys = append(keys, tpsKeys...)
	}
	return keys
}

// Spawn creates the subsystem.
func (Scriptlet) Spawn(ctx context.Context, d *deployment.Deployer) error {
	logger := log.FromCtx(ctx)
	m := d.Mdict

	if d.Bool("pki_skip_installation") {
		logger.Info("Skipping subsystem creation")
		return nil
	}
	subsystemType := d.Subsystem()
	if err := d.Require(spawnKeys(subsystemType)...); err != nil {
		return err
	}
	logger.Info("Creating subsystem", "subsystem", subsystemType)

	if _, ok := m["pki_one_time_pin"]; !ok {
		pin, err := randomPin()
		if err != nil {
			return err
		}
		m["pki_one_time_pin"] = pin
	}

	if err := createFiles(d); err != nil {
		return err
	}

	inst := d.Instance
	if err := inst.Load(); err != nil {
		return err
	}
	sub, ok := inst.Subsystem(strings.ToLower(subsystemType))
	if !ok {
		return serrors.New("subsystem not found after layout", "subsystem", subsystemType,
			"instance", inst.Name())
	}
	if err := configure(d, sub); err != nil {
		return err
	}
	return sub.Save()
}

func createFiles(d *deployment.Deployer) error {
	m := d.Mdict
	inst := d.Instance

	for _, dir := range []string{
		m["pki_subsystem_log_path"],
		m["pki_subsystem_archive_log_path"],
		m["pki_subsystem_signed_audit_log_path"],
		m["pki_subsystem_configuration_path"],
	} {
		if err := inst.MakeDirs(dir, true); err != nil {
			return err
		}
	}

	err := inst.CopyFile(m["pki_source_cs_cfg"], m["pki_target_cs_cfg"], d.Slots, m)
	if err != nil {
		return err
	}
	if err := inst.Copy(m["pki_source_registry_cfg"], m["pki_target_registry_cfg"]); err != nil {
		return err
	}

	switch d.Subsystem() {
	case deployment.CA:
		if err := inst.Copy(m["pki_source_emails"], m["pki_subsystem_emails_path"]); err != nil {
			return err
		}
		err := inst.Symlink(filepath.Join(inst.ConfDir(), "ca", "emails"),
			filepath.Join(inst.BaseDir(), "ca", "emails"))
		if err != nil {
			return err
		}
		err = inst.Copy(m["pki_source_profiles"], m["pki_subsystem_profiles_path"])
		if err != nil {
			return err
		}
		err = inst.Symlink(filepath.Join(inst.ConfDir(), "ca", "profiles"),
			filepath.Join(inst.BaseDir(), "ca", "profiles"))
		if err != nil {
			return err
		}
		for _, f := range caFiles {
			if err := inst.Copy(m[f[0]], m[f[1]]); err != nil {
				return err
			}
		}
		err = inst.CopyFile(m["pki_source_proxy_conf"], m["pki_target_proxy_conf"], d.Slots, m)
		if err != nil {
			return err
		}
	case deployment.TPS:
		err := inst.Copy(m["pki_source_registry_cfg"], m["pki_target_registry_cfg"])
		if err != nil {
			return err
		}
		err = inst.CopyFile(m["pki_source_phone_home_xml"], m["pki_target_phone_home_xml"],
			d.Slots, m)
		if err != nil {
			return err
		}
	}

	for _, link := range [][2]string{
		{m["pki_subsystem_configuration_path"], m["pki_subsystem_conf_link"]},
		{m["pki_subsystem_log_path"], m["pki_subsystem_logs_link"]},
		{m["pki_instance_registry_path"], m["pki_subsystem_registry_link"]},
	} {
		if err := inst.Symlink(link[0], link[1]); err != nil {
			return err
		}
	}
	return nil
}

// configure writes the provisioning settings. The steps are evaluated in
// order and every key is written by at most one branch of a step.
func configure(d *deployment.Deployer, sub *subsystem.Subsystem) error {
	m := d.Mdict
	cfg := sub.Config()

	cfg.Set("preop.subsystem.name", m["pki_subsystem_name"])

	certs, err := sub.FindSystemCerts()
	if err != nil {
		return err
	}
	for _, cert := range certs {
		deployTag := cert.Tag
		if cert.Tag == "signing" {
			deployTag = sub.Name() + "_signing"
		}
		param := "pki_" + deployTag + "_key_type"
		raw, ok := m[param]
		if !ok {
			return serrors.JoinNoStack(deployment.ErrMissingParameter, nil, "keys", param)
		}
		keyType, err := normalizeKeyType(raw)
		if err != nil {
			return serrors.Wrap("configuring system certificate", err, "tag", cert.Tag)
		}
		cfg.Set("preop.cert."+cert.Tag+".keytype", keyType)
	}

	isCA := sub.Type() == deployment.CA

	if isCA && d.Clone || !isCA {
		cfg.Set("preop.cert.sslserver.type", "remote")
		setProfile(cfg, "preop.cert.sslserver", "caInternalAuthServerCert",
			"caECInternalAuthServerCert")
	}

	if m["pki_security_domain_type"] == "new" {
		cfg.Set("preop.cert.subsystem.type", "local")
		cfg.Set("preop.cert.subsystem.profile", "subsystemCert.profile")
	} else {
		cfg.Set("preop.cert.subsystem.type", "remote")
		setProfile(cfg, "preop.cert.subsystem", "caInternalAuthSubsystemCert",
			"caECInternalAuthSubsystemCert")
	}

	switch {
	case d.External || d.Standalone:
		cfg.Set("preop.ca.type", "otherca")
	case !isCA || d.Subordinate:
		cfg.Set("preop.ca.type", "sdca")
	}

	if d.Bool("pki_clone") {
		cfg.Set("subsystem.select", "Clone")
	} else {
		cfg.Set("subsystem.select", "New")
	}

	switch sub.Type() {
	case deployment.CA:
		if d.External || d.Subordinate {
			cfg.Set("hierarchy.select", "Subordinate")
		} else {
			cfg.Set("hierarchy.select", "Root")
		}
		if d.Subordinate {
			cfg.Set("preop.cert.signing.type", "remote")
			cfg.Set("preop.cert.signing.profile", "caInstallCACert")
		}
	case deployment.OCSP:
		if d.Clone {
			cfg.Set("ocsp.store.defStore.refreshInSec", "14400")
		}
	case deployment.TPS:
		cfg.Set("auths.instance.ldap1.ldap.basedn", m["pki_authdb_basedn"])
		cfg.Set("auths.instance.ldap1.ldap.ldapconn.host", m["pki_authdb_hostname"])
		cfg.Set("auths.instance.ldap1.ldap.ldapconn.port", m["pki_authdb_port"])
		cfg.Set("auths.instance.ldap1.ldap.ldapconn.secureConn", m["pki_authdb_secure_conn"])
	}
	return nil
}

// setProfile picks the profile matching the key type recorded under
// <prefix>.keytype. Without a known key type no profile is set.
func setProfile(cfg *csconfig.Config, prefix, rsaProfile, ecProfile string) {
	switch cfg.GetDefault(prefix+".keytype", "") {
	case "RSA":
		cfg.Set(prefix+".profile", rsaProfile)
	case "EC":
		cfg.Set(prefix+".profile", ecProfile)
	}
}

func normalizeKeyType(s string) (string, error) {
	keyType := strings.ToUpper(s)
	if keyType == "ECC" {
		keyType = "EC"
	}
	if keyType != "RSA" && keyType != "EC" {
		return "", serrors.JoinNoStack(subsystem.ErrUnsupportedKeyType, nil, "key_type", keyType)
	}
	return keyType, nil
}

func randomPin() (string, error) {
	size := big.NewInt(int64(len(pinAlphabet)))
	pin := make([]byte, pinLength)
	for i := range pin {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", serrors.Wrap("generating one time pin", err)
		}
		pin[i] = pinAlphabet[n.Int64()]
	}
	return string(pin), nil
}

// Destroy removes the subsystem.
func (Scriptlet) Destroy(ctx context.Context, d *deployment.Deployer) error {
	logger := log.FromCtx(ctx)
	m := d.Mdict
	subsystemType := d.Subsystem()

	keys := append([]string(nil), destroyKeys...)
	if subsystemType == deployment.CA {
		keys = append(keys, "pki_subsystem_emails_path", "pki_subsystem_profiles_path")
	}
	if err := d.Require(keys...); err != nil {
		return err
	}
	logger.Info("Removing subsystem", "subsystem", subsystemType)

	var paths []string
	if subsystemType == deployment.CA {
		paths = append(paths, m["pki_subsystem_emails_path"], m["pki_subsystem_profiles_path"])
	}
	paths = append(paths, m["pki_subsystem_path"])
	if d.RemoveLogs {
		paths = append(paths,
			m["pki_subsystem_signed_audit_log_path"],
			m["pki_subsystem_archive_log_path"],
			m["pki_subsystem_log_path"],
		)
	}
	paths = append(paths, m["pki_subsystem_configuration_path"], m["pki_subsystem_registry_path"])

	for _, path := range paths {
		logger.Info("Removing path", "path", path)
		if err := deployment.RemoveTree(path, d.Force); err != nil {
			return err
		}
	}
	return nil
}
