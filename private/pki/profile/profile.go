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

// Package profile parses certificate profiles and applies them to
// certificate templates.
//
// A profile is a flat key=value file. The recognized keys are:
//
//	profileId            profile identifier
//	name, desc           display name and description
//	enable               whether the profile is enabled
//	validity.range       validity period length (default 720)
//	validity.rangeUnit   day, month or year (default day)
//	basicConstraints.isCA
//	keyUsage             comma separated key usages
//	extKeyUsage          comma separated extended key usages
//
// Bootstrap profiles that express the validity as a policy default, i.e.
// policyset.<set>.<n>.default.params.range, are understood as well.
package profile

import (
	"crypto/x509"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/csconfig"
)

// DefaultValidityDays is the validity of profiles that do not define one.
const DefaultValidityDays = 720

var keyUsages = map[string]x509.KeyUsage{
	"digitalSignature": x509.KeyUsageDigitalSignature,
	"nonRepudiation":   x509.KeyUsageContentCommitment,
	"keyEncipherment":  x509.KeyUsageKeyEncipherment,
	"dataEncipherment": x509.KeyUsageDataEncipherment,
	"keyAgreement":     x509.KeyUsageKeyAgreement,
	"keyCertSign":      x509.KeyUsageCertSign,
	"cRLSign":          x509.KeyUsageCRLSign,
}

var extKeyUsages = map[string]x509.ExtKeyUsage{
	"serverAuth":      x509.ExtKeyUsageServerAuth,
	"clientAuth":      x509.ExtKeyUsageClientAuth,
	"codeSigning":     x509.ExtKeyUsageCodeSigning,
	"emailProtection": x509.ExtKeyUsageEmailProtection,
	"OCSPSigning":     x509.ExtKeyUsageOCSPSigning,
	"timeStamping":    x509.ExtKeyUsageTimeStamping,
}

// Unit is the unit of the validity range.
type Unit string

const (
	Day   Unit = "day"
	Month Unit = "month"
	Year  Unit = "year"
)

// Profile is a parsed certificate profile.
type Profile struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
	Range       int
	Unit        Unit
	IsCA        bool
	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage

	config *csconfig.Config
}

// Load reads the profile from file. Without a profileId entry, the file name
// without extension is used as ID.
func Load(file string) (*Profile, error) {
	cfg, err := csconfig.Load(file)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	p, err := Parse(cfg, id)
	if err != nil {
		return nil, serrors.Wrap("parsing profile", err, "file", file)
	}
	return p, nil
}

// Parse interprets cfg as profile. defaultID is used if cfg has no profileId.
func Parse(cfg *csconfig.Config, defaultID string) (*Profile, error) {
	p := &Profile{
		ID:          cfg.GetDefault("profileId", defaultID),
		Name:        cfg.GetDefault("name", ""),
		Description: cfg.GetDefault("desc", ""),
		Enabled:     cfg.Bool("enable", false),
		Range:       DefaultValidityDays,
		Unit:        Day,
		IsCA:        cfg.Bool("basicConstraints.isCA", false),
		config:      cfg,
	}
	if p.ID == "" {
		return nil, serrors.New("profile ID missing")
	}
	if raw, ok := validityRange(cfg); ok {
		r, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || r <= 0 {
			return nil, serrors.New("invalid validity range", "range", raw)
		}
		p.Range = r
	}
	if raw, ok := cfg.Get("validity.rangeUnit"); ok {
		switch u := Unit(strings.ToLower(strings.TrimSpace(raw))); u {
		case Day, Month, Year:
			p.Unit = u
		default:
			return nil, serrors.New("invalid validity range unit", "unit", raw)
		}
	}
	for _, name := range cfg.List("keyUsage") {
		ku, ok := keyUsages[name]
		if !ok {
			return nil, serrors.New("unknown key usage", "usage", name)
		}
		p.KeyUsage |= ku
	}
	for _, name := range cfg.List("extKeyUsage") {
		eku, ok := extKeyUsages[name]
		if !ok {
			return nil, serrors.New("unknown extended key usage", "usage", name)
		}
		p.ExtKeyUsage = append(p.ExtKeyUsage, eku)
	}
	return p, nil
}

func validityRange(cfg *csconfig.Config) (string, bool) {
	if v, ok := cfg.Get("validity.range"); ok {
		return v, true
	}
	var candidates []string
	for _, k := range cfg.Keys() {
		if strings.HasPrefix(k, "policyset.") && strings.HasSuffix(k, ".default.params.range") {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	v, _ := cfg.Get(candidates[0])
	return v, true
}

// Config returns the underlying configuration mapping.
func (p *Profile) Config() *csconfig.Config {
	return p.config
}

// NotAfter computes the end of the validity period starting at notBefore.
func (p *Profile) NotAfter(notBefore time.Time) time.Time {
	switch p.Unit {
	case Year:
		return notBefore.AddDate(p.Range, 0, 0)
	case Month:
		return notBefore.AddDate(0, p.Range, 0)
	default:
		return notBefore.AddDate(0, 0, p.Range)
	}
}

// Apply sets the validity, basic constraints and key usages of tmpl.
func (p *Profile) Apply(tmpl *x509.Certificate, notBefore time.Time) {
	tmpl.NotBefore = notBefore
	tmpl.NotAfter = p.NotAfter(notBefore)
	tmpl.BasicConstraintsValid = true
	tmpl.IsCA = p.IsCA
	tmpl.KeyUsage = p.KeyUsage
	if p.IsCA && p.KeyUsage == 0 {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign |
			x509.KeyUsageDigitalSignature
	}
	tmpl.ExtKeyUsage = append([]x509.ExtKeyUsage(nil), p.ExtKeyUsage...)
}
