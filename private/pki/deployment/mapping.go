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

package deployment

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/config"
)

// DefaultSection holds the parameters shared by all subsystems.
const DefaultSection = "DEFAULT"

const maxInterpolationDepth = 10

var (
	//go:embed defaults.toml
	rawDefaults []byte
	//go:embed slots.toml
	rawSlots []byte
)

// Sections are deployment parameters grouped by section, i.e. DEFAULT and
// the subsystem types.
type Sections map[string]map[string]string

// Defaults returns the built-in deployment parameters.
func Defaults() (Sections, error) {
	var s Sections
	if err := config.Decode(rawDefaults, &s); err != nil {
		return nil, serrors.Wrap("decoding default parameters", err)
	}
	return s, nil
}

// Slots returns the built-in template slots.
func Slots() (map[string]string, error) {
	var slots map[string]string
	if err := config.Decode(rawSlots, &slots); err != nil {
		return nil, serrors.Wrap("decoding slots", err)
	}
	return slots, nil
}

// LoadSections reads a deployment file. The format follows the file
// extension, TOML unless it is .yaml or .yml. Non-string values are
// converted to their textual form.
func LoadSections(file string) (Sections, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading deployment file", err, "file", file)
	}
	var decoded map[string]map[string]any
	if err := config.DecodeAs(config.FormatOf(file), raw, &decoded); err != nil {
		return nil, serrors.Wrap("decoding deployment file", err, "file", file)
	}
	s := make(Sections, len(decoded))
	for name, params := range decoded {
		section := make(map[string]string, len(params))
		for k, v := range params {
			if v == nil {
				section[k] = ""
				continue
			}
			section[k] = fmt.Sprint(v)
		}
		s[name] = section
	}
	return s, nil
}

// merge copies the parameters of the DEFAULT section and the section of the
// given subsystem type into dst.
func (s Sections) merge(dst map[string]string, subsystemType string) {
	for _, name := range []string{DefaultSection, subsystemType} {
		for k, v := range s[name] {
			dst[k] = v
		}
	}
}

// Interpolate expands %(name)s references in all values. A literal percent
// sign is written as %%.
func Interpolate(params map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k := range params {
		v, err := expand(params, k, 0)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func expand(params map[string]string, key string, depth int) (string, error) {
	if depth > maxInterpolationDepth {
		return "", serrors.New("interpolation too deep", "key", key)
	}
	value := params[key]
	if !strings.Contains(value, "%") {
		return value, nil
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '%' {
			b.WriteByte(value[i])
			continue
		}
		rest := value[i+1:]
		switch {
		case strings.HasPrefix(rest, "%"):
			b.WriteByte('%')
			i++
		case strings.HasPrefix(rest, "("):
			end := strings.Index(rest, ")s")
			if end < 0 {
				return "", serrors.New("malformed reference", "key", key, "value", value)
			}
			ref := rest[1:end]
			if _, ok := params[ref]; !ok {
				return "", serrors.New("reference to unknown parameter",
					"key", key, "reference", ref)
			}
			sub, err := expand(params, ref, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(sub)
			i += end + 2
		default:
			return "", serrors.New("malformed reference", "key", key, "value", value)
		}
	}
	return b.String(), nil
}
