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

package flag_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkitools/pki-server/private/app/flag"
)

func TestPKIEnvironment(t *testing.T) {
	testCases := map[string]struct {
		args     []string
		env      map[string]string
		instance string
		root     string
		level    string
		format   string
	}{
		"defaults only": {
			instance: "pki-tomcat",
			root:     "/",
			level:    "error",
			format:   "human",
		},
		"env only": {
			env: map[string]string{
				"PKI_INSTANCE":   "pki-env",
				"PKI_ROOT":       "/srv/pki",
				"PKI_LOG_FORMAT": "json",
			},
			instance: "pki-env",
			root:     "/srv/pki",
			level:    "error",
			format:   "json",
		},
		"flag overrides env": {
			args:     []string{"-i", "pki-flag", "-v"},
			env:      map[string]string{"PKI_INSTANCE": "pki-env"},
			instance: "pki-flag",
			root:     "/",
			level:    "info",
			format:   "human",
		},
		"debug wins over verbose": {
			args:     []string{"--instance", "pki-flag", "--verbose", "--debug"},
			instance: "pki-flag",
			root:     "/",
			level:    "debug",
			format:   "human",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"PKI_INSTANCE", "PKI_ROOT", "PKI_LOG_FORMAT"} {
				t.Setenv(k, tc.env[k])
			}
			var env flag.PKIEnvironment
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			env.Register(fs)
			require.NoError(t, fs.Parse(tc.args))
			require.NoError(t, env.LoadExternalVars())

			assert.Equal(t, tc.instance, env.Instance())
			assert.Equal(t, tc.root, env.Root())
			cfg := env.LogConfig()
			assert.Equal(t, tc.level, cfg.Console.Level)
			assert.Equal(t, tc.format, cfg.Console.Format)
		})
	}
}
