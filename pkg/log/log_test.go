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

package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/log/testlog"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]struct {
		input     string
		expected  log.Level
		assertErr assert.ErrorAssertionFunc
	}{
		"debug":      {input: "debug", expected: log.DebugLevel, assertErr: assert.NoError},
		"info upper": {input: "INFO", expected: log.InfoLevel, assertErr: assert.NoError},
		"error":      {input: "error", expected: log.ErrorLevel, assertErr: assert.NoError},
		"garbage":    {input: "loud", expected: log.ErrorLevel, assertErr: assert.Error},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			lvl, err := log.ParseLevel(tc.input)
			tc.assertErr(t, err)
			assert.Equal(t, tc.expected, lvl)
		})
	}
}

func TestSetup(t *testing.T) {
	require.Error(t, log.Setup(log.Config{Console: log.ConsoleConfig{Format: "xml"}}))
	require.NoError(t, log.Setup(log.Config{Console: log.ConsoleConfig{Level: "info"}}))
	assert.True(t, log.Root().Enabled(log.InfoLevel))
	assert.False(t, log.Root().Enabled(log.DebugLevel))

	log.SetLevel(log.DebugLevel)
	assert.True(t, log.Root().Enabled(log.DebugLevel))
	log.SetLevel(log.ErrorLevel)
}

func TestFromCtx(t *testing.T) {
	assert.Equal(t, log.Root(), log.FromCtx(context.Background()))

	l := testlog.NewLogger(t)
	ctx := log.CtxWith(context.Background(), l)
	assert.Equal(t, l, log.FromCtx(ctx))

	ctx, labeled := log.WithLabels(ctx, "instance", "pki-tomcat")
	assert.Equal(t, labeled, log.FromCtx(ctx))
	labeled.Debug("labeled logger works")
}
