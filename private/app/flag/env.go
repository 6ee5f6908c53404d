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

// Package flag contains the flags shared by the pki-server commands.
package flag

import (
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pkitools/pki-server/pkg/log"
	"github.com/pkitools/pki-server/pkg/private/serrors"
	"github.com/pkitools/pki-server/private/pki/instance"
)

const (
	envPrefix = "PKI"

	keyInstance  = "instance"
	keyRoot      = "root"
	keyLogFormat = "log_format"
)

// PKIEnvironment gives access to the values every command needs: the
// instance to operate on, the root prefix and the logging settings.
//
// Values are taken from the command line flags first, then from the
// environment variables PKI_INSTANCE, PKI_ROOT and PKI_LOG_FORMAT, and
// finally from the defaults.
type PKIEnvironment struct {
	instanceFlag *pflag.Flag
	instance     string
	verbose      bool
	debug        bool

	v *viper.Viper

	mtx sync.Mutex
}

// Register registers the command line flags. This should be called when
// command line flags are set up, before any command that accesses the values
// is called.
func (e *PKIEnvironment) Register(flagSet *pflag.FlagSet) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	flagSet.StringVarP(&e.instance, "instance", "i", instance.DefaultName,
		"Instance ID (overrides $PKI_INSTANCE)")
	e.instanceFlag = flagSet.Lookup("instance")
	flagSet.BoolVarP(&e.verbose, "verbose", "v", false, "Run in verbose mode")
	flagSet.BoolVar(&e.debug, "debug", false, "Run in debug mode")
}

// LoadExternalVars loads the environment variables. Missing variables are
// not an error.
func (e *PKIEnvironment) LoadExternalVars() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{keyInstance, keyRoot, keyLogFormat} {
		if err := v.BindEnv(key); err != nil {
			return serrors.Wrap("binding environment variable", err, "key", key)
		}
	}
	v.SetDefault(keyInstance, instance.DefaultName)
	v.SetDefault(keyRoot, "/")
	v.SetDefault(keyLogFormat, log.DefaultConsoleFormat)
	if e.instanceFlag != nil {
		if err := v.BindPFlag(keyInstance, e.instanceFlag); err != nil {
			return serrors.Wrap("binding instance flag", err)
		}
	}
	e.v = v
	return nil
}

// Instance returns the instance name.
func (e *PKIEnvironment) Instance() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.v == nil {
		return e.instance
	}
	return e.v.GetString(keyInstance)
}

// Root returns the root prefix below which instances live.
func (e *PKIEnvironment) Root() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.v == nil {
		return "/"
	}
	return e.v.GetString(keyRoot)
}

// LogConfig returns the console logging configuration: errors only by
// default, info with --verbose and debug with --debug.
func (e *PKIEnvironment) LogConfig() log.Config {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	cfg := log.Config{Console: log.ConsoleConfig{
		Level:         log.DefaultConsoleLevel,
		DisableCaller: true,
	}}
	switch {
	case e.debug:
		cfg.Console.Level = "debug"
	case e.verbose:
		cfg.Console.Level = "info"
	}
	if e.v != nil {
		cfg.Console.Format = e.v.GetString(keyLogFormat)
	}
	return cfg
}

// Setup loads the external variables and configures logging.
func (e *PKIEnvironment) Setup() error {
	if err := e.LoadExternalVars(); err != nil {
		return serrors.Wrap("loading environment variables", err)
	}
	if err := log.Setup(e.LogConfig()); err != nil {
		return serrors.Wrap("setting up logging", err)
	}
	return nil
}
