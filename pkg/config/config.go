// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package config resolves the runtime's environment profile the same
// way the original split its settings across base/development/testing
// modules, keyed off NARWHAL_ENV.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Profile names mirror the original config package's env values.
const (
	Testing     = "testing"
	Development = "development"
	Production  = "production"
)

var knownModes = []string{"interactive", "file", "endpoint", "daemon"}
var knownLanguages = []string{"shell", "python"}

// Config is the resolved runtime configuration for one profile.
type Config struct {
	Env      string
	ServerURI             string
	FileRootDir           string
	EndpointConfigRootDir string
	SocketSinkURL         string
	HealthcheckInterval   time.Duration
	Modes                 []string
	Languages             []string
}

func defaults(v *viper.Viper) {
	v.SetDefault("file_root_dir", "/tmp/code-files")
	v.SetDefault("endpoint_config_root_dir", "/tmp/code-endpoints")
	v.SetDefault("healthcheck_interval", "30s")
	v.SetDefault("modes", knownModes)
	v.SetDefault("languages", knownLanguages)
}

// Load resolves Config for the named profile (Testing, Development or
// Production), reading overrides from NARWHAL_-prefixed environment
// variables and, if present, a narwhal.yaml/json/toml file on the
// viper search path.
func Load(env string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("narwhal")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/narwhal")
	v.SetEnvPrefix("narwhal")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	switch env {
	case Testing:
		v.SetDefault("server_uri", "http://localhost:8763")
		v.SetDefault("socket_sink_url", "")
	case Development:
		v.SetDefault("server_uri", os.Getenv("NARWHAL_SERVER_URI"))
		v.SetDefault("socket_sink_url", os.Getenv("NARWHAL_SOCKET_SINK_URL"))
	case Production:
		v.SetDefault("server_uri", os.Getenv("NARWHAL_SERVER_URI"))
		v.SetDefault("socket_sink_url", os.Getenv("NARWHAL_SOCKET_SINK_URL"))
	default:
		return Config{}, fmt.Errorf("config: unknown environment %q, want one of %s/%s/%s", env, Testing, Development, Production)
	}

	cfg := Config{
		Env:                   env,
		ServerURI:             v.GetString("server_uri"),
		FileRootDir:           v.GetString("file_root_dir"),
		EndpointConfigRootDir: v.GetString("endpoint_config_root_dir"),
		SocketSinkURL:         v.GetString("socket_sink_url"),
		HealthcheckInterval:   v.GetDuration("healthcheck_interval"),
		Modes:                 v.GetStringSlice("modes"),
		Languages:             v.GetStringSlice("languages"),
	}

	if env != Testing && cfg.ServerURI == "" {
		return Config{}, fmt.Errorf("config: %s requires NARWHAL_SERVER_URI to be set", env)
	}

	return cfg, nil
}

// FromEnvironment reads NARWHAL_ENV (defaulting to Development) and
// loads the matching profile, mirroring get_current_config's env-variable
// driven selection.
func FromEnvironment() (Config, error) {
	env := os.Getenv("NARWHAL_ENV")
	if env == "" {
		env = Development
	}
	return Load(env)
}
