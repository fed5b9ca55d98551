// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides the configuration loader and the hosted service clients.
// This file contains the hierarchical configuration loader.
//
// Functions:
//   - fileExists: A simple helper to check if a file exists.
//   - LoadConfig: Reads a base configuration file, then overwrites values with
//     an environment-specific file (e.g. .env.local.toml, .env.test.toml), then
//     applies the secrets and the port from the process environment after
//     loading an optional .env file.
package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Cloud Constants define the file names and environment variables the loader uses.
const (
	ConfigFileBaseName  = ".env"                  // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"                 // The file extension for configuration files.
	ConfigSeparator     = "."                     // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "PTV_CONFIG_PREFIX"     // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "PTV_RUNTIME"           // The runtime context (e.g., "local", "test", "prod").
	EnvAccountID        = "CLOUDFLARE_ACCOUNT_ID" // Workers AI account.
	EnvAPIToken         = "CLOUDFLARE_API_TOKEN"  // Workers AI bearer token.
	EnvPort             = "PORT"                  // Overrides the port of application.listen_address.
	DefaultRuntime      = "local"
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig populates config from the TOML files and the environment.
//
// Inputs:
//   - config: The target configuration, usually from NewConfig so that
//     defaults survive keys the files leave out.
//
// Outputs:
//   - error: A decoding error from either TOML file, or a malformed listen address.
func LoadConfig(config *Config) error {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Info("loading configuration", "base", baseConfigFileName, "override", envConfigFileName)

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			continue
		}
		if _, err := toml.DecodeFile(name, config); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
	}

	config.WorkersAI.AccountID = os.Getenv(EnvAccountID)
	config.WorkersAI.APIToken = os.Getenv(EnvAPIToken)
	if port := os.Getenv(EnvPort); port != "" {
		host, _, err := net.SplitHostPort(config.Application.ListenAddress)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", config.Application.ListenAddress, err)
		}
		config.Application.ListenAddress = net.JoinHostPort(host, port)
	}
	return nil
}
