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

// Package test provides helpers shared by the test suites: loading the test
// configuration once, and in-process fakes of the asset backends and of the
// narrator so playback can be exercised without a network or a browser.
package test

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
)

// StateManager caches the configuration for the test run.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// repoRoot walks up from the working directory to the directory holding go.mod.
func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the repository's configs
// directory and the "test" runtime, and clears the backend credentials so no
// test reaches the hosted backend by accident.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(repoRoot(), "configs")); err != nil {
		return err
	}
	if err = os.Setenv(cloud.EnvConfigRuntime, "test"); err != nil {
		return err
	}
	if err = os.Unsetenv(cloud.EnvAccountID); err != nil {
		return err
	}
	return os.Unsetenv(cloud.EnvAPIToken)
}

// GetConfig returns the test configuration, loading it on first use.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		// LoadConfig may have read a developer .env; tests never use real credentials.
		config.WorkersAI.AccountID = ""
		config.WorkersAI.APIToken = ""
		state.config = config
	})
	return state.config
}
