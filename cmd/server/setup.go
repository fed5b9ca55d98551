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

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
	"github.com/jaycherian/prompt-to-video-live/internal/core/playback"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
	"github.com/jaycherian/prompt-to-video-live/internal/core/workflow"
)

// StateManager holds the shared components of the server.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	assets   *workflow.AssetWorkflow
	sessions *services.SessionService
}

var state = &StateManager{}

// SetupOS defaults the configuration directory and runtime when the
// environment does not name them.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, cloud.DefaultRuntime)
	}
	return err
}

// GetConfig loads the configuration once.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// InitState builds the clients, the asset workflow and the session service.
func InitState(ctx context.Context) error {
	s, err := NewStateManager(ctx, GetConfig())
	if err != nil {
		return err
	}
	state = s
	return nil
}

// NewStateManager wires every component described by config.
//
// Inputs:
//   - ctx: Used to open the cloud clients.
//   - config: The application configuration.
//
// Outputs:
//   - *StateManager: The wired components; call Close on shutdown.
//   - error: A client construction error.
func NewStateManager(ctx context.Context, config *cloud.Config) (*StateManager, error) {
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create service clients: %w", err)
	}
	assets := workflow.NewAssetWorkflow(clients)
	return &StateManager{
		config:   config,
		cloud:    clients,
		assets:   assets,
		sessions: services.NewSessionService(assets, sessionOptions(config)),
	}, nil
}

func sessionOptions(config *cloud.Config) services.SessionOptions {
	return services.SessionOptions{
		TTL: config.SessionTTL(),
		Playback: playback.Options{
			PollInterval: config.Playback.PollInterval(),
			MaxImageWait: config.Playback.MaxImageWait(),
			MaxAudioWait: config.Playback.MaxAudioWait(),
		},
		WordsPerSecond: config.Playback.WordsPerSecond,
		NarrationSlack: config.Playback.NarrationSlack(),
	}
}

// Close stops every session and releases the clients.
func (s *StateManager) Close() {
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
}
