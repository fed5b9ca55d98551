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

// Package cloud provides the hosted service clients. This file builds the
// full set of clients from configuration.
//
// Logic Flow:
//  1. With Workers AI credentials, images and speech go to the hosted models,
//     each behind its own rate limiter. Without them, images are procedural
//     placeholders and speech always falls back to on-device synthesis.
//  2. The "gcs" storage backend opens a Cloud Storage client (optionally
//     against a custom endpoint such as an emulator). Any other value keeps
//     assets in memory.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// StorageBackendGCS selects the Cloud Storage asset store.
const StorageBackendGCS = "gcs"

// ServiceClients holds every outbound client of the application.
type ServiceClients struct {
	StorageClient *storage.Client            // Nil unless the gcs backend is configured.
	WorkersAI     *WorkersAIClient           // Nil without credentials.
	Images        services.ImageGenerator    // Rate-limited hosted model, or placeholders.
	Speech        services.SpeechSynthesizer // Rate-limited hosted voices, or always-fallback.
	Assets        services.AssetStore        // Where generated bytes are kept.
}

// NewCloudServiceClients creates the clients described by config.
//
// Inputs:
//   - ctx: Used to open the storage client.
//   - config: The application configuration.
//
// Outputs:
//   - *ServiceClients: The clients; call Close when done.
//   - error: A storage client or configuration error.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clients := &ServiceClients{}

	if config.WorkersAI.HasCredentials() {
		clients.WorkersAI = NewWorkersAIClient(config.WorkersAI)
		clients.Images = NewQuotaAwareImageGenerator(clients.WorkersAI, config.WorkersAI.RateLimit, config.WorkersAI.Burst)
		clients.Speech = NewQuotaAwareSpeechSynthesizer(clients.WorkersAI, config.WorkersAI.RateLimit, config.WorkersAI.Burst)
	} else {
		slog.Warn("workers ai credentials not set; using placeholder images and on-device speech")
		clients.Images = PlaceholderImages{}
		clients.Speech = DisabledSpeech{}
	}

	if config.Storage.Backend == StorageBackendGCS {
		if config.Storage.Bucket == "" {
			return nil, errors.New("storage.bucket is required for the gcs backend")
		}
		var opts []option.ClientOption
		if config.Storage.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(config.Storage.Endpoint), option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		clients.StorageClient = client
		clients.Assets = NewGCSAssetStore(client, config.Storage.Bucket, config.Storage.Prefix)
	} else {
		clients.Assets = services.NewMemoryAssetStore(config.Storage.MaxMemoryAssets)
	}
	return clients, nil
}

// Close releases the clients that hold connections.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		if err := c.StorageClient.Close(); err != nil {
			slog.Error("failed to close storage client", "error", err)
		}
	}
}
