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

// Package cloud defines the application configuration, loaded from TOML files,
// and the clients for the hosted services the application talks to.
//
// This file centralizes all configuration-related structs.
//
// Structs:
//   - WorkersAI: Endpoint, models and quota for the hosted image / speech backend.
//   - Playback: Wait bounds and narration pacing for the sequencer.
//   - Storage: Where generated assets are kept.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Functions:
//   - NewConfig: A constructor returning a Config populated with defaults.
package cloud

import "time"

// WorkersAI represents the configuration of the Cloudflare Workers AI backend.
// The account id and token are secrets and are only read from the environment.
type WorkersAI struct {
	BaseURL           string `toml:"base_url"`            // API root, e.g. https://api.cloudflare.com/client/v4.
	ImageModel        string `toml:"image_model"`         // Text-to-image model path.
	SpeechModelPrefix string `toml:"speech_model_prefix"` // Text-to-speech model path; the voice id is appended.
	ImageSteps        int    `toml:"image_steps"`         // Diffusion steps requested per image.
	TimeoutSeconds    int    `toml:"timeout_seconds"`     // Per-request HTTP timeout.
	RateLimit         int    `toml:"rate_limit"`          // Requests per second, per backend operation.
	Burst             int    `toml:"burst"`               // Token bucket size.
	AccountID         string `toml:"-"`
	APIToken          string `toml:"-"`
}

// HasCredentials reports whether the hosted backend can be called at all.
func (w WorkersAI) HasCredentials() bool {
	return w.AccountID != "" && w.APIToken != ""
}

// Timeout returns the HTTP timeout as a duration.
func (w WorkersAI) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Playback represents the sequencer settings.
type Playback struct {
	PollIntervalMs        int     `toml:"poll_interval_ms"`        // Re-check period while an asset is generating.
	MaxImageWaitSeconds   int     `toml:"max_image_wait_seconds"`  // Image gate bound.
	MaxAudioWaitSeconds   int     `toml:"max_audio_wait_seconds"`  // In-flight audio wait bound.
	WordsPerSecond        float64 `toml:"words_per_second"`        // Speaking rate used to estimate narration length.
	NarrationSlackSeconds int     `toml:"narration_slack_seconds"` // Added to the estimate before a narration is forced to end.
}

// Storage represents where generated assets are kept.
type Storage struct {
	Backend         string `toml:"backend"`           // "memory" or "gcs".
	Bucket          string `toml:"bucket"`            // GCS bucket for the gcs backend.
	Prefix          string `toml:"prefix"`            // Object name prefix inside the bucket.
	Endpoint        string `toml:"endpoint"`          // Optional GCS endpoint override, e.g. a local emulator.
	MaxMemoryAssets int    `toml:"max_memory_assets"` // Capacity of the memory backend.
}

// Config represents the overall configuration for the application, loaded from TOML files.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name              string `toml:"name"`                // The name of the application.
		GoogleProjectId   string `toml:"google_project_id"`   // Enables Cloud Trace / Monitoring export when set.
		ListenAddress     string `toml:"listen_address"`      // HTTP listen address; PORT overrides the port.
		LogFile           string `toml:"log_file"`            // Optional file receiving a copy of the logs.
		SessionTTLMinutes int    `toml:"session_ttl_minutes"` // Idle session expiry; zero disables it.
	} `toml:"application"`
	WorkersAI WorkersAI `toml:"workers_ai"`
	Playback  Playback  `toml:"playback"`
	Storage   Storage   `toml:"storage"`
}

// NewConfig is a constructor function that creates a new Config populated
// with defaults; the TOML files only need to override what differs.
//
// Outputs:
//   - *Config: A pointer to a new Config struct.
func NewConfig() *Config {
	c := &Config{}
	c.Application.Name = "prompt-to-video-live"
	c.Application.ListenAddress = ":8080"
	c.Application.SessionTTLMinutes = 60
	c.WorkersAI = WorkersAI{
		BaseURL:           "https://api.cloudflare.com/client/v4",
		ImageModel:        "@cf/black-forest-labs/flux-1-schnell",
		SpeechModelPrefix: "@cf/deepgram/aura-2-",
		ImageSteps:        4,
		TimeoutSeconds:    60,
		RateLimit:         2,
		Burst:             4,
	}
	c.Playback = Playback{
		PollIntervalMs:        300,
		MaxImageWaitSeconds:   60,
		MaxAudioWaitSeconds:   30,
		WordsPerSecond:        2.5,
		NarrationSlackSeconds: 5,
	}
	c.Storage = Storage{Backend: "memory", Prefix: "assets/", MaxMemoryAssets: 256}
	return c
}

// SessionTTL returns the idle session expiry.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Application.SessionTTLMinutes) * time.Minute
}

func (p Playback) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p Playback) MaxImageWait() time.Duration {
	return time.Duration(p.MaxImageWaitSeconds) * time.Second
}

func (p Playback) MaxAudioWait() time.Duration {
	return time.Duration(p.MaxAudioWaitSeconds) * time.Second
}

func (p Playback) NarrationSlack() time.Duration {
	return time.Duration(p.NarrationSlackSeconds) * time.Second
}
