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

// Package services contains the session-level business logic of the service.
// This file, `providers.go`, declares the contracts of the external asset
// backends and of the asset store so the workflows and the HTTP layer can be
// wired to either the hosted implementations in the cloud package or to
// in-process fakes.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

var (
	// ErrSpeechFallback is the explicit signal that the caller should narrate
	// with on-device speech synthesis instead of generated audio.
	ErrSpeechFallback = errors.New("speech synthesis unavailable; use on-device speech")
	// ErrAssetNotFound is returned by an AssetStore for an unknown id.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetStoreFull is returned by a bounded AssetStore that cannot take
	// another asset until scenes release theirs.
	ErrAssetStoreFull = errors.New("asset store full")
)

// AssetRoutePrefix is the path generated assets are served under.
const AssetRoutePrefix = "/api/v1/assets/"

// ImageGenerator turns a prompt into an illustration.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*model.Asset, error)
}

// SpeechSynthesizer turns narration text into audio spoken by voiceID.
// It returns ErrSpeechFallback (possibly wrapped) when the caller should use
// on-device speech instead.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, voiceID string) (*model.Asset, error)
}

// AssetStore keeps generated bytes for the lifetime of the process (or
// longer, for durable backends) and addresses them by id.
type AssetStore interface {
	// Put stores asset, assigning an id when it has none, and returns the
	// reference scenes should carry.
	Put(ctx context.Context, asset *model.Asset) (string, error)
	// Get returns the asset stored under id, or ErrAssetNotFound.
	Get(ctx context.Context, id string) (*model.Asset, error)
	// Delete removes the asset stored under id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// AssetReleaser is implemented by asset generators whose references occupy
// an AssetStore. Sessions hand it every reference their scenes let go of.
type AssetReleaser interface {
	ReleaseAssets(ctx context.Context, refs ...string)
}

// AssetRef is the reference under which the HTTP layer serves asset id.
func AssetRef(id string) string {
	return AssetRoutePrefix + id
}

// AssetID returns the id inside a reference built by AssetRef. It reports
// false for anything else, such as model.LocalSpeechRef.
func AssetID(ref string) (string, bool) {
	id, ok := strings.CutPrefix(ref, AssetRoutePrefix)
	return id, ok && id != ""
}
