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

// Package commands provides the concrete commands of the asset workflows.
// This file defines the command that asks the speech backend to narrate a
// scene.
//
// Logic Flow:
//  1. A *SpeechInput (narration text and voice id) is read from the input key.
//  2. The configured SpeechSynthesizer voices it.
//  3. On success the audio asset is written to the output key. When the
//     backend signals services.ErrSpeechFallback the command still succeeds,
//     emitting an asset that points at model.LocalSpeechRef so the scene is
//     narrated on-device. Any other failure is recorded against the command.
package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// SpeechInput is the input of SpeechRequest.
type SpeechInput struct {
	Text    string
	VoiceID string
}

// SpeechRequest turns narration text into an audio asset.
type SpeechRequest struct {
	cor.BaseCommand
	synthesizer services.SpeechSynthesizer
}

// NewSpeechRequest is the constructor for the SpeechRequest command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - synthesizer: The speech backend.
//
// Outputs:
//   - *SpeechRequest: A pointer to the newly instantiated command.
func NewSpeechRequest(name string, synthesizer services.SpeechSynthesizer) *SpeechRequest {
	return &SpeechRequest{BaseCommand: *cor.NewBaseCommand(name), synthesizer: synthesizer}
}

func (c *SpeechRequest) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	_, ok := context.Get(c.GetInputParam()).(*SpeechInput)
	return ok
}

func (c *SpeechRequest) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(*SpeechInput)
	asset, err := c.synthesizer.SynthesizeSpeech(context.GetContext(), in.Text, in.VoiceID)
	switch {
	case errors.Is(err, services.ErrSpeechFallback):
		slog.InfoContext(context.GetContext(), "speech backend requested on-device narration", "voice", in.VoiceID, "reason", err)
		c.Succeed(context, &model.Asset{Kind: model.AssetAudio, URL: model.LocalSpeechRef}, attribute.Bool("fallback", true))
	case err != nil:
		c.Fail(context, fmt.Errorf("speech synthesis failed: %w", err))
	default:
		if asset.Kind == "" {
			asset.Kind = model.AssetAudio
		}
		c.Succeed(context, asset, attribute.Bool("fallback", false))
	}
}
