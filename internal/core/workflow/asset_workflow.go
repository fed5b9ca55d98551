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

// Package workflow combines commands into the pipelines the application runs.
// This file implements the asset workflow, which produces the illustration
// and the narration of a scene and is the asset generator every session's
// sequencer uses.
//
// Chains:
//   - scene-image: ImageRequest (prompt -> asset) -> AssetPersist (asset -> ref)
//   - scene-speech: SpeechRequest (text + voice -> asset) -> AssetPersist (asset -> ref)
//   - scene-release: AssetRelease (refs -> deleted count)
//
// Each run gets a fresh cor.Context, so one workflow instance serves any
// number of concurrent requests.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
	"github.com/jaycherian/prompt-to-video-live/internal/core/commands"
	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
)

// AssetWorkflow generates and persists scene assets.
type AssetWorkflow struct {
	cor.BaseCommand
	imageChain   cor.Chain
	speechChain  cor.Chain
	releaseChain cor.Chain
}

// NewAssetWorkflow builds both chains on the given clients.
//
// Inputs:
//   - serviceClients: Supplies the image generator, the speech synthesizer
//     and the asset store.
//
// Outputs:
//   - *AssetWorkflow: The workflow, ready for concurrent use.
func NewAssetWorkflow(serviceClients *cloud.ServiceClients) *AssetWorkflow {
	out := &AssetWorkflow{BaseCommand: *cor.NewBaseCommand("scene-asset-workflow")}

	out.imageChain = cor.NewBaseChain("scene-image").
		AddCommand(commands.NewImageRequest("image-request", serviceClients.Images)).
		AddCommand(commands.NewAssetPersist("image-persist", serviceClients.Assets))

	out.speechChain = cor.NewBaseChain("scene-speech").
		AddCommand(commands.NewSpeechRequest("speech-request", serviceClients.Speech)).
		AddCommand(commands.NewAssetPersist("speech-persist", serviceClients.Assets))

	out.releaseChain = cor.NewBaseChain("scene-release").
		AddCommand(commands.NewAssetRelease("asset-release", serviceClients.Assets))
	return out
}

// Execute runs the chain matching the input: a string prompt runs the image
// chain, a *commands.SpeechInput runs the speech chain and a []string of
// references runs the release chain.
func (w *AssetWorkflow) Execute(context cor.Context) {
	switch context.Get(cor.CtxIn).(type) {
	case string:
		w.imageChain.Execute(context)
	case *commands.SpeechInput:
		w.speechChain.Execute(context)
	case []string:
		w.releaseChain.Execute(context)
	default:
		context.AddError(w.GetName(), errors.New("unsupported asset workflow input"))
	}
}

// GenerateImage renders prompt and returns the stored image's reference.
func (w *AssetWorkflow) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return w.run(ctx, "image", prompt)
}

// GenerateAudio narrates text with voiceID and returns the stored audio's
// reference, or model.LocalSpeechRef when the backend asked for on-device speech.
func (w *AssetWorkflow) GenerateAudio(ctx context.Context, text, voiceID string) (string, error) {
	return w.run(ctx, "audio", &commands.SpeechInput{Text: text, VoiceID: voiceID})
}

// ReleaseAssets deletes the stored assets behind refs. Failures are logged:
// a leftover asset only costs storage.
func (w *AssetWorkflow) ReleaseAssets(ctx context.Context, refs ...string) {
	if len(refs) == 0 {
		return
	}
	chCtx := cor.NewBaseContext(ctx)
	chCtx.Add(cor.CtxIn, refs)
	w.Execute(chCtx)

	kind := attribute.String("kind", "release")
	if err := chCtx.Err(); err != nil {
		w.Fail(chCtx, err, kind)
		slog.WarnContext(ctx, "failed to release scene assets", "refs", len(refs), "error", err)
		return
	}
	w.Succeed(chCtx, chCtx.Get(cor.CtxIn), kind)
}

func (w *AssetWorkflow) run(ctx context.Context, kind string, input any) (string, error) {
	chCtx := cor.NewBaseContext(ctx)
	chCtx.Add(cor.CtxIn, input)
	w.Execute(chCtx)

	attr := attribute.String("kind", kind)
	if err := chCtx.Err(); err != nil {
		w.Fail(chCtx, err, attr)
		return "", err
	}
	ref, ok := chCtx.Get(cor.CtxIn).(string)
	if !ok || ref == "" {
		err := fmt.Errorf("%s: workflow produced no %s reference", w.GetName(), kind)
		w.Fail(chCtx, err, attr)
		return "", err
	}
	w.Succeed(chCtx, ref, attr)
	return ref, nil
}
