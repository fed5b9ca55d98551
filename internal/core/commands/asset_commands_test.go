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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
	"github.com/jaycherian/prompt-to-video-live/internal/core/commands"
	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
	test "github.com/jaycherian/prompt-to-video-live/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSpeech struct {
	asset *model.Asset
	err   error
}

func (s stubSpeech) SynthesizeSpeech(_ context.Context, _, _ string) (*model.Asset, error) {
	return s.asset, s.err
}

func newContext(in any) cor.Context {
	ctx := cor.NewBaseContext(context.Background())
	ctx.Add(cor.CtxIn, in)
	return ctx
}

func TestSniffMIME(t *testing.T) {
	assert.Equal(t, "image/png", commands.SniffMIME(test.PNGHeader))
	assert.Equal(t, "audio/mpeg", commands.SniffMIME(test.MP3Header))
	assert.Equal(t, "image/svg+xml", commands.SniffMIME([]byte(`<svg xmlns="http://www.w3.org/2000/svg" width="8" height="8"/>`)))
	assert.Equal(t, "application/octet-stream", commands.SniffMIME([]byte("plain words")))
}

func TestImageRequest(t *testing.T) {
	cmd := commands.NewImageRequest("image-request", cloud.PlaceholderImages{})

	assert.False(t, cmd.IsExecutable(newContext(42)))

	ctx := newContext("a misty harbour at dawn")
	require.True(t, cmd.IsExecutable(ctx))
	cmd.Execute(ctx)
	require.False(t, ctx.HasErrors())
	asset := ctx.Get(cor.CtxOut).(*model.Asset)
	assert.Equal(t, model.AssetImage, asset.Kind)
	assert.Contains(t, string(asset.Data), "a misty harbour at dawn")

	ctx = newContext("   ")
	cmd.Execute(ctx)
	assert.True(t, ctx.HasErrors())
	assert.ErrorIs(t, ctx.Err(), cloud.ErrInvalidInput)
}

func TestSpeechRequestFallback(t *testing.T) {
	in := &commands.SpeechInput{Text: "The tide turns.", VoiceID: "zeus-en"}

	cmd := commands.NewSpeechRequest("speech-request", cloud.DisabledSpeech{})
	ctx := newContext(in)
	require.True(t, cmd.IsExecutable(ctx))
	cmd.Execute(ctx)
	require.False(t, ctx.HasErrors())
	asset := ctx.Get(cor.CtxOut).(*model.Asset)
	assert.Equal(t, model.LocalSpeechRef, asset.URL)
	assert.Empty(t, asset.Data)

	failing := commands.NewSpeechRequest("speech-request", stubSpeech{err: errors.New("boom")})
	ctx = newContext(in)
	failing.Execute(ctx)
	assert.True(t, ctx.HasErrors())

	ok := commands.NewSpeechRequest("speech-request", stubSpeech{asset: &model.Asset{Data: test.MP3Header}})
	ctx = newContext(in)
	ok.Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.Equal(t, model.AssetAudio, ctx.Get(cor.CtxOut).(*model.Asset).Kind)
}

func TestAssetPersist(t *testing.T) {
	store := services.NewMemoryAssetStore(8)
	cmd := commands.NewAssetPersist("persist", store)

	ctx := newContext(&model.Asset{Kind: model.AssetImage, Data: test.PNGHeader})
	cmd.Execute(ctx)
	require.False(t, ctx.HasErrors())
	ref := ctx.Get(cor.CtxOut).(string)
	require.True(t, strings.HasPrefix(ref, services.AssetRoutePrefix))

	stored, err := store.Get(context.Background(), strings.TrimPrefix(ref, services.AssetRoutePrefix))
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.MIMEType)

	ctx = newContext(&model.Asset{Kind: model.AssetAudio, URL: model.LocalSpeechRef})
	cmd.Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.Equal(t, model.LocalSpeechRef, ctx.Get(cor.CtxOut))
	assert.Equal(t, 1, store.Len())

	ctx = newContext(&model.Asset{Kind: model.AssetAudio})
	cmd.Execute(ctx)
	assert.True(t, ctx.HasErrors())
	assert.Equal(t, 1, store.Len())
}

func TestAssetChain(t *testing.T) {
	store := services.NewMemoryAssetStore(8)
	chain := cor.NewBaseChain("scene-image").
		AddCommand(commands.NewImageRequest("image-request", cloud.PlaceholderImages{})).
		AddCommand(commands.NewAssetPersist("image-persist", store))

	for i := 0; i < 3; i++ {
		ctx := newContext(fmt.Sprintf("scene %d", i))
		chain.Execute(ctx)
		require.NoError(t, ctx.Err())
		assert.True(t, strings.HasPrefix(ctx.Get(cor.CtxIn).(string), services.AssetRoutePrefix))
	}
	assert.Equal(t, 3, store.Len())
}

type undeletableStore struct {
	services.AssetStore
}

func (undeletableStore) Delete(_ context.Context, id string) error {
	return fmt.Errorf("object %s is locked", id)
}

func TestAssetRelease(t *testing.T) {
	store := services.NewMemoryAssetStore(8)
	persist := commands.NewAssetPersist("persist", store)
	var refs []string
	for i := 0; i < 2; i++ {
		ctx := newContext(&model.Asset{Kind: model.AssetImage, Data: test.PNGHeader})
		persist.Execute(ctx)
		require.False(t, ctx.HasErrors())
		refs = append(refs, ctx.Get(cor.CtxOut).(string))
	}

	release := commands.NewAssetRelease("release", store)
	assert.False(t, release.IsExecutable(newContext("not a list")))

	ctx := newContext(append([]string{model.LocalSpeechRef, ""}, refs...))
	require.True(t, release.IsExecutable(ctx))
	release.Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.Equal(t, 2, ctx.Get(cor.CtxOut))
	assert.Equal(t, 0, store.Len())

	ctx = newContext(refs)
	commands.NewAssetRelease("release", undeletableStore{}).Execute(ctx)
	assert.ErrorContains(t, ctx.Err(), "is locked")
}
