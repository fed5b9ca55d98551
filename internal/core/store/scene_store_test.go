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

package store_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/script"
	"github.com/jaycherian/prompt-to-video-live/internal/core/store"
	"github.com/jaycherian/prompt-to-video-live/internal/core/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prompt = "A dragon awakens in a forgotten kingdom"

func newStore(t *testing.T) (*store.SceneStore, *[]model.Event) {
	t.Helper()
	var mu sync.Mutex
	events := &[]model.Event{}
	s := store.New(model.EventSinkFunc(func(e model.Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
	}))
	preset := theme.Detect(prompt)
	s.Replace(prompt, preset, script.Synthesize(prompt, preset))
	return s, events
}

func ptr(s string) *string { return &s }

func TestReplaceBumpsGeneration(t *testing.T) {
	s, events := newStore(t)
	assert.Equal(t, uint64(1), s.Generation())
	assert.Equal(t, model.ScenesPerScript, s.Len())
	require.NotEmpty(t, *events)
	assert.Equal(t, model.EventScript, (*events)[0].Type)

	snap := s.Snapshot()
	assert.Equal(t, prompt, snap.Prompt)
	assert.Equal(t, model.PresetFantasy, snap.Preset)
	assert.Len(t, snap.Scenes, model.ScenesPerScript)

	_, err := s.Get(model.ScenesPerScript)
	assert.ErrorIs(t, err, store.ErrSceneOutOfRange)
	_, err = s.Get(-1)
	assert.ErrorIs(t, err, store.ErrSceneOutOfRange)
}

func TestImageLifecycle(t *testing.T) {
	s, _ := newStore(t)

	ticket, err := s.BeginImage(1)
	require.NoError(t, err)
	assert.Equal(t, model.AssetImage, ticket.Kind)

	_, err = s.BeginImage(1)
	assert.ErrorIs(t, err, store.ErrGenerating)

	sc, err := s.SettleImage(ticket, "", errors.New("backend down"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, sc.ImageStatus)
	assert.Equal(t, "backend down", sc.ImageError)

	ticket, err = s.BeginImage(1)
	require.NoError(t, err)
	sc, err = s.SettleImage(ticket, "/api/v1/assets/abc", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, sc.ImageStatus)
	assert.Equal(t, "/api/v1/assets/abc", sc.ImageRef)
	assert.Empty(t, sc.ImageError)
}

func TestResultsForReplacedScriptAreDropped(t *testing.T) {
	s, _ := newStore(t)
	ticket, err := s.BeginAudio(0)
	require.NoError(t, err)

	preset := theme.Detect("a haunted house")
	s.Replace("a haunted house", preset, script.Synthesize("a haunted house", preset))

	_, err = s.SettleAudio(ticket, "/api/v1/assets/old", nil)
	assert.ErrorIs(t, err, store.ErrStaleResult)
	sc, _ := s.Get(0)
	assert.Empty(t, sc.AudioRef)
	assert.Equal(t, model.StatusIdle, sc.AudioStatus)
}

func TestVoiceChangeInvalidatesAudio(t *testing.T) {
	s, _ := newStore(t)
	ticket, _ := s.BeginAudio(2)
	_, err := s.SettleAudio(ticket, "/api/v1/assets/a1", nil)
	require.NoError(t, err)

	sc, err := s.Update(2, model.ScenePatch{VoiceID: ptr("hermes-en")})
	require.NoError(t, err)
	assert.Equal(t, "hermes-en", sc.VoiceID)
	assert.Empty(t, sc.AudioRef)
	assert.Equal(t, model.StatusIdle, sc.AudioStatus)
	assert.Equal(t, ticket.Revision+1, sc.AudioRevision)

	_, err = s.Update(2, model.ScenePatch{VoiceID: ptr("nobody-en")})
	assert.ErrorIs(t, err, store.ErrInvalidVoice)
}

func TestImagePromptEditKeepsAudio(t *testing.T) {
	s, _ := newStore(t)
	ticket, _ := s.BeginAudio(0)
	_, _ = s.SettleAudio(ticket, "/api/v1/assets/a0", nil)

	sc, err := s.Update(0, model.ScenePatch{ImagePrompt: ptr("a castle at dawn")})
	require.NoError(t, err)
	assert.Equal(t, "a castle at dawn", sc.ImagePrompt)
	assert.Equal(t, "/api/v1/assets/a0", sc.AudioRef)
}

func TestStaleSynthesisSettlesToError(t *testing.T) {
	s, _ := newStore(t)
	ticket, err := s.BeginAudio(3)
	require.NoError(t, err)

	sc, err := s.Update(3, model.ScenePatch{Narration: ptr("A different ending.")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusGenerating, sc.AudioStatus)

	sc, err = s.SettleAudio(ticket, "/api/v1/assets/stale", nil)
	assert.ErrorIs(t, err, store.ErrStaleResult)
	assert.Equal(t, model.StatusError, sc.AudioStatus)
	assert.Equal(t, store.StaleNarrationMessage, sc.AudioError)
	assert.Empty(t, sc.AudioRef)

	// A fresh request for the new narration succeeds.
	ticket, err = s.BeginAudio(3)
	require.NoError(t, err)
	assert.Equal(t, "A different ending.", ticket.Input)
	sc, err = s.SettleAudio(ticket, "/api/v1/assets/fresh", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/assets/fresh", sc.AudioRef)
}

func TestFailAudioIgnoresOldRevision(t *testing.T) {
	s, _ := newStore(t)
	ticket, _ := s.BeginAudio(1)
	sc, _ := s.SettleAudio(ticket, model.LocalSpeechRef, nil)
	assert.True(t, sc.UsesLocalSpeech())

	_, err := s.FailAudio(1, sc.AudioRevision+1, "speech unavailable")
	assert.ErrorIs(t, err, store.ErrStaleResult)

	sc, err = s.FailAudio(1, sc.AudioRevision, "speech unavailable")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, sc.AudioStatus)
}

func TestConcurrentSettlementsDoNotLoseUpdates(t *testing.T) {
	s, _ := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < model.ScenesPerScript; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tk, err := s.BeginImage(i)
			if err == nil {
				_, _ = s.SettleImage(tk, "img", nil)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			tk, err := s.BeginAudio(i)
			if err == nil {
				_, _ = s.SettleAudio(tk, "aud", nil)
			}
		}(i)
	}
	wg.Wait()

	for _, sc := range s.Snapshot().Scenes {
		assert.Equal(t, "img", sc.ImageRef)
		assert.Equal(t, "aud", sc.AudioRef)
		assert.Equal(t, model.StatusReady, sc.ImageStatus)
		assert.Equal(t, model.StatusReady, sc.AudioStatus)
	}
}

func TestReleasedReferencesReachTheHook(t *testing.T) {
	s, _ := newStore(t)
	var mu sync.Mutex
	var released []string
	s.OnRelease(func(refs []string) {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, refs...)
	})
	take := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := released
		released = nil
		return out
	}

	// A new image releases the one it replaces; a failed retry keeps it.
	t1, err := s.BeginImage(0)
	require.NoError(t, err)
	_, err = s.SettleImage(t1, "/img/1", nil)
	require.NoError(t, err)
	assert.Empty(t, take())
	t2, err := s.BeginImage(0)
	require.NoError(t, err)
	_, err = s.SettleImage(t2, "/img/2", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/img/1"}, take())
	t3, err := s.BeginImage(0)
	require.NoError(t, err)
	_, err = s.SettleImage(t3, "", errors.New("quota exceeded"))
	require.NoError(t, err)
	assert.Empty(t, take())

	// Editing the narration releases the audio.
	a1, err := s.BeginAudio(1)
	require.NoError(t, err)
	_, err = s.SettleAudio(a1, "/aud/1", nil)
	require.NoError(t, err)
	_, err = s.Update(1, model.ScenePatch{Narration: ptr("A quieter ending.")})
	require.NoError(t, err)
	assert.Equal(t, []string{"/aud/1"}, take())

	// A synthesis that went stale in flight is released on arrival.
	a2, err := s.BeginAudio(1)
	require.NoError(t, err)
	_, err = s.Update(1, model.ScenePatch{Narration: ptr("Another ending.")})
	require.NoError(t, err)
	assert.Empty(t, take())
	_, err = s.SettleAudio(a2, "/aud/2", nil)
	assert.ErrorIs(t, err, store.ErrStaleResult)
	assert.Equal(t, []string{"/aud/2"}, take())

	// Replacing the script releases its assets and any result still in flight.
	a3, err := s.BeginAudio(2)
	require.NoError(t, err)
	preset := theme.Detect(prompt)
	s.Replace(prompt, preset, script.Synthesize(prompt, preset))
	assert.Equal(t, []string{"/img/2"}, take())
	_, err = s.SettleAudio(a3, "/aud/3", nil)
	assert.ErrorIs(t, err, store.ErrStaleResult)
	assert.Equal(t, []string{"/aud/3"}, take())

	i1, err := s.BeginImage(3)
	require.NoError(t, err)
	_, err = s.SettleImage(i1, "/img/4", nil)
	require.NoError(t, err)
	s.Discard()
	assert.Equal(t, []string{"/img/4"}, take())
	assert.Equal(t, 0, s.Len())
}
