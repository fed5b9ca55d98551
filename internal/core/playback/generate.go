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

package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/store"
)

// GenerateSceneImage generates the image of the scene at index and waits for
// it to settle. It is a no-op while that image is already generating.
func (s *Sequencer) GenerateSceneImage(ctx context.Context, index int) error {
	t, err := s.store.BeginImage(index)
	if errors.Is(err, store.ErrGenerating) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.generateImage(ctx, t)
}

// GenerateSceneAudio synthesizes the narration of the scene at index and waits
// for it to settle. It is a no-op while that audio is already generating.
func (s *Sequencer) GenerateSceneAudio(ctx context.Context, index int) error {
	t, err := s.store.BeginAudio(index)
	if errors.Is(err, store.ErrGenerating) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.generateAudio(ctx, t)
}

// RequestSceneImage starts image generation in the background. The scene is
// marked generating before it returns.
func (s *Sequencer) RequestSceneImage(index int) error {
	_, err := s.requestImage(index)
	if errors.Is(err, store.ErrGenerating) {
		return nil
	}
	return err
}

// RequestSceneAudio starts narration synthesis in the background.
func (s *Sequencer) RequestSceneAudio(index int) error {
	_, err := s.requestAudio(index)
	if errors.Is(err, store.ErrGenerating) {
		return nil
	}
	return err
}

// RegenerateAudio discards the scene's audio and synthesizes it again.
func (s *Sequencer) RegenerateAudio(index int) error {
	sc, err := s.store.Get(index)
	if err != nil {
		return err
	}
	if sc.AudioStatus == model.StatusGenerating {
		return nil
	}
	if _, err := s.store.ClearAudio(index); err != nil {
		return err
	}
	return s.RequestSceneAudio(index)
}

// RequestAll starts image and audio generation for every scene.
func (s *Sequencer) RequestAll() {
	for i := 0; i < s.store.Len(); i++ {
		if err := s.RequestSceneImage(i); err != nil {
			slog.Warn("image request failed", "scene", i, "error", err)
		}
		if err := s.RequestSceneAudio(i); err != nil {
			slog.Warn("audio request failed", "scene", i, "error", err)
		}
	}
}

func (s *Sequencer) requestImage(index int) (<-chan struct{}, error) {
	return s.background(func() (store.Ticket, error) { return s.store.BeginImage(index) }, s.generateImage)
}

func (s *Sequencer) requestAudio(index int) (<-chan struct{}, error) {
	return s.background(func() (store.Ticket, error) { return s.store.BeginAudio(index) }, s.generateAudio)
}

// background claims an asset with begin and runs generate on the background
// context. The returned channel closes once the result has been settled.
func (s *Sequencer) background(begin func() (store.Ticket, error), generate func(context.Context, store.Ticket) error) (<-chan struct{}, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	t, err := begin()
	if err != nil {
		s.wg.Done()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer s.wg.Done()
		defer close(done)
		if err := generate(s.bg, t); err != nil && !errors.Is(err, store.ErrStaleResult) {
			slog.Warn("scene asset generation failed", "kind", t.Kind, "scene", t.Index, "error", err)
		}
	}()
	return done, nil
}

func (s *Sequencer) generateImage(ctx context.Context, t store.Ticket) error {
	ref, genErr := s.assets.GenerateImage(ctx, t.Input)
	if _, err := s.store.SettleImage(t, ref, genErr); err != nil {
		return err
	}
	if genErr != nil {
		return fmt.Errorf("generate image for scene %d: %w", t.Index, genErr)
	}
	return nil
}

func (s *Sequencer) generateAudio(ctx context.Context, t store.Ticket) error {
	ref, genErr := s.assets.GenerateAudio(ctx, t.Input, t.VoiceID)
	if _, err := s.store.SettleAudio(t, ref, genErr); err != nil {
		return err
	}
	if genErr != nil {
		return fmt.Errorf("generate audio for scene %d: %w", t.Index, genErr)
	}
	return nil
}
