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

// Package store holds the scene list of one session: the single shared,
// mutable resource that the playback sequencer and the user-facing edit and
// generate commands both write to.
//
// Logic Flow:
//  1. Replace swaps the whole list atomically and bumps the script generation.
//  2. Every other mutation is a read-modify-write of one scene under the lock,
//     keyed by index, so concurrent settlements never lose each other's fields.
//  3. Asset generation is split into Begin (claims the asset, moves it to
//     generating, hands back a Ticket) and Settle (applies the result). A
//     Ticket from an older script generation is dropped; an audio Ticket whose
//     revision no longer matches the scene settles to error and its reference
//     is discarded.
//  4. Every change is published to the EventSink while the lock is held, so
//     subscribers observe changes in the order they were applied.
//  5. Asset references the store stops holding (replaced, invalidated,
//     discarded as stale, or dropped with the script) are handed to the
//     release hook after the lock is released.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

var (
	// ErrSceneOutOfRange is returned for an index outside the current script.
	ErrSceneOutOfRange = errors.New("scene index out of range")
	// ErrGenerating is returned when an asset of that kind is already in flight.
	ErrGenerating = errors.New("asset generation already in progress")
	// ErrStaleResult is returned when a settled result no longer applies.
	ErrStaleResult = errors.New("stale generation result")
	// ErrInvalidVoice is returned when an edit names an unknown voice.
	ErrInvalidVoice = errors.New("unknown voice id")
)

// StaleNarrationMessage is the audio error recorded when the narration or
// voice changed while synthesis was in flight.
const StaleNarrationMessage = "narration changed during synthesis"

// Ticket identifies one in-flight asset request and carries its inputs.
type Ticket struct {
	Generation uint64          // Script generation the request was issued for.
	Index      int             // Scene index.
	Kind       model.AssetKind // Image or audio.
	Revision   uint64          // Audio revision at issue time; zero for images.
	Input      string          // Image prompt or narration text.
	VoiceID    string          // Narrator voice; empty for images.
}

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Generation uint64        `json:"generation"`
	Prompt     string        `json:"prompt"`
	Preset     model.Preset  `json:"preset"`
	Scenes     []model.Scene `json:"scenes"`
}

// ReleaseFunc receives asset references no scene points at any more.
type ReleaseFunc func(refs []string)

// SceneStore is safe for concurrent use.
type SceneStore struct {
	mu         sync.RWMutex
	generation uint64
	prompt     string
	preset     model.Preset
	scenes     []model.Scene
	sink       model.EventSink
	onRelease  ReleaseFunc
	dropped    []string // Released references waiting for the lock to be released.
}

// New returns an empty store publishing to sink. A nil sink discards events.
func New(sink model.EventSink) *SceneStore {
	if sink == nil {
		sink = model.DiscardEvents
	}
	return &SceneStore{sink: sink}
}

// OnRelease installs the hook that receives released asset references.
func (s *SceneStore) OnRelease(fn ReleaseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRelease = fn
}

// unlock releases the write lock, then hands the references dropped while it
// was held to the release hook.
func (s *SceneStore) unlock() {
	dropped, release := s.dropped, s.onRelease
	s.dropped = nil
	s.mu.Unlock()
	if release != nil && len(dropped) > 0 {
		release(dropped)
	}
}

// dropLocked records old as released unless it is still the current reference.
func (s *SceneStore) dropLocked(old, current string) {
	if old != "" && old != current {
		s.dropped = append(s.dropped, old)
	}
}

func (s *SceneStore) dropScenesLocked() {
	for _, sc := range s.scenes {
		s.dropLocked(sc.ImageRef, "")
		s.dropLocked(sc.AudioRef, "")
	}
}

// Replace discards the current script and installs scenes as a new generation.
//
// Inputs:
//   - prompt: The premise the scenes were synthesized from.
//   - preset: The detected preset.
//   - scenes: The new scene list; it is copied.
//
// Outputs:
//   - uint64: The new script generation.
func (s *SceneStore) Replace(prompt string, preset model.Preset, scenes []model.Scene) uint64 {
	s.mu.Lock()
	defer s.unlock()

	s.dropScenesLocked()
	s.generation++
	s.prompt = prompt
	s.preset = preset
	s.scenes = append([]model.Scene(nil), scenes...)
	s.sink.Publish(model.Event{
		Type:   model.EventScript,
		Scenes: append([]model.Scene(nil), s.scenes...),
		Time:   time.Now(),
	})
	return s.generation
}

// Discard empties the store and releases every asset reference it held.
// Results still in flight are dropped as stale when they settle.
func (s *SceneStore) Discard() {
	s.mu.Lock()
	defer s.unlock()

	s.dropScenesLocked()
	s.generation++
	s.prompt = ""
	s.preset = model.Preset{}
	s.scenes = nil
}

func (s *SceneStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *SceneStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenes)
}

// Get returns a copy of the scene at index.
func (s *SceneStore) Get(index int) (model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.scenes) {
		return model.Scene{}, fmt.Errorf("get scene %d: %w", index, ErrSceneOutOfRange)
	}
	return s.scenes[index], nil
}

func (s *SceneStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Generation: s.generation,
		Prompt:     s.prompt,
		Preset:     s.preset,
		Scenes:     append([]model.Scene(nil), s.scenes...),
	}
}

// Update applies patch to the scene at index. Changing the narration or the
// voice clears the audio reference, bumps the audio revision and returns a
// settled audio status to idle; an in-flight synthesis keeps its generating
// status and will be discarded when it settles.
func (s *SceneStore) Update(index int, patch model.ScenePatch) (model.Scene, error) {
	if patch.VoiceID != nil && !model.IsVoice(*patch.VoiceID) {
		return model.Scene{}, fmt.Errorf("update scene %d: %w: %q", index, ErrInvalidVoice, *patch.VoiceID)
	}
	return s.mutate(index, func(sc *model.Scene) error {
		invalidate := false
		if patch.Narration != nil && *patch.Narration != sc.Narration {
			sc.Narration = *patch.Narration
			invalidate = true
		}
		if patch.VoiceID != nil && *patch.VoiceID != sc.VoiceID {
			sc.VoiceID = *patch.VoiceID
			invalidate = true
		}
		if patch.ImagePrompt != nil {
			sc.ImagePrompt = *patch.ImagePrompt
		}
		if invalidate {
			invalidateAudio(sc)
		}
		return nil
	})
}

// ClearAudio invalidates the scene's audio as an edit would.
func (s *SceneStore) ClearAudio(index int) (model.Scene, error) {
	return s.mutate(index, func(sc *model.Scene) error {
		invalidateAudio(sc)
		return nil
	})
}

func invalidateAudio(sc *model.Scene) {
	sc.AudioRef = ""
	sc.AudioError = ""
	sc.AudioRevision++
	if sc.AudioStatus != model.StatusGenerating {
		sc.AudioStatus = model.StatusIdle
	}
}

// BeginImage claims the image of the scene at index for generation.
func (s *SceneStore) BeginImage(index int) (Ticket, error) {
	var t Ticket
	_, err := s.mutate(index, func(sc *model.Scene) error {
		if sc.ImageStatus == model.StatusGenerating {
			return ErrGenerating
		}
		sc.ImageStatus = model.StatusGenerating
		sc.ImageError = ""
		t = Ticket{Generation: s.generation, Index: index, Kind: model.AssetImage, Input: sc.ImagePrompt}
		return nil
	})
	return t, err
}

// SettleImage applies the outcome of an image request. Exactly one of ref and
// genErr is meaningful: a non-nil genErr settles to error.
func (s *SceneStore) SettleImage(t Ticket, ref string, genErr error) (model.Scene, error) {
	return s.settle(t, ref, func(sc *model.Scene) error {
		if genErr != nil {
			sc.ImageStatus = model.StatusError
			sc.ImageError = genErr.Error()
			return nil
		}
		sc.ImageStatus = model.StatusReady
		sc.ImageRef = ref
		return nil
	})
}

// BeginAudio claims the audio of the scene at index for generation.
func (s *SceneStore) BeginAudio(index int) (Ticket, error) {
	var t Ticket
	_, err := s.mutate(index, func(sc *model.Scene) error {
		if sc.AudioStatus == model.StatusGenerating {
			return ErrGenerating
		}
		sc.AudioStatus = model.StatusGenerating
		sc.AudioError = ""
		t = Ticket{
			Generation: s.generation,
			Index:      index,
			Kind:       model.AssetAudio,
			Revision:   sc.AudioRevision,
			Input:      sc.Narration,
			VoiceID:    sc.VoiceID,
		}
		return nil
	})
	return t, err
}

// SettleAudio applies the outcome of a synthesis request. When the scene's
// narration or voice changed since BeginAudio the result is discarded, the
// audio settles to error and ErrStaleResult is returned.
func (s *SceneStore) SettleAudio(t Ticket, ref string, genErr error) (model.Scene, error) {
	stale := false
	sc, err := s.settle(t, ref, func(sc *model.Scene) error {
		switch {
		case sc.AudioRevision != t.Revision:
			stale = true
			sc.AudioStatus = model.StatusError
			sc.AudioError = StaleNarrationMessage
			sc.AudioRef = ""
			s.dropLocked(ref, "")
		case genErr != nil:
			sc.AudioStatus = model.StatusError
			sc.AudioError = genErr.Error()
		default:
			sc.AudioStatus = model.StatusReady
			sc.AudioRef = ref
		}
		return nil
	})
	if err == nil && stale {
		err = fmt.Errorf("settle audio %d: %w", t.Index, ErrStaleResult)
	}
	return sc, err
}

// FailAudio marks the scene's audio as failed when the narration of the given
// revision could not be played. A revision mismatch is ignored.
func (s *SceneStore) FailAudio(index int, revision uint64, reason string) (model.Scene, error) {
	return s.mutate(index, func(sc *model.Scene) error {
		if sc.AudioRevision != revision || sc.AudioStatus == model.StatusGenerating {
			return ErrStaleResult
		}
		sc.AudioStatus = model.StatusError
		sc.AudioError = reason
		return nil
	})
}

// settle applies the result carrying ref for ticket t. A result for another
// script generation is dropped and ref is released.
func (s *SceneStore) settle(t Ticket, ref string, apply func(sc *model.Scene) error) (model.Scene, error) {
	s.mu.Lock()
	defer s.unlock()
	if t.Generation != s.generation || t.Index < 0 || t.Index >= len(s.scenes) {
		s.dropLocked(ref, "")
		return model.Scene{}, fmt.Errorf("settle %s %d of generation %d: %w", t.Kind, t.Index, t.Generation, ErrStaleResult)
	}
	return s.applyLocked(t.Index, apply)
}

func (s *SceneStore) mutate(index int, apply func(sc *model.Scene) error) (model.Scene, error) {
	s.mu.Lock()
	defer s.unlock()
	if index < 0 || index >= len(s.scenes) {
		return model.Scene{}, fmt.Errorf("scene %d: %w", index, ErrSceneOutOfRange)
	}
	return s.applyLocked(index, apply)
}

// applyLocked runs apply on a copy and commits it only on success.
func (s *SceneStore) applyLocked(index int, apply func(sc *model.Scene) error) (model.Scene, error) {
	prev := s.scenes[index]
	sc := prev
	if err := apply(&sc); err != nil {
		return prev, fmt.Errorf("scene %d: %w", index, err)
	}
	s.scenes[index] = sc
	s.dropLocked(prev.ImageRef, sc.ImageRef)
	s.dropLocked(prev.AudioRef, sc.AudioRef)
	published := sc
	s.sink.Publish(model.Event{Type: model.EventScene, Index: index, Scene: &published, Time: time.Now()})
	return sc, nil
}
