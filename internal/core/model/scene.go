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

// Package model defines the core data structures for the application.
// This file, `scene.go`, contains the Scene record that the Scene Store holds
// and the Sequencer drives, together with the per-asset generation status.
//
// A Scene is one narrated, illustrated beat of a generated script. Scenes are
// created atomically by the script synthesizer, mutated in place for the life
// of a session (edits, asset settlement), and discarded as a whole when a new
// prompt is submitted.
package model

import "strings"

// ScenesPerScript is the fixed number of beats in every generated script.
const ScenesPerScript = 4

// LocalSpeechRef is the audio reference recorded when the hosted text-to-speech
// backend asked the caller to narrate with on-device speech synthesis instead.
// Clients receiving it speak the narration text with the platform voice.
const LocalSpeechRef = "local-speech:"

// AssetStatus is the generation state of one asset kind (image or audio) of a scene.
type AssetStatus string

// The legal asset states. A status only moves Idle -> Generating -> {Ready, Error};
// a new request may be issued from Idle, Ready or Error but never while Generating.
const (
	StatusIdle       AssetStatus = "idle"
	StatusGenerating AssetStatus = "generating"
	StatusReady      AssetStatus = "ready"
	StatusError      AssetStatus = "error"
)

// Settled reports whether no generation is currently in flight.
func (s AssetStatus) Settled() bool {
	return s != StatusGenerating
}

// Beat identifies the narrative position of a scene.
type Beat string

// The four beats in script order.
const (
	BeatOpening      Beat = "opening"
	BeatRisingAction Beat = "rising_action"
	BeatClimax       Beat = "climax"
	BeatResolution   Beat = "resolution"
)

// Beats lists the beats in the order scenes are generated and played.
var Beats = [ScenesPerScript]Beat{BeatOpening, BeatRisingAction, BeatClimax, BeatResolution}

// Scene is a single unit of narrated, illustrated content.
type Scene struct {
	ID            string      `json:"id"`            // Stable rendering key, immutable after creation.
	Index         int         `json:"index"`         // Position in the script; never reordered.
	Beat          Beat        `json:"beat"`          // Narrative beat of this scene.
	Narration     string      `json:"narration"`     // Text spoken for this scene.
	ImagePrompt   string      `json:"imagePrompt"`   // Prompt sent to the image backend.
	VoiceID       string      `json:"voiceId"`       // Narrator voice, one of Voices.
	ImageRef      string      `json:"imageRef"`      // Generated illustration, empty until ready.
	AudioRef      string      `json:"audioRef"`      // Generated narration, empty until ready or after invalidation.
	ImageStatus   AssetStatus `json:"imageStatus"`   // Image generation state.
	AudioStatus   AssetStatus `json:"audioStatus"`   // Audio generation state.
	ImageError    string      `json:"imageError,omitempty"`
	AudioError    string      `json:"audioError,omitempty"`
	AudioRevision uint64      `json:"audioRevision"` // Bumped on every narration or voice change.
}

// UsesLocalSpeech reports whether the scene's audio reference asks for
// on-device speech synthesis rather than a generated audio file.
func (s *Scene) UsesLocalSpeech() bool {
	return strings.HasPrefix(s.AudioRef, LocalSpeechRef)
}

// ScenePatch is a partial edit applied to one scene. Nil fields are left unchanged.
type ScenePatch struct {
	Narration   *string `json:"narration,omitempty"`
	ImagePrompt *string `json:"imagePrompt,omitempty"`
	VoiceID     *string `json:"voiceId,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ScenePatch) Empty() bool {
	return p.Narration == nil && p.ImagePrompt == nil && p.VoiceID == nil
}
