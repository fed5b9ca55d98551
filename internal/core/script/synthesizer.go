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

// Package script turns a premise and its preset into the four-scene script.
//
// Logic Flow:
//  1. Each beat has a fixed narration template and a fixed shot description.
//     The premise and the preset's label are substituted into the narration;
//     the preset's visual style, the shot and the premise form the image prompt.
//  2. The opening scene is narrated by the preset's voice. Later scenes take a
//     voice from the enumerated list, indexed by a 32-bit string hash of the
//     premise plus a per-beat offset, so a script sounds like a cast rather
//     than a single narrator while staying reproducible.
//  3. Scene ids are name-based UUIDs of the premise and the index.
package script

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

// sceneNamespace scopes the name-based scene ids.
var sceneNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("prompt-to-video-live/scene"))

// voiceOffsets is added to the premise hash per beat. Scene 0 ignores it.
var voiceOffsets = [model.ScenesPerScript]int64{0, 5, 11, 7}

type beatTemplate struct {
	narration string // %[1]s is the premise, %[2]s the lower-cased preset label.
	shot      string // Substituted between the style and the premise.
	detail    string // Camera and lighting cues after the premise.
}

var templates = [model.ScenesPerScript]beatTemplate{
	{
		narration: `In a world shaped by "%[1]s", our %[2]s story begins. The stage is set for something extraordinary.`,
		shot:      "opening scene",
		detail:    "wide establishing shot, dramatic lighting",
	},
	{
		narration: `The journey into "%[1]s" deepens. Characters emerge from the shadows of this %[2]s tale, driven by purpose and destiny.`,
		shot:      "character introduction scene",
		detail:    "medium shot, detailed, atmospheric",
	},
	{
		narration: `Tension rises as forces collide around "%[1]s". In every %[2]s story, every choice matters and every moment counts.`,
		shot:      "climactic confrontation",
		detail:    "dramatic angle, intense lighting",
	},
	{
		narration: `And so the %[2]s tale of "%[1]s" reaches its crescendo. What was begun must now find its end.`,
		shot:      "epic finale scene",
		detail:    "sweeping vista, golden hour lighting",
	},
}

// Synthesize builds the four scenes for prompt under preset. The result is a
// pure function of its inputs; every scene starts with idle asset statuses.
//
// Inputs:
//   - prompt: The user's premise, embedded verbatim in every narration.
//   - preset: The preset chosen by the theme detector.
//
// Outputs:
//   - []model.Scene: Exactly model.ScenesPerScript scenes in beat order.
func Synthesize(prompt string, preset model.Preset) []model.Scene {
	label := strings.ToLower(preset.Name)
	h := Hash(prompt)

	scenes := make([]model.Scene, model.ScenesPerScript)
	for i, tpl := range templates {
		voice := preset.VoiceID
		if i > 0 {
			voice = model.Voices[(h+voiceOffsets[i])%int64(len(model.Voices))].ID
		}
		scenes[i] = model.Scene{
			ID:          uuid.NewSHA1(sceneNamespace, []byte(fmt.Sprintf("%s#%d", prompt, i))).String(),
			Index:       i,
			Beat:        model.Beats[i],
			Narration:   fmt.Sprintf(tpl.narration, prompt, label),
			ImagePrompt: fmt.Sprintf("%s, %s, %s, %s, 4k cinematic", preset.Style, tpl.shot, prompt, tpl.detail),
			VoiceID:     voice,
			ImageStatus: model.StatusIdle,
			AudioStatus: model.StatusIdle,
		}
	}
	return scenes
}

// Hash is the classic 31-multiplier string hash over UTF-16 code units,
// computed with 32-bit wraparound and returned as an absolute value.
func Hash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
