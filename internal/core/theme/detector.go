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

// Package theme classifies a free-text premise into one of the fixed presets.
//
// Logic Flow:
//  1. The keyword patterns are tested in order, case-insensitively, against the
//     whole premise.
//  2. The first pattern that matches anywhere selects its preset.
//  3. When nothing matches the default preset (Epic Fantasy) is returned.
package theme

import (
	"regexp"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

type rule struct {
	pattern *regexp.Regexp
	preset  model.Preset
}

// rules are evaluated top to bottom; order is precedence.
var rules = []rule{
	{regexp.MustCompile(`(?i)fantasy|dragon|wizard|magic|sword|quest`), model.PresetFantasy},
	{regexp.MustCompile(`(?i)space|future|robot|cyber|alien|tech`), model.PresetSciFi},
	{regexp.MustCompile(`(?i)horror|dark|ghost|haunted|fear|dead`), model.PresetHorror},
	{regexp.MustCompile(`(?i)love|romance|heart|kiss|passion`), model.PresetRomance},
	{regexp.MustCompile(`(?i)adventure|journey|explore|treasure|hero`), model.PresetAdventure},
	{regexp.MustCompile(`(?i)mystery|detective|clue|secret|shadow`), model.PresetMystery},
}

// Detect returns the preset for prompt. It is pure and total: any string,
// including the empty one, yields a preset.
//
// Inputs:
//   - prompt: The user's premise.
//
// Outputs:
//   - model.Preset: The first matching preset, or model.DefaultPreset.
func Detect(prompt string) model.Preset {
	for _, r := range rules {
		if r.pattern.MatchString(prompt) {
			return r.preset
		}
	}
	return model.DefaultPreset
}
