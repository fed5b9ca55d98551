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

// Package model defines the core data structures for the application. This
// file holds the enumerated narrator voices and the thematic presets. Both are
// configuration constants: the sequencer never branches on them, it only
// carries the selected voice id through to the speech backend.
package model

// DefaultVoiceID is used when a speech request does not name a voice.
const DefaultVoiceID = "asteria-en"

// Voice is one of the Deepgram Aura narrator voices offered to the user.
type Voice struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Gender string `json:"gender"`
}

// Voices is the canonical, ordered list of selectable narrator voices.
var Voices = []Voice{
	{ID: "asteria-en", Label: "Asteria", Gender: "F"},
	{ID: "luna-en", Label: "Luna", Gender: "F"},
	{ID: "stella-en", Label: "Stella", Gender: "F"},
	{ID: "athena-en", Label: "Athena", Gender: "F"},
	{ID: "hera-en", Label: "Hera", Gender: "F"},
	{ID: "orion-en", Label: "Orion", Gender: "M"},
	{ID: "arcas-en", Label: "Arcas", Gender: "M"},
	{ID: "perseus-en", Label: "Perseus", Gender: "M"},
	{ID: "angus-en", Label: "Angus", Gender: "M"},
	{ID: "orpheus-en", Label: "Orpheus", Gender: "M"},
	{ID: "helios-en", Label: "Helios", Gender: "M"},
	{ID: "zeus-en", Label: "Zeus", Gender: "M"},
	{ID: "apollo-en", Label: "Apollo", Gender: "M"},
	{ID: "hermes-en", Label: "Hermes", Gender: "M"},
}

// IsVoice reports whether id names one of the enumerated voices.
func IsVoice(id string) bool {
	for _, v := range Voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Preset maps a detected theme to a narrator voice and a visual style descriptor.
type Preset struct {
	Name    string `json:"name"`
	VoiceID string `json:"voiceId"`
	Style   string `json:"style"`
}

// The presets, in the order the theme detector tests them.
var (
	PresetFantasy   = Preset{Name: "Epic Fantasy", VoiceID: "zeus-en", Style: "cinematic fantasy landscape"}
	PresetSciFi     = Preset{Name: "Sci-Fi", VoiceID: "orion-en", Style: "futuristic sci-fi scene"}
	PresetHorror    = Preset{Name: "Horror", VoiceID: "orpheus-en", Style: "dark atmospheric horror"}
	PresetRomance   = Preset{Name: "Romance", VoiceID: "luna-en", Style: "romantic soft lighting"}
	PresetAdventure = Preset{Name: "Adventure", VoiceID: "perseus-en", Style: "adventure dramatic landscape"}
	PresetMystery   = Preset{Name: "Mystery", VoiceID: "athena-en", Style: "mysterious noir atmosphere"}
)

// Presets lists every preset in detection precedence order.
var Presets = []Preset{PresetFantasy, PresetSciFi, PresetHorror, PresetRomance, PresetAdventure, PresetMystery}

// DefaultPreset is returned when no keyword matches.
var DefaultPreset = PresetFantasy
