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

package cloud

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// placeholderCaptionRunes is how much of the prompt is printed on a placeholder.
const placeholderCaptionRunes = 40

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="512" height="512" viewBox="0 0 512 512">
  <rect width="512" height="512" fill="#1a1a2e"/>
  <circle cx="256" cy="200" r="120" fill="#e94560" opacity="0.6"/>
  <circle cx="180" cy="300" r="80" fill="#0f3460" opacity="0.5"/>
  <circle cx="350" cy="280" r="100" fill="#533483" opacity="0.4"/>
  <text x="256" y="460" text-anchor="middle" fill="white" font-size="16" opacity="0.7">%s</text>
</svg>`

// PlaceholderImages draws a procedural SVG instead of calling an image model.
// It is used when no Workers AI credentials are configured.
type PlaceholderImages struct{}

func (PlaceholderImages) GenerateImage(_ context.Context, prompt string) (*model.Asset, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("placeholder image: %w: prompt required", ErrInvalidInput)
	}
	caption := []rune(prompt)
	if len(caption) > placeholderCaptionRunes {
		caption = caption[:placeholderCaptionRunes]
	}
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(string(caption))); err != nil {
		return nil, fmt.Errorf("placeholder image: %w", err)
	}
	return &model.Asset{
		Kind:     model.AssetImage,
		MIMEType: "image/svg+xml",
		Data:     []byte(fmt.Sprintf(placeholderSVG, escaped.String())),
	}, nil
}

// DisabledSpeech always asks for on-device speech. It is used when no Workers
// AI credentials are configured.
type DisabledSpeech struct{}

func (DisabledSpeech) SynthesizeSpeech(_ context.Context, text, _ string) (*model.Asset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech: %w: text required", ErrInvalidInput)
	}
	return nil, fmt.Errorf("speech: %w: no credentials configured", services.ErrSpeechFallback)
}
