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

// Package cloud provides the hosted service clients. This file implements
// decorators that put a token-bucket rate limit in front of an image
// generator or a speech synthesizer, keeping the application inside the
// backend's request quota.
//
// Structs:
//   - QuotaAwareImageGenerator: Rate-limits GenerateImage.
//   - QuotaAwareSpeechSynthesizer: Rate-limits SynthesizeSpeech.
//
// A request waits for a token honouring its context. Nothing is retried: a
// failed generation is surfaced to the scene, where the user can retry it.
package cloud

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

func newLimiter(requestsPerSecond, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = requestsPerSecond
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// QuotaAwareImageGenerator decorates an ImageGenerator with a rate limiter.
type QuotaAwareImageGenerator struct {
	Wrapped   services.ImageGenerator
	RateLimit *rate.Limiter
}

// NewQuotaAwareImageGenerator wraps generator.
//
// Inputs:
//   - generator: The generator to decorate.
//   - requestsPerSecond: Sustained rate; zero or less disables limiting.
//   - burst: Bucket size; defaults to requestsPerSecond.
//
// Outputs:
//   - *QuotaAwareImageGenerator: The decorated generator.
func NewQuotaAwareImageGenerator(generator services.ImageGenerator, requestsPerSecond, burst int) *QuotaAwareImageGenerator {
	return &QuotaAwareImageGenerator{Wrapped: generator, RateLimit: newLimiter(requestsPerSecond, burst)}
}

func (q *QuotaAwareImageGenerator) GenerateImage(ctx context.Context, prompt string) (*model.Asset, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("image quota: %w", err)
	}
	return q.Wrapped.GenerateImage(ctx, prompt)
}

// QuotaAwareSpeechSynthesizer decorates a SpeechSynthesizer with a rate limiter.
type QuotaAwareSpeechSynthesizer struct {
	Wrapped   services.SpeechSynthesizer
	RateLimit *rate.Limiter
}

// NewQuotaAwareSpeechSynthesizer wraps synthesizer; see NewQuotaAwareImageGenerator.
func NewQuotaAwareSpeechSynthesizer(synthesizer services.SpeechSynthesizer, requestsPerSecond, burst int) *QuotaAwareSpeechSynthesizer {
	return &QuotaAwareSpeechSynthesizer{Wrapped: synthesizer, RateLimit: newLimiter(requestsPerSecond, burst)}
}

func (q *QuotaAwareSpeechSynthesizer) SynthesizeSpeech(ctx context.Context, text, voiceID string) (*model.Asset, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("speech quota: %w", err)
	}
	return q.Wrapped.SynthesizeSpeech(ctx, text, voiceID)
}
