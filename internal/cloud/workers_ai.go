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

// Package cloud provides the hosted service clients. This file implements the
// client for the Cloudflare Workers AI REST API, which serves both the
// text-to-image model and the Deepgram Aura text-to-speech voices.
//
// Logic Flow:
//  1. Requests are POSTed as JSON to {base}/accounts/{account}/ai/run/{model}
//     with a bearer token.
//  2. An image response is a JSON envelope whose result.image field carries a
//     base64 JPEG. A non-2xx status or a missing image is an error.
//  3. A speech response is the raw MPEG audio. Anything other than a 2xx with
//     a body, including a transport failure, is reported as
//     services.ErrSpeechFallback so the caller narrates on-device instead.
package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// ErrInvalidInput is returned for an empty prompt or narration.
var ErrInvalidInput = errors.New("invalid input")

// maxErrorBody bounds how much of an error response is quoted in the error.
const maxErrorBody = 512

// WorkersAIClient calls the Workers AI models.
type WorkersAIClient struct {
	BaseURL           string
	AccountID         string
	APIToken          string
	ImageModel        string
	SpeechModelPrefix string
	ImageSteps        int
	HTTPClient        *http.Client
}

// NewWorkersAIClient builds a client from configuration.
func NewWorkersAIClient(cfg WorkersAI) *WorkersAIClient {
	return &WorkersAIClient{
		BaseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		AccountID:         cfg.AccountID,
		APIToken:          cfg.APIToken,
		ImageModel:        cfg.ImageModel,
		SpeechModelPrefix: cfg.SpeechModelPrefix,
		ImageSteps:        cfg.ImageSteps,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout()},
	}
}

type imageRequest struct {
	Prompt   string `json:"prompt"`
	NumSteps int    `json:"num_steps"`
}

type imageResponse struct {
	Result struct {
		Image string `json:"image"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type speechRequest struct {
	Text string `json:"text"`
}

// GenerateImage renders prompt with the configured text-to-image model.
//
// Inputs:
//   - ctx: Cancels the HTTP request.
//   - prompt: The image prompt; must not be blank.
//
// Outputs:
//   - *model.Asset: A JPEG image asset.
//   - error: ErrInvalidInput, a transport error, or a backend error.
func (c *WorkersAIClient) GenerateImage(ctx context.Context, prompt string) (*model.Asset, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("generate image: %w: prompt required", ErrInvalidInput)
	}
	resp, err := c.post(ctx, c.ImageModel, imageRequest{Prompt: prompt, NumSteps: c.ImageSteps})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("generate image: workers ai error: %d %s", resp.StatusCode, readSnippet(resp.Body))
	}
	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("generate image: decode response: %w", err)
	}
	if out.Result.Image == "" {
		if len(out.Errors) > 0 {
			return nil, fmt.Errorf("generate image: no image in response: %s", out.Errors[0].Message)
		}
		return nil, errors.New("generate image: no image in response")
	}
	data, err := base64.StdEncoding.DecodeString(out.Result.Image)
	if err != nil {
		return nil, fmt.Errorf("generate image: decode image: %w", err)
	}
	return &model.Asset{Kind: model.AssetImage, MIMEType: "image/jpeg", Data: data}, nil
}

// SynthesizeSpeech speaks text with voiceID (model.DefaultVoiceID when empty).
//
// Inputs:
//   - ctx: Cancels the HTTP request.
//   - text: The narration; must not be blank.
//   - voiceID: A voice id such as "zeus-en".
//
// Outputs:
//   - *model.Asset: An audio asset.
//   - error: ErrInvalidInput, or services.ErrSpeechFallback for any backend failure.
func (c *WorkersAIClient) SynthesizeSpeech(ctx context.Context, text, voiceID string) (*model.Asset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesize speech: %w: text required", ErrInvalidInput)
	}
	if voiceID == "" {
		voiceID = model.DefaultVoiceID
	}
	resp, err := c.post(ctx, c.SpeechModelPrefix+voiceID, speechRequest{Text: text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("synthesize speech: %w", err)
		}
		return nil, fmt.Errorf("synthesize speech: %w: %v", services.ErrSpeechFallback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("synthesize speech: %w: status %d %s", services.ErrSpeechFallback, resp.StatusCode, readSnippet(resp.Body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("synthesize speech: %w: empty audio", services.ErrSpeechFallback)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/") {
		mime = "audio/mpeg"
	}
	return &model.Asset{Kind: model.AssetAudio, MIMEType: mime, Data: data}, nil
}

func (c *WorkersAIClient) post(ctx context.Context, modelPath string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.BaseURL, c.AccountID, modelPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTPClient.Do(req)
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
