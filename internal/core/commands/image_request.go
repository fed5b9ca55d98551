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

// Package commands provides the concrete commands of the asset workflows.
// This file defines the command that asks the image backend for a scene
// illustration.
//
// Logic Flow:
//  1. The image prompt (a string) is read from the command's input key.
//  2. The configured ImageGenerator renders it.
//  3. The resulting *model.Asset is written to the output key for the
//     persist command; a failure is recorded against the command.
package commands

import (
	"fmt"

	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// ImageRequest renders an image prompt into an image asset.
type ImageRequest struct {
	cor.BaseCommand
	generator services.ImageGenerator
}

// NewImageRequest is the constructor for the ImageRequest command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - generator: The image backend.
//
// Outputs:
//   - *ImageRequest: A pointer to the newly instantiated command.
func NewImageRequest(name string, generator services.ImageGenerator) *ImageRequest {
	return &ImageRequest{BaseCommand: *cor.NewBaseCommand(name), generator: generator}
}

// IsExecutable requires a string prompt.
func (c *ImageRequest) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	_, ok := context.Get(c.GetInputParam()).(string)
	return ok
}

func (c *ImageRequest) Execute(context cor.Context) {
	prompt := context.Get(c.GetInputParam()).(string)
	asset, err := c.generator.GenerateImage(context.GetContext(), prompt)
	if err != nil {
		c.Fail(context, fmt.Errorf("image generation failed: %w", err))
		return
	}
	if asset.Kind == "" {
		asset.Kind = model.AssetImage
	}
	c.Succeed(context, asset)
}
