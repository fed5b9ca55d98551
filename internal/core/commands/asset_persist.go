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
// This file defines the final command of every asset chain: it turns the
// asset produced upstream into the reference a scene carries.
//
// Logic Flow:
//  1. An asset that already has a URL and no bytes (for example the
//     on-device speech marker) is passed through unchanged.
//  2. Otherwise the MIME type is sniffed from the bytes with the `filetype`
//     library when the producer did not set one. SVG is text and is not
//     recognised by magic numbers, so it is detected by its root element.
//  3. The bytes are written to the AssetStore and the returned reference is
//     the command's output.
package commands

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/h2non/filetype"

	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// AssetPersist stores an asset and outputs its reference string.
type AssetPersist struct {
	cor.BaseCommand
	store services.AssetStore
}

// NewAssetPersist is the constructor for the AssetPersist command.
func NewAssetPersist(name string, store services.AssetStore) *AssetPersist {
	return &AssetPersist{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *AssetPersist) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	_, ok := context.Get(c.GetInputParam()).(*model.Asset)
	return ok
}

func (c *AssetPersist) Execute(context cor.Context) {
	asset := context.Get(c.GetInputParam()).(*model.Asset)
	if len(asset.Data) == 0 {
		if asset.URL == "" {
			c.Fail(context, errors.New("asset has neither data nor url"))
			return
		}
		c.Succeed(context, asset.URL)
		return
	}

	if asset.MIMEType == "" {
		asset.MIMEType = SniffMIME(asset.Data)
	}
	ref, err := c.store.Put(context.GetContext(), asset)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to store %s asset: %w", asset.Kind, err))
		return
	}
	c.Succeed(context, ref)
}

// SniffMIME guesses the content type of generated media.
func SniffMIME(data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml"
	}
	return "application/octet-stream"
}
