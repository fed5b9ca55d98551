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

package model

import "encoding/base64"

// These objects are produced by the asset providers and passed between the
// commands of the asset workflows. They are transient: only the reference the
// asset store hands back is kept on the Scene.

// AssetKind distinguishes the two asset types a scene owns.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetAudio AssetKind = "audio"
)

// Asset is a generated image or narration. Either Data holds the raw bytes
// (to be persisted by the asset store) or URL already addresses the content.
type Asset struct {
	ID       string    `json:"id"`
	Kind     AssetKind `json:"kind"`
	MIMEType string    `json:"mimeType"`
	Data     []byte    `json:"-"`
	URL      string    `json:"url,omitempty"`
}

// DataURL renders the asset inline as an RFC 2397 data URL.
func (a *Asset) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
