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

// Package cloud provides the hosted service clients. This file implements an
// asset store backed by a Google Cloud Storage bucket, used when generated
// assets should outlive a single process or be shared between replicas.
//
// Structs:
//   - GCSAssetStore: Stores each asset as one object named <prefix><id>.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// GCSAssetStore implements services.AssetStore on a GCS bucket. Assets are
// still served through the API route, so the bucket can stay private.
type GCSAssetStore struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

// NewGCSAssetStore returns a store writing to bucket under prefix.
func NewGCSAssetStore(client *storage.Client, bucket, prefix string) *GCSAssetStore {
	return &GCSAssetStore{Client: client, Bucket: bucket, Prefix: prefix}
}

func (g *GCSAssetStore) objectName(id string) string {
	return g.Prefix + id
}

// Put uploads the asset's bytes with its content type.
func (g *GCSAssetStore) Put(ctx context.Context, asset *model.Asset) (string, error) {
	if asset == nil || len(asset.Data) == 0 {
		return "", errors.New("gcs asset store: empty asset")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	w := g.Client.Bucket(g.Bucket).Object(g.objectName(asset.ID)).NewWriter(ctx)
	w.ContentType = asset.MIMEType
	w.Metadata = map[string]string{"kind": string(asset.Kind)}
	if _, err := w.Write(asset.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs asset store: write %s: %w", asset.ID, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs asset store: close %s: %w", asset.ID, err)
	}
	return services.AssetRef(asset.ID), nil
}

// Get downloads the asset stored under id.
func (g *GCSAssetStore) Get(ctx context.Context, id string) (*model.Asset, error) {
	r, err := g.Client.Bucket(g.Bucket).Object(g.objectName(id)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("asset %s: %w", id, services.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs asset store: read %s: %w", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs asset store: read %s: %w", id, err)
	}
	mime := r.Attrs.ContentType
	kind := model.AssetImage
	if strings.HasPrefix(mime, "audio/") {
		kind = model.AssetAudio
	}
	return &model.Asset{ID: id, Kind: kind, MIMEType: mime, Data: data}, nil
}

// Delete removes the object stored under id.
func (g *GCSAssetStore) Delete(ctx context.Context, id string) error {
	err := g.Client.Bucket(g.Bucket).Object(g.objectName(id)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs asset store: delete %s: %w", id, err)
	}
	return nil
}
