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

package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

// DefaultMaxMemoryAssets bounds a MemoryAssetStore built with a non-positive limit.
const DefaultMaxMemoryAssets = 256

// MemoryAssetStore keeps assets in process memory. Nothing is evicted: an
// asset lives until it is deleted, which sessions do as soon as no scene
// references it. A full store refuses new assets with ErrAssetStoreFull.
type MemoryAssetStore struct {
	mu     sync.RWMutex
	max    int
	assets map[string]*model.Asset
}

// NewMemoryAssetStore returns an empty store holding at most max assets.
func NewMemoryAssetStore(max int) *MemoryAssetStore {
	if max <= 0 {
		max = DefaultMaxMemoryAssets
	}
	return &MemoryAssetStore{max: max, assets: make(map[string]*model.Asset)}
}

func (m *MemoryAssetStore) Put(_ context.Context, asset *model.Asset) (string, error) {
	if asset == nil || len(asset.Data) == 0 {
		return "", fmt.Errorf("memory asset store: empty asset")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[asset.ID]; !ok && len(m.assets) >= m.max {
		return "", fmt.Errorf("memory asset store: %d assets held: %w", len(m.assets), ErrAssetStoreFull)
	}
	m.assets[asset.ID] = asset
	return AssetRef(asset.ID), nil
}

func (m *MemoryAssetStore) Get(_ context.Context, id string) (*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
	}
	return a, nil
}

func (m *MemoryAssetStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, id)
	return nil
}

// Len returns the number of assets held.
func (m *MemoryAssetStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}
