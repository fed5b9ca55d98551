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

package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := services.NewBroadcaster()
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(model.Event{Type: model.EventState, State: model.StatePlaying, Index: 1})
	for _, ch := range []<-chan model.Event{first, second} {
		e := <-ch
		assert.Equal(t, model.EventState, e.Type)
		assert.Equal(t, 1, e.Index)
	}

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	b.Close()
	_, open = <-second
	assert.False(t, open)
	cancelSecond()

	late, _ := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := services.NewBroadcaster()
	defer b.Close()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(model.Event{Type: model.EventScene, Index: i})
	}
	assert.Equal(t, int64(100-64), b.Dropped())
}

func TestMemoryAssetStore(t *testing.T) {
	ctx := context.Background()
	m := services.NewMemoryAssetStore(2)

	_, err := m.Put(ctx, &model.Asset{Kind: model.AssetImage})
	assert.Error(t, err)

	var ids []string
	for i := 0; i < 2; i++ {
		a := &model.Asset{Kind: model.AssetAudio, MIMEType: "audio/mpeg", Data: []byte(fmt.Sprintf("clip-%d", i))}
		ref, err := m.Put(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, services.AssetRef(a.ID), ref)
		ids = append(ids, a.ID)
	}

	// A full store refuses new assets instead of evicting referenced ones.
	extra := &model.Asset{Kind: model.AssetAudio, Data: []byte("clip-2")}
	_, err = m.Put(ctx, extra)
	assert.ErrorIs(t, err, services.ErrAssetStoreFull)
	assert.Equal(t, 2, m.Len())
	for _, id := range ids {
		_, err := m.Get(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, m.Delete(ctx, ids[0]))
	require.NoError(t, m.Delete(ctx, "never-stored"))
	_, err = m.Get(ctx, ids[0])
	assert.ErrorIs(t, err, services.ErrAssetNotFound)

	ref, err := m.Put(ctx, extra)
	require.NoError(t, err)
	got, err := m.Get(ctx, extra.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("clip-2"), got.Data)
	assert.Equal(t, "/api/v1/assets/"+extra.ID, ref)
}

func TestAssetID(t *testing.T) {
	id, ok := services.AssetID(services.AssetRef("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = services.AssetID(model.LocalSpeechRef)
	assert.False(t, ok)
	_, ok = services.AssetID(services.AssetRoutePrefix)
	assert.False(t, ok)
}
