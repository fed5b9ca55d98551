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

package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/playback"
)

// ErrFakeBackend is returned by fakes told to fail.
var ErrFakeBackend = errors.New("fake backend unavailable")

// PNGHeader is a minimal PNG signature, enough for MIME sniffing.
var PNGHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// MP3Header is an ID3 tag header, enough for MIME sniffing.
var MP3Header = []byte{'I', 'D', '3', 0x03, 0, 0, 0, 0, 0, 0x0a, 0, 0, 0, 0}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FakeAssets implements playback.AssetGenerator in memory.
type FakeAssets struct {
	ImageDelay time.Duration
	AudioDelay time.Duration

	mu         sync.Mutex
	failImages int
	failAudio  int
	audioRef   string
	imageCalls int
	audioCalls []string
}

// FailNextImages makes the next n image requests fail.
func (f *FakeAssets) FailNextImages(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failImages = n
}

// FailNextAudio makes the next n audio requests fail.
func (f *FakeAssets) FailNextAudio(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAudio = n
}

// SetAudioRef makes every audio request return ref, e.g. model.LocalSpeechRef.
func (f *FakeAssets) SetAudioRef(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioRef = ref
}

func (f *FakeAssets) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := sleepCtx(ctx, f.ImageDelay); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.failImages > 0 {
		f.failImages--
		return "", ErrFakeBackend
	}
	return fmt.Sprintf("/api/v1/assets/img-%d", f.imageCalls), nil
}

func (f *FakeAssets) GenerateAudio(ctx context.Context, text, voiceID string) (string, error) {
	if err := sleepCtx(ctx, f.AudioDelay); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioCalls = append(f.audioCalls, voiceID+"|"+text)
	if f.failAudio > 0 {
		f.failAudio--
		return "", ErrFakeBackend
	}
	if f.audioRef != "" {
		return f.audioRef, nil
	}
	return fmt.Sprintf("/api/v1/assets/aud-%d", len(f.audioCalls)), nil
}

// ImageCalls returns how many image requests were made.
func (f *FakeAssets) ImageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls
}

// AudioCalls returns "voice|text" for every audio request, in order.
func (f *FakeAssets) AudioCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.audioCalls...)
}

// FakeNarrator implements playback.Narrator and records what was narrated.
// With a positive Duration each narration completes by itself; otherwise the
// test ends it with Complete.
type FakeNarrator struct {
	Duration  time.Duration
	FailLocal  bool // Local narrations end with an error instead of completing.
	FailRemote bool // Narrations of generated audio end with an error.

	mu        sync.Mutex
	active    int
	maxActive int
	started   []model.Narration
	live      []*fakePlayback
}

type fakePlayback struct {
	owner *FakeNarrator
	done  chan error
	once  sync.Once
}

func (p *fakePlayback) Done() <-chan error { return p.done }

func (p *fakePlayback) Stop() { p.finish(playback.ErrNarrationStopped) }

func (p *fakePlayback) finish(err error) {
	p.once.Do(func() {
		p.owner.mu.Lock()
		p.owner.active--
		for i, l := range p.owner.live {
			if l == p {
				p.owner.live = append(p.owner.live[:i], p.owner.live[i+1:]...)
				break
			}
		}
		p.owner.mu.Unlock()
		p.done <- err
	})
}

func (n *FakeNarrator) Narrate(_ context.Context, narration model.Narration) (playback.Playback, error) {
	p := &fakePlayback{owner: n, done: make(chan error, 1)}
	n.mu.Lock()
	n.active++
	if n.active > n.maxActive {
		n.maxActive = n.active
	}
	n.started = append(n.started, narration)
	n.live = append(n.live, p)
	n.mu.Unlock()

	var result error
	switch {
	case narration.Local && n.FailLocal:
		result = errors.New("speech synthesis unavailable")
	case !narration.Local && n.FailRemote:
		result = errors.New("audio element could not decode the source")
	}
	if n.Duration > 0 {
		time.AfterFunc(n.Duration, func() { p.finish(result) })
	} else if result != nil {
		go p.finish(result)
	}
	return p, nil
}

// Complete ends the oldest live narration normally. It reports whether one was live.
func (n *FakeNarrator) Complete() bool {
	n.mu.Lock()
	if len(n.live) == 0 {
		n.mu.Unlock()
		return false
	}
	p := n.live[0]
	n.mu.Unlock()
	p.finish(nil)
	return true
}

// Started returns every narration started so far.
func (n *FakeNarrator) Started() []model.Narration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Narration(nil), n.started...)
}

// Indices returns the scene index of every narration started so far.
func (n *FakeNarrator) Indices() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, len(n.started))
	for i, s := range n.started {
		out[i] = s.SceneIndex
	}
	return out
}

// Active returns how many narrations are live.
func (n *FakeNarrator) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// MaxActive returns the highest number of simultaneously live narrations seen.
func (n *FakeNarrator) MaxActive() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxActive
}
