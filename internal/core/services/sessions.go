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

// Package services contains the session-level business logic of the service.
// This file, `sessions.go`, defines the SessionService, which owns one scene
// store, one playback sequencer, one remote narrator and one event stream per
// browser session.
//
// Logic Flow for Generate:
//  1. The session's sequencer is stopped, so nothing from the previous script
//     keeps talking.
//  2. The premise is classified by the theme detector and expanded into four
//     scenes by the script synthesizer.
//  3. The scene store is replaced atomically, which also invalidates every
//     in-flight generation for the old script and releases the old script's
//     stored assets.
//  4. Image and audio generation is requested for every scene.
//  5. When autoplay is set, playback starts from scene 0.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/playback"
	"github.com/jaycherian/prompt-to-video-live/internal/core/script"
	"github.com/jaycherian/prompt-to-video-live/internal/core/store"
	"github.com/jaycherian/prompt-to-video-live/internal/core/theme"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyPrompt is returned by Generate for a blank premise.
	ErrEmptyPrompt = errors.New("prompt required")
)

// SessionOptions configures every session the service creates.
type SessionOptions struct {
	TTL            time.Duration    // Idle sessions older than this are closed; zero disables expiry.
	Playback       playback.Options // Wait bounds for the sequencer.
	WordsPerSecond float64          // Speaking rate for the narration deadline.
	NarrationSlack time.Duration    // Extra time granted to a client to finish a narration.
}

// Session is one browser session.
type Session struct {
	ID        string
	Store     *store.SceneStore
	Sequencer *playback.Sequencer
	Narrator  *playback.RemoteNarrator
	Events    *Broadcaster
	Created   time.Time

	lastSeen atomic.Int64
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SessionSnapshot is the JSON view of a session.
type SessionSnapshot struct {
	ID         string              `json:"id"`
	Prompt     string              `json:"prompt"`
	Preset     model.Preset        `json:"preset"`
	Generation uint64              `json:"generation"`
	Scenes     []model.Scene       `json:"scenes"`
	Index      int                 `json:"index"`
	State      model.PlaybackState `json:"state"`
}

// Snapshot returns a consistent-enough view for rendering: the scene list is
// copied atomically; the playback state is read separately.
func (s *Session) Snapshot() SessionSnapshot {
	snap := s.Store.Snapshot()
	state, index := s.Sequencer.State()
	return SessionSnapshot{
		ID:         s.ID,
		Prompt:     snap.Prompt,
		Preset:     snap.Preset,
		Generation: snap.Generation,
		Scenes:     snap.Scenes,
		Index:      index,
		State:      state,
	}
}

func (s *Session) close() {
	s.Sequencer.Close()
	s.Store.Discard()
	s.Events.Close()
}

// releaseTimeout bounds one hand-off of released references to the asset store.
const releaseTimeout = 10 * time.Second

// releaseWith adapts an AssetReleaser to the scene store's release hook.
func releaseWith(r AssetReleaser) store.ReleaseFunc {
	return func(refs []string) {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		r.ReleaseAssets(ctx, refs...)
	}
}

// SessionStats are the counters served by the stats endpoint.
type SessionStats struct {
	Active        int   `json:"active"`
	Created       int64 `json:"created"`
	Expired       int64 `json:"expired"`
	Subscribers   int   `json:"subscribers"`
	DroppedEvents int64 `json:"droppedEvents"`
}

// SessionService creates, finds and expires sessions.
type SessionService struct {
	assets playback.AssetGenerator
	opts   SessionOptions

	mu       sync.RWMutex
	sessions map[string]*Session

	created atomic.Int64
	expired atomic.Int64
}

// NewSessionService returns an empty service whose sessions generate assets with assets.
//
// Inputs:
//   - assets: The asset pipeline shared by every session.
//   - opts: Session-wide settings.
//
// Outputs:
//   - *SessionService: The service.
func NewSessionService(assets playback.AssetGenerator, opts SessionOptions) *SessionService {
	return &SessionService{assets: assets, opts: opts, sessions: make(map[string]*Session)}
}

// Create starts a new, empty session.
func (s *SessionService) Create() *Session {
	events := NewBroadcaster()
	scenes := store.New(events)
	if r, ok := s.assets.(AssetReleaser); ok {
		scenes.OnRelease(releaseWith(r))
	}
	narrator := playback.NewRemoteNarrator(events, s.opts.WordsPerSecond, s.opts.NarrationSlack)
	sess := &Session{
		ID:        uuid.NewString(),
		Store:     scenes,
		Sequencer: playback.NewSequencer(scenes, s.assets, narrator, events, s.opts.Playback),
		Narrator:  narrator,
		Events:    events,
		Created:   time.Now(),
	}
	sess.Touch()

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.created.Add(1)

	slog.Info("session created", "session", sess.ID)
	return sess
}

// Get returns the session with id and marks it as used.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	sess.Touch()
	return sess, nil
}

// Delete closes and forgets the session with id.
func (s *SessionService) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	sess.close()
	slog.Info("session deleted", "session", id)
	return nil
}

// Generate replaces the session's script with one synthesized from prompt.
//
// Inputs:
//   - id: The session id.
//   - prompt: The premise; surrounding whitespace is ignored.
//   - autoplay: Start playback from the first scene once assets are requested.
//
// Outputs:
//   - SessionSnapshot: The session after the new script was installed.
//   - error: ErrSessionNotFound, ErrEmptyPrompt, or a playback error.
func (s *SessionService) Generate(id string, prompt string, autoplay bool) (SessionSnapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return SessionSnapshot{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return SessionSnapshot{}, ErrEmptyPrompt
	}

	sess.Sequencer.Stop()
	preset := theme.Detect(prompt)
	generation := sess.Store.Replace(prompt, preset, script.Synthesize(prompt, preset))
	slog.Info("script generated", "session", id, "preset", preset.Name, "generation", generation)

	sess.Sequencer.RequestAll()
	if autoplay {
		if err := sess.Sequencer.Play(); err != nil {
			return sess.Snapshot(), err
		}
	}
	return sess.Snapshot(), nil
}

// ExpireIdle closes every session not used since before now minus the TTL
// and returns how many were closed.
func (s *SessionService) ExpireIdle(now time.Time) int {
	if s.opts.TTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.opts.TTL)

	var stale []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.close()
		slog.Info("session expired", "session", sess.ID)
	}
	s.expired.Add(int64(len(stale)))
	return len(stale)
}

// Run expires idle sessions periodically until ctx is done.
func (s *SessionService) Run(ctx context.Context) {
	if s.opts.TTL <= 0 {
		return
	}
	interval := s.opts.TTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.ExpireIdle(now)
		}
	}
}

// Stats returns the service counters.
func (s *SessionService) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := SessionStats{
		Active:  len(s.sessions),
		Created: s.created.Load(),
		Expired: s.expired.Load(),
	}
	for _, sess := range s.sessions {
		stats.Subscribers += sess.Events.Subscribers()
		stats.DroppedEvents += sess.Events.Dropped()
	}
	return stats
}

// Close closes every session.
func (s *SessionService) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
}
