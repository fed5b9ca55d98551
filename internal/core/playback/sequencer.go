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

// Package playback drives ordered, narrated playback of a session's scenes.
//
// Logic Flow:
//  1. Play, SkipTo and Select start a "run": a goroutine owning a cancellable
//     context and a run id. Starting a run always cancels the previous one and
//     stops the live narration first, so at most one run and one playback
//     handle exist at any moment.
//  2. A run walks the scenes from its start index. For each scene it publishes
//     the new index, requests the image if it is neither ready nor generating,
//     waits (bounded) for it to settle, obtains the narration (a ready audio
//     reference, a bounded wait on an in-flight synthesis, a fresh synthesis,
//     or on-device speech), starts it, and waits for it to end. Completion and
//     playback failure both move on to the next scene; a failure also marks the
//     scene's audio as error. Running past the last scene returns the session
//     to Idle.
//  3. Every wait selects on the run's context, so Pause and SkipTo take effect
//     at the next suspension point. A narration is only ever started while
//     holding the sequencer lock and after re-checking that the run is still
//     current, which is what keeps a stale run from talking over a new one.
//  4. Asset generation runs on the sequencer's background context and is not
//     cancelled by Pause or SkipTo. Results are applied to the scene store
//     with the ticket issued at request time, which discards anything that no
//     longer applies.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrSceneOutOfRange is the store's sentinel, returned by commands given a bad index.
	ErrSceneOutOfRange = store.ErrSceneOutOfRange
	// ErrNoScenes is returned by Play when there is no script.
	ErrNoScenes = errors.New("no scenes to play")
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("sequencer closed")

	errStaleRun = errors.New("run superseded")
)

const meterName = "github.com/jaycherian/prompt-to-video-live/playback"

// AssetGenerator produces a scene asset and returns the reference to store on
// the scene. A speech backend that asks for on-device synthesis is reported
// as a successful model.LocalSpeechRef reference.
type AssetGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	GenerateAudio(ctx context.Context, text, voiceID string) (string, error)
}

// Playback is the handle of one narration. Done yields exactly one value: nil
// on natural completion, an error if playback failed or was stopped. Stop is
// idempotent.
type Playback interface {
	Done() <-chan error
	Stop()
}

// Narrator starts narrations. Narrate is called with the sequencer lock held
// and must not block.
type Narrator interface {
	Narrate(ctx context.Context, narration model.Narration) (Playback, error)
}

// Options bounds the sequencer's waits.
type Options struct {
	PollInterval time.Duration // Re-check period while an asset is generating.
	MaxImageWait time.Duration // Give up waiting for an image after this long.
	MaxAudioWait time.Duration // Give up waiting for in-flight audio after this long.
}

// DefaultOptions returns the waits used when none are configured.
func DefaultOptions() Options {
	return Options{
		PollInterval: 300 * time.Millisecond,
		MaxImageWait: 60 * time.Second,
		MaxAudioWait: 30 * time.Second,
	}
}

// Sequencer is the explicit playback state machine of one session.
type Sequencer struct {
	store    *store.SceneStore
	assets   AssetGenerator
	narrator Narrator
	sink     model.EventSink
	opts     Options

	mu     sync.Mutex
	state  model.PlaybackState
	index  int
	runID  uint64
	cancel context.CancelFunc // Cancels the current run; nil when none.
	handle Playback           // The single live narration, or nil.
	closed bool

	bg       context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	played    metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewSequencer wires a sequencer to its store, asset generator and narrator.
//
// Inputs:
//   - scenes: The session's scene store.
//   - assets: Produces images and narration audio.
//   - narrator: Starts narrations on the presentation layer.
//   - sink: Receives state events; nil discards them.
//   - opts: Wait bounds; zero fields take DefaultOptions values.
//
// Outputs:
//   - *Sequencer: An idle sequencer at index 0.
func NewSequencer(scenes *store.SceneStore, assets AssetGenerator, narrator Narrator, sink model.EventSink, opts Options) *Sequencer {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxImageWait <= 0 {
		opts.MaxImageWait = def.MaxImageWait
	}
	if opts.MaxAudioWait <= 0 {
		opts.MaxAudioWait = def.MaxAudioWait
	}
	if sink == nil {
		sink = model.DiscardEvents
	}

	meter := otel.Meter(meterName)
	played, err := meter.Int64Counter("playback.counter.narrations")
	if err != nil {
		slog.Error("failed to create narration counter", "error", err)
	}
	fallbacks, err := meter.Int64Counter("playback.counter.local_speech")
	if err != nil {
		slog.Error("failed to create local speech counter", "error", err)
	}

	bg, bgCancel := context.WithCancel(context.Background())
	return &Sequencer{
		store:     scenes,
		assets:    assets,
		narrator:  narrator,
		sink:      sink,
		opts:      opts,
		state:     model.StateIdle,
		bg:        bg,
		bgCancel:  bgCancel,
		played:    played,
		fallbacks: fallbacks,
	}
}

// State returns the playback state and the current scene index.
func (s *Sequencer) State() (model.PlaybackState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.index
}

// Play starts playback from the current index. It is a no-op while playing.
func (s *Sequencer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n := s.store.Len()
	if n == 0 {
		return ErrNoScenes
	}
	if s.state == model.StatePlaying {
		return nil
	}
	if s.index >= n {
		s.index = 0
	}
	s.startRunLocked(s.index)
	return nil
}

// Pause stops the live narration and the run, keeping the current index.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != model.StatePlaying {
		return nil
	}
	s.haltLocked()
	s.state = model.StatePaused
	s.publishStateLocked()
	return nil
}

// SkipTo stops the live narration and plays from index. An out-of-range index
// is rejected and leaves the state untouched.
func (s *Sequencer) SkipTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.index = index
	s.startRunLocked(index)
	return nil
}

// Select moves the current index. Playback restarts from index only when the
// sequencer is playing.
func (s *Sequencer) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.index = index
	if s.state == model.StatePlaying {
		s.startRunLocked(index)
		return nil
	}
	s.publishStateLocked()
	return nil
}

// Stop ends playback and rewinds to the first scene. It is used before a new
// script replaces the scene list.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
	s.state = model.StateIdle
	s.index = 0
	if !s.closed {
		s.publishStateLocked()
	}
}

// UpdateScene applies an edit to one scene. Narration and voice changes
// invalidate the scene's audio so it is synthesized again before it is played.
func (s *Sequencer) UpdateScene(index int, patch model.ScenePatch) (model.Scene, error) {
	return s.store.Update(index, patch)
}

// Close stops playback, cancels background generation and waits for every
// goroutine the sequencer started.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.haltLocked()
	s.state = model.StateIdle
	s.bgCancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sequencer) checkIndex(index int) error {
	if n := s.store.Len(); index < 0 || index >= n {
		return fmt.Errorf("scene %d of %d: %w", index, n, ErrSceneOutOfRange)
	}
	return nil
}

// haltLocked cancels the current run and stops the live narration.
func (s *Sequencer) haltLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopHandleLocked()
}

func (s *Sequencer) stopHandleLocked() {
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
}

func (s *Sequencer) startRunLocked(from int) {
	s.haltLocked()
	s.runID++
	ctx, cancel := context.WithCancel(s.bg)
	s.cancel = cancel
	s.state = model.StatePlaying
	s.publishStateLocked()

	s.wg.Add(1)
	go s.run(ctx, s.runID, from)
}

func (s *Sequencer) publishStateLocked() {
	s.sink.Publish(model.Event{Type: model.EventState, State: s.state, Index: s.index, Time: time.Now()})
}

// enter makes index current for run id. It reports false when the run was superseded.
func (s *Sequencer) enter(id uint64, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != id || s.state != model.StatePlaying {
		return false
	}
	if s.index != index {
		s.index = index
		s.publishStateLocked()
	}
	return true
}

// finish returns the session to Idle after a run walked past the last scene.
func (s *Sequencer) finish(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != id || s.state != model.StatePlaying {
		return
	}
	s.cancel()
	s.cancel = nil
	s.state = model.StateIdle
	s.publishStateLocked()
}

// run is the advance loop of one run.
func (s *Sequencer) run(ctx context.Context, id uint64, from int) {
	defer s.wg.Done()
	log := slog.With("run", id)

	for i := from; ; i++ {
		if ctx.Err() != nil {
			return
		}
		if i >= s.store.Len() {
			log.Info("playback reached the end of the script")
			s.finish(id)
			return
		}
		if !s.enter(id, i) {
			return
		}

		if err := s.awaitImage(ctx, i); err != nil {
			return
		}
		narration, revision, err := s.prepareNarration(ctx, i)
		if err != nil {
			return
		}

		pb, err := s.startNarration(ctx, id, narration)
		if errors.Is(err, errStaleRun) {
			return
		}
		if err != nil {
			log.Warn("narration failed to start", "scene", i, "error", err)
			s.recordPlaybackFailure(i, revision, narration, err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case perr := <-pb.Done():
			s.release(pb)
			if ctx.Err() != nil || errors.Is(perr, ErrNarrationStopped) {
				return
			}
			if perr != nil {
				log.Warn("narration playback failed", "scene", i, "error", perr)
				s.recordPlaybackFailure(i, revision, narration, perr)
			}
		}
	}
}

// awaitImage is the image gate: it requests the image when it is neither
// ready nor generating, then polls until it settles, the wait bound passes,
// or ctx ends. Only a cancelled ctx is an error.
func (s *Sequencer) awaitImage(ctx context.Context, index int) error {
	sc, err := s.store.Get(index)
	if err != nil {
		return err
	}
	if sc.ImageStatus == model.StatusIdle || sc.ImageStatus == model.StatusError {
		if _, err := s.requestImage(index); err != nil && !errors.Is(err, store.ErrGenerating) {
			slog.Warn("image request failed", "scene", index, "error", err)
		}
	}
	return s.awaitSettled(ctx, index, s.opts.MaxImageWait, func(sc model.Scene) model.AssetStatus { return sc.ImageStatus })
}

// prepareNarration decides what to play for the scene at index.
func (s *Sequencer) prepareNarration(ctx context.Context, index int) (model.Narration, uint64, error) {
	sc, err := s.store.Get(index)
	if err != nil {
		return model.Narration{}, 0, err
	}

	if !usableAudio(sc) {
		if sc.AudioStatus != model.StatusGenerating {
			done, err := s.requestAudio(index)
			if err == nil {
				select {
				case <-ctx.Done():
					return model.Narration{}, 0, ctx.Err()
				case <-done:
				}
			}
		}
		if err := s.awaitSettled(ctx, index, s.opts.MaxAudioWait, func(sc model.Scene) model.AssetStatus { return sc.AudioStatus }); err != nil {
			return model.Narration{}, 0, err
		}
		if sc, err = s.store.Get(index); err != nil {
			return model.Narration{}, 0, err
		}
	}

	n := model.Narration{
		ID:         uuid.NewString(),
		SceneIndex: index,
		Text:       sc.Narration,
		VoiceID:    sc.VoiceID,
	}
	if usableAudio(sc) && !sc.UsesLocalSpeech() {
		n.AudioRef = sc.AudioRef
	} else {
		n.Local = true
	}
	return n, sc.AudioRevision, nil
}

func usableAudio(sc model.Scene) bool {
	return sc.AudioStatus == model.StatusReady && sc.AudioRef != ""
}

// awaitSettled polls the status picked by status until it leaves generating,
// timeout passes, or ctx ends.
func (s *Sequencer) awaitSettled(ctx context.Context, index int, timeout time.Duration, status func(model.Scene) model.AssetStatus) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		sc, err := s.store.Get(index)
		if err != nil {
			return err
		}
		if status(sc) != model.StatusGenerating {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			slog.Warn("gave up waiting for scene asset", "scene", index, "timeout", timeout)
			return nil
		case <-ticker.C:
		}
	}
}

// startNarration tears down the previous handle and starts n, provided run id
// is still current.
func (s *Sequencer) startNarration(ctx context.Context, id uint64, n model.Narration) (Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != id || s.state != model.StatePlaying || ctx.Err() != nil {
		return nil, errStaleRun
	}
	s.stopHandleLocked()

	pb, err := s.narrator.Narrate(ctx, n)
	if err != nil {
		return nil, err
	}
	s.handle = pb

	attrs := metric.WithAttributes(attribute.Bool("local", n.Local))
	if s.played != nil {
		s.played.Add(ctx, 1, attrs)
	}
	if n.Local && s.fallbacks != nil {
		s.fallbacks.Add(ctx, 1)
	}
	return pb, nil
}

func (s *Sequencer) release(pb Playback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == pb {
		s.handle = nil
	}
}

// recordPlaybackFailure marks the scene's audio as failed. Generated audio
// that could not be played is no longer usable, so the next pass over the
// scene synthesizes it again.
func (s *Sequencer) recordPlaybackFailure(index int, revision uint64, n model.Narration, cause error) {
	reason := fmt.Sprintf("audio playback failed: %v", cause)
	if n.Local {
		reason = fmt.Sprintf("local speech failed: %v", cause)
	}
	if _, err := s.store.FailAudio(index, revision, reason); err != nil && !errors.Is(err, store.ErrStaleResult) {
		slog.Warn("failed to record speech failure", "scene", index, "error", err)
	}
}
