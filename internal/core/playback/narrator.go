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

package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

// ErrNarrationStopped is delivered on Done when a narration was stopped.
var ErrNarrationStopped = errors.New("narration stopped")

// RemoteNarrator voices scenes on the presentation layer. It announces each
// narration as an event and treats it as finished when the client reports
// completion or, if the client never does, after a deadline estimated from
// the narration's word count.
type RemoteNarrator struct {
	sink           model.EventSink
	wordsPerSecond float64
	slack          time.Duration

	mu     sync.Mutex
	active *remotePlayback
}

// NewRemoteNarrator returns a narrator publishing to sink.
//
// Inputs:
//   - sink: Receives narration_started / narration_stopped events.
//   - wordsPerSecond: Expected speaking rate used for the completion deadline.
//   - slack: Added to the estimate to absorb loading and client latency.
func NewRemoteNarrator(sink model.EventSink, wordsPerSecond float64, slack time.Duration) *RemoteNarrator {
	if wordsPerSecond <= 0 {
		wordsPerSecond = 2.5
	}
	if sink == nil {
		sink = model.DiscardEvents
	}
	return &RemoteNarrator{sink: sink, wordsPerSecond: wordsPerSecond, slack: slack}
}

// Deadline is the longest the narrator waits for a client to finish text.
func (n *RemoteNarrator) Deadline(text string) time.Duration {
	words := len(strings.Fields(text))
	return time.Duration(float64(words)/n.wordsPerSecond*float64(time.Second)) + n.slack
}

// Narrate announces narration and returns its handle.
func (n *RemoteNarrator) Narrate(_ context.Context, narration model.Narration) (Playback, error) {
	p := &remotePlayback{owner: n, narration: narration, done: make(chan error, 1)}
	p.mu.Lock()
	p.timer = time.AfterFunc(n.Deadline(narration.Text), func() { p.finish(nil) })
	p.mu.Unlock()

	n.mu.Lock()
	n.active = p
	n.mu.Unlock()

	n.sink.Publish(model.Event{
		Type:      model.EventNarrationStarted,
		Index:     narration.SceneIndex,
		Narration: &narration,
		Time:      time.Now(),
	})
	return p, nil
}

// Complete records the client's report that the narration of scene index
// ended. id, when non-empty, must match the narration's id; a non-empty
// errMsg completes it as a playback failure. It reports whether a live
// narration matched.
func (n *RemoteNarrator) Complete(index int, id string, errMsg string) bool {
	n.mu.Lock()
	p := n.active
	n.mu.Unlock()
	if p == nil || p.narration.SceneIndex != index || (id != "" && id != p.narration.ID) {
		return false
	}
	var err error
	if errMsg != "" {
		err = errors.New(errMsg)
	}
	return p.finish(err)
}

func (n *RemoteNarrator) clear(p *remotePlayback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active == p {
		n.active = nil
	}
}

type remotePlayback struct {
	owner     *RemoteNarrator
	narration model.Narration
	done      chan error
	once      sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

func (p *remotePlayback) Done() <-chan error {
	return p.done
}

// finish delivers err once and reports whether this call was the one that did.
func (p *remotePlayback) finish(err error) bool {
	first := false
	p.once.Do(func() {
		first = true
		p.mu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		p.mu.Unlock()
		p.owner.clear(p)
		p.done <- err
	})
	return first
}

func (p *remotePlayback) Stop() {
	if p.finish(ErrNarrationStopped) {
		p.owner.sink.Publish(model.Event{
			Type:      model.EventNarrationStopped,
			Index:     p.narration.SceneIndex,
			Narration: &p.narration,
			Time:      time.Now(),
		})
	}
}
