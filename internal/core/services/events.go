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
	"sync"
	"sync/atomic"

	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
)

// subscriberBuffer is the per-subscriber event backlog.
const subscriberBuffer = 64

// Broadcaster fans events out to any number of subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan model.Event]struct{}
	closed  bool
	dropped atomic.Int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan model.Event]struct{})}
}

// Publish implements model.EventSink.
func (b *Broadcaster) Publish(event model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it. The channel is closed immediately if the
// broadcaster is already closed.
func (b *Broadcaster) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
