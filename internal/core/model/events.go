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

// Package model defines the core data structures for the application. This
// file contains the playback state and the events published to the
// presentation layer as the sequencer and the scene store change.
package model

import "time"

// PlaybackState is the sequencer's session state.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// EventType names the kind of change an Event reports.
type EventType string

const (
	EventScript           EventType = "script"            // A new script replaced the scene list.
	EventState            EventType = "state"             // Playback state or current index changed.
	EventScene            EventType = "scene"             // One scene's fields or asset status changed.
	EventNarrationStarted EventType = "narration_started" // The client should start playing Narration.
	EventNarrationStopped EventType = "narration_stopped" // The client must stop the narration for Index.
)

// Narration is everything a client needs to voice one scene.
type Narration struct {
	ID         string `json:"id"` // Identifies this playback; echoed back on completion.
	SceneIndex int    `json:"sceneIndex"`
	Text       string `json:"text"`
	VoiceID    string `json:"voiceId"`
	AudioRef   string `json:"audioRef,omitempty"`
	Local      bool   `json:"local"` // Speak Text with on-device synthesis instead of AudioRef.
}

// Event is a single change notification.
type Event struct {
	Type      EventType     `json:"type"`
	Index     int           `json:"index"`
	State     PlaybackState `json:"state,omitempty"`
	Scene     *Scene        `json:"scene,omitempty"`
	Scenes    []Scene       `json:"scenes,omitempty"`
	Narration *Narration    `json:"narration,omitempty"`
	Time      time.Time     `json:"time"`
}

// EventSink receives events. Implementations must not block.
type EventSink interface {
	Publish(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Publish calls f(event).
func (f EventSinkFunc) Publish(event Event) { f(event) }

// DiscardEvents is an EventSink that drops everything.
var DiscardEvents EventSink = EventSinkFunc(func(Event) {})
