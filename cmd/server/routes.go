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

package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/playback"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
	"github.com/jaycherian/prompt-to-video-live/internal/core/store"
)

// keepAliveInterval is how often an idle event stream receives a ping.
const keepAliveInterval = 15 * time.Second

type scriptRequest struct {
	Prompt   string `json:"prompt"`
	Autoplay bool   `json:"autoplay"`
}

type completionRequest struct {
	Index *int   `json:"index"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// statusFor maps the application's sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrAssetNotFound),
		errors.Is(err, playback.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSceneOutOfRange),
		errors.Is(err, store.ErrInvalidVoice),
		errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, cloud.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrNoScenes):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// session resolves the :id parameter.
func session(c *gin.Context, s *StateManager) (*services.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return sess, true
}

// sceneIndex parses the :index parameter.
func sceneIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scene index must be an integer"})
		return 0, false
	}
	return index, true
}

// CatalogRouter serves the fixed voice and theme catalogs.
func CatalogRouter(r *gin.RouterGroup) {
	r.GET("/voices", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.Voices)
	})
	r.GET("/themes", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.Presets)
	})
}

// SessionRouter sets up the session, playback and scene editing routes.
func SessionRouter(r *gin.RouterGroup, s *StateManager) {
	sessions := r.Group("/sessions")

	sessions.POST("", func(c *gin.Context) {
		sess := s.sessions.Create()
		c.JSON(http.StatusCreated, gin.H{"id": sess.ID})
	})

	sessions.GET("/:id", func(c *gin.Context) {
		if sess, ok := session(c, s); ok {
			c.JSON(http.StatusOK, sess.Snapshot())
		}
	})

	sessions.DELETE("/:id", func(c *gin.Context) {
		if err := s.sessions.Delete(c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	sessions.POST("/:id/script", func(c *gin.Context) {
		var req scriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		snap, err := s.sessions.Generate(c.Param("id"), req.Prompt, req.Autoplay)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	// Playback commands reply with the session snapshot after the command.
	command := func(run func(*services.Session) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			sess, ok := session(c, s)
			if !ok {
				return
			}
			if err := run(sess); err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, sess.Snapshot())
		}
	}
	indexed := func(run func(*services.Session, int) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			index, ok := sceneIndex(c)
			if !ok {
				return
			}
			command(func(sess *services.Session) error { return run(sess, index) })(c)
		}
	}

	sessions.POST("/:id/play", command(func(sess *services.Session) error { return sess.Sequencer.Play() }))
	sessions.POST("/:id/pause", command(func(sess *services.Session) error { return sess.Sequencer.Pause() }))
	sessions.POST("/:id/stop", command(func(sess *services.Session) error {
		sess.Sequencer.Stop()
		return nil
	}))
	sessions.POST("/:id/skip/:index", indexed(func(sess *services.Session, i int) error { return sess.Sequencer.SkipTo(i) }))
	sessions.POST("/:id/select/:index", indexed(func(sess *services.Session, i int) error { return sess.Sequencer.Select(i) }))

	sessions.PATCH("/:id/scenes/:index", func(c *gin.Context) {
		index, ok := sceneIndex(c)
		if !ok {
			return
		}
		var patch model.ScenePatch
		if err := c.ShouldBindJSON(&patch); err != nil || patch.Empty() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "expected narration, imagePrompt or voiceId"})
			return
		}
		sess, ok := session(c, s)
		if !ok {
			return
		}
		scene, err := sess.Sequencer.UpdateScene(index, patch)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, scene)
	})

	sessions.POST("/:id/scenes/:index/image", indexed(func(sess *services.Session, i int) error {
		return sess.Sequencer.RequestSceneImage(i)
	}))
	sessions.POST("/:id/scenes/:index/audio", indexed(func(sess *services.Session, i int) error {
		return sess.Sequencer.RegenerateAudio(i)
	}))

	sessions.POST("/:id/narration/complete", func(c *gin.Context) {
		var req completionRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Index == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "index required"})
			return
		}
		sess, ok := session(c, s)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"matched": sess.Narrator.Complete(*req.Index, req.ID, req.Error)})
	})

	sessions.GET("/:id/events", func(c *gin.Context) {
		sess, ok := session(c, s)
		if !ok {
			return
		}
		events, unsubscribe := sess.Events.Subscribe()
		defer unsubscribe()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		greeted := false
		c.Stream(func(w io.Writer) bool {
			if !greeted {
				greeted = true
				c.SSEvent("snapshot", sess.Snapshot())
				return true
			}
			select {
			case <-c.Request.Context().Done():
				return false
			case <-keepAlive.C:
				c.SSEvent("ping", time.Now().UTC())
				return true
			case event, open := <-events:
				if !open {
					return false
				}
				sess.Touch()
				c.SSEvent(string(event.Type), event)
				return true
			}
		})
	})
}

// AssetRouter serves generated images and audio.
func AssetRouter(r *gin.RouterGroup, s *StateManager) {
	r.GET("/assets/:id", func(c *gin.Context) {
		asset, err := s.cloud.Assets.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, asset.MIMEType, asset.Data)
	})
}

// ProviderRouter exposes the image and speech backends directly, for
// clients that drive playback themselves.
func ProviderRouter(r *gin.RouterGroup, s *StateManager) {
	r.POST("/generate-image", func(c *gin.Context) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Image generation failed"})
			return
		}
		if req.Prompt == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt required"})
			return
		}
		asset, err := s.cloud.Images.GenerateImage(c.Request.Context(), req.Prompt)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Image generation error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Image generation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": asset.DataURL()})
	})

	r.POST("/text-to-speech", func(c *gin.Context) {
		var req struct {
			Text    string `json:"text"`
			VoiceID string `json:"voiceId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "TTS error", "error", err)
			c.JSON(http.StatusOK, gin.H{"fallback": true})
			return
		}
		if req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Text required"})
			return
		}
		if req.VoiceID == "" {
			req.VoiceID = model.DefaultVoiceID
		}
		asset, err := s.cloud.Speech.SynthesizeSpeech(c.Request.Context(), req.Text, req.VoiceID)
		if err != nil {
			if !errors.Is(err, services.ErrSpeechFallback) {
				slog.WarnContext(c.Request.Context(), "TTS error", "error", err)
			}
			c.JSON(http.StatusOK, gin.H{"fallback": true})
			return
		}
		c.Data(http.StatusOK, "audio/mpeg", asset.Data)
	})
}
