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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/jaycherian/prompt-to-video-live/internal/cloud"
	"github.com/jaycherian/prompt-to-video-live/internal/core/model"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
	test "github.com/jaycherian/prompt-to-video-live/internal/testutil"
)

const tName = "github.com/jaycherian/prompt-to-video-live/cmd/server/test"

var logger = otelslog.NewLogger(tName)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestServer wires the server against the test configuration; tweak may
// adjust a copy of it first.
func newTestServer(t *testing.T, tweak func(*cloud.Config)) (*StateManager, *gin.Engine) {
	t.Helper()
	config := *test.GetConfig()
	if tweak != nil {
		tweak(&config)
	}
	s, err := NewStateManager(context.Background(), &config)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, NewRouter(s)
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload *bytes.Reader
	switch b := body.(type) {
	case nil:
		payload = bytes.NewReader(nil)
	case string:
		payload = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		payload = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[map[string]string](t, w)["id"]
}

func TestCatalogRoutes(t *testing.T) {
	_, r := newTestServer(t, nil)

	w := do(r, http.MethodGet, "/api/v1/voices", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Voice](t, w), len(model.Voices))

	w = do(r, http.MethodGet, "/api/v1/themes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	themes := decode[[]model.Preset](t, w)
	require.Len(t, themes, 6)
	assert.Equal(t, model.PresetFantasy.Name, themes[0].Name)
}

func TestSessionRoutes(t *testing.T) {
	_, r := newTestServer(t, nil)
	id := createSession(t, r)
	base := "/api/v1/sessions/" + id

	w := do(r, http.MethodPost, base+"/play", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, base+"/script", map[string]any{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, base+"/script", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/script", map[string]any{"prompt": "A dragon wakes beneath the mountain"})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[services.SessionSnapshot](t, w)
	assert.Equal(t, id, snap.ID)
	assert.Len(t, snap.Scenes, model.ScenesPerScript)
	assert.Equal(t, model.PresetFantasy.Name, snap.Preset.Name)

	w = do(r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, base+"/skip/9", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, base+"/select/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/select/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[services.SessionSnapshot](t, w)
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, model.StateIdle, snap.State)

	w = do(r, http.MethodPatch, base+"/scenes/1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPatch, base+"/scenes/1", map[string]any{"voiceId": "nobody-en"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPatch, base+"/scenes/7", map[string]any{"narration": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, base+"/scenes/1", map[string]any{"narration": "The mountain trembles."})
	require.Equal(t, http.StatusOK, w.Code)
	scene := decode[model.Scene](t, w)
	assert.Equal(t, "The mountain trembles.", scene.Narration)
	assert.Empty(t, scene.AudioRef)

	w = do(r, http.MethodPost, base+"/scenes/1/audio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, base+"/scenes/1/image", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, base+"/play", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatePlaying, decode[services.SessionSnapshot](t, w).State)
	w = do(r, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatePaused, decode[services.SessionSnapshot](t, w).State)

	w = do(r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodPost, "/api/v1/sessions/unknown/play", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGeneratedAssetsAreServed(t *testing.T) {
	s, r := newTestServer(t, nil)
	id := createSession(t, r)
	w := do(r, http.MethodPost, "/api/v1/sessions/"+id+"/script", map[string]any{"prompt": "A ghost ship in the fog"})
	require.Equal(t, http.StatusOK, w.Code)

	sess, err := s.sessions.Get(id)
	require.NoError(t, err)
	var ref string
	assert.Eventually(t, func() bool {
		sc, err := sess.Store.Get(0)
		ref = sc.ImageRef
		return err == nil && sc.ImageStatus == model.StatusReady
	}, 3*time.Second, 10*time.Millisecond)
	logger.Info("image generated", "ref", ref)

	require.True(t, strings.HasPrefix(ref, services.AssetRoutePrefix))
	w = do(r, http.MethodGet, ref, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "<svg"))

	w = do(r, http.MethodGet, services.AssetRoutePrefix+"missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[DashboardStats](t, w)
	assert.Equal(t, 1, stats.Sessions.Active)
	assert.Equal(t, "memory", stats.StorageKind)
	assert.False(t, stats.HostedBackend)
	assert.Positive(t, stats.StoredAssets)
}

func TestNarrationCompleteRoute(t *testing.T) {
	s, r := newTestServer(t, func(c *cloud.Config) {
		c.Playback.WordsPerSecond = 0.01
	})
	id := createSession(t, r)
	base := "/api/v1/sessions/" + id
	sess, err := s.sessions.Get(id)
	require.NoError(t, err)

	events, unsubscribe := sess.Events.Subscribe()
	defer unsubscribe()

	w := do(r, http.MethodPost, base+"/script", map[string]any{"prompt": "A detective finds a clue", "autoplay": true})
	require.Equal(t, http.StatusOK, w.Code)

	var started *model.Narration
	timeout := time.After(3 * time.Second)
	for started == nil {
		select {
		case e := <-events:
			if e.Type == model.EventNarrationStarted {
				started = e.Narration
			}
		case <-timeout:
			t.Fatal("narration never started")
		}
	}
	assert.Equal(t, 0, started.SceneIndex)
	assert.True(t, started.Local)

	w = do(r, http.MethodPost, base+"/narration/complete", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/narration/complete", map[string]any{"index": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]bool](t, w)["matched"])

	w = do(r, http.MethodPost, base+"/narration/complete", map[string]any{"index": 0, "id": started.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["matched"])

	assert.Eventually(t, func() bool {
		_, index := sess.Sequencer.State()
		return index == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEventStream(t *testing.T) {
	_, r := newTestServer(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	id := createSession(t, r)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	waitFor := func(event string) {
		t.Helper()
		for lines.Scan() {
			if lines.Text() == "event:"+event {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", event, lines.Err())
	}

	waitFor("snapshot")
	w := do(r, http.MethodPost, "/api/v1/sessions/"+id+"/script", map[string]any{"prompt": "Two hearts under a harvest moon"})
	require.Equal(t, http.StatusOK, w.Code)
	waitFor(string(model.EventScript))
	waitFor(string(model.EventScene))
}

func TestShutdownEndsEventStreams(t *testing.T) {
	s, r := newTestServer(t, nil)
	id := createSession(t, r)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(s, ln.Addr().String())
	go func() { _ = srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event:snapshot", lines.Text())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(started), time.Second)
	logger.Info("server drained", "elapsed", time.Since(started))

	_, err = s.sessions.Get(id)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestProviderRoutes(t *testing.T) {
	_, r := newTestServer(t, nil)

	w := do(r, http.MethodPost, "/api/generate-image", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Prompt required", decode[map[string]string](t, w)["error"])

	w = do(r, http.MethodPost, "/api/generate-image", "{broken")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Image generation failed", decode[map[string]string](t, w)["error"])

	w = do(r, http.MethodPost, "/api/generate-image", map[string]any{"prompt": "a lantern in the rain"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, w)["url"], "data:image/svg+xml;base64,"))

	w = do(r, http.MethodPost, "/api/text-to-speech", map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text required", decode[map[string]string](t, w)["error"])

	w = do(r, http.MethodPost, "/api/text-to-speech", map[string]any{"text": "hello there"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["fallback"])

	w = do(r, http.MethodPost, "/api/text-to-speech", "{broken")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["fallback"])
}
