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

// Package main contains the API route definitions for the server. This file
// defines the statistics endpoint.
//
// Functions:
//   - Dashboard: Registers GET /stats, which reports the session counters,
//     the event stream health and which asset backends are in use.
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// DashboardStats is the body of GET /stats.
type DashboardStats struct {
	Sessions      services.SessionStats `json:"sessions"`
	StoredAssets  int                   `json:"storedAssets"` // -1 when the backend cannot count cheaply.
	StorageKind   string                `json:"storageBackend"`
	HostedBackend bool                  `json:"hostedBackend"` // False when placeholders and on-device speech are used.
}

// Dashboard configures the statistics routes under r.
//
// Inputs:
//   - r: The API group the "/stats" group is added to.
//   - s: The server state the counters are read from.
func Dashboard(r *gin.RouterGroup, s *StateManager) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			out := DashboardStats{
				Sessions:      s.sessions.Stats(),
				StoredAssets:  -1,
				StorageKind:   s.config.Storage.Backend,
				HostedBackend: s.cloud.WorkersAI != nil,
			}
			if mem, ok := s.cloud.Assets.(*services.MemoryAssetStore); ok {
				out.StoredAssets = mem.Len()
			}
			c.JSON(http.StatusOK, out)
		})
	}
}
