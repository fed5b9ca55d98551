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

package commands

import (
	"errors"
	"fmt"

	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/jaycherian/prompt-to-video-live/internal/core/services"
)

// AssetRelease deletes the stored assets behind scene references that no
// scene holds any more. Its input is a []string of references; references
// that do not point into the asset store are skipped. It outputs how many
// assets were deleted.
type AssetRelease struct {
	cor.BaseCommand
	store services.AssetStore
}

// NewAssetRelease is the constructor for the AssetRelease command.
func NewAssetRelease(name string, store services.AssetStore) *AssetRelease {
	return &AssetRelease{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *AssetRelease) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	_, ok := context.Get(c.GetInputParam()).([]string)
	return ok
}

func (c *AssetRelease) Execute(context cor.Context) {
	refs := context.Get(c.GetInputParam()).([]string)

	var errs error
	deleted := 0
	for _, ref := range refs {
		id, ok := services.AssetID(ref)
		if !ok {
			continue
		}
		if err := c.store.Delete(context.GetContext(), id); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to delete asset %s: %w", id, err))
			continue
		}
		deleted++
	}
	if errs != nil {
		c.Fail(context, errs)
		return
	}
	c.Succeed(context, deleted)
}
