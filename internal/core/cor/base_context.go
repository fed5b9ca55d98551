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

package cor

import (
	"context"
	"errors"
	"sort"
)

// BaseContext is the default Context. One is created per asset request and is
// only touched by the goroutine running that request's chain, so it carries no
// locking.
type BaseContext struct {
	data    map[string]any   // Values shared between commands.
	errors  map[string]error // Failures keyed by the command that produced them.
	context context.Context  // Cancellation and tracing for the running command.
}

// NewBaseContext returns an empty context bound to ctx.
//
// Inputs:
//   - ctx: The Go context of the caller; the chain derives command spans from it.
//
// Outputs:
//   - Context: A new, empty context object.
func NewBaseContext(ctx context.Context) Context {
	return &BaseContext{
		data:    make(map[string]any),
		errors:  make(map[string]error),
		context: ctx,
	}
}

func (c *BaseContext) SetContext(ctx context.Context) {
	c.context = ctx
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

func (c *BaseContext) Add(key string, value any) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) Get(key string) any {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// Err joins the recorded errors in command-name order so the message is stable.
func (c *BaseContext) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.errors))
	for k := range c.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, c.errors[k])
	}
	return errors.Join(errs...)
}
