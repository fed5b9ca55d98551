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

package cor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jaycherian/prompt-to-video-live/internal/core/cor"
	"github.com/stretchr/testify/assert"
)

// upper is a test command that upper-cases its string input.
type upper struct {
	cor.BaseCommand
	calls int
}

func newUpper(name string) *upper {
	return &upper{BaseCommand: *cor.NewBaseCommand(name)}
}

func (u *upper) Execute(context cor.Context) {
	u.calls++
	u.Succeed(context, strings.ToUpper(context.Get(u.GetInputParam()).(string))+"!")
}

// failing always records an error.
type failing struct {
	cor.BaseCommand
}

func (f *failing) Execute(context cor.Context) {
	f.Fail(context, errors.New("boom"))
}

func TestChainPipesOutputToNextInput(t *testing.T) {
	first, second := newUpper("first"), newUpper("second")
	chain := cor.NewBaseChain("pipe").AddCommand(first).AddCommand(second)

	chCtx := cor.NewBaseContext(context.Background())
	chCtx.Add(cor.CtxIn, "dragon")
	chain.Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	assert.NoError(t, chCtx.Err())
	assert.Equal(t, "DRAGON!!", chCtx.Get(cor.CtxIn))
	assert.Nil(t, chCtx.Get(cor.CtxOut))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChainStopsAfterFailure(t *testing.T) {
	after := newUpper("after")
	chain := cor.NewBaseChain("stop").
		AddCommand(&failing{BaseCommand: *cor.NewBaseCommand("failing")}).
		AddCommand(after)

	chCtx := cor.NewBaseContext(context.Background())
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.ErrorContains(t, chCtx.Err(), "boom")
	assert.Equal(t, 0, after.calls)
}

func TestChainMissingInputIsAnError(t *testing.T) {
	chain := cor.NewBaseChain("empty").AddCommand(newUpper("needs-input"))
	chCtx := cor.NewBaseContext(context.Background())
	chain.Execute(chCtx)

	assert.ErrorContains(t, chCtx.Err(), "command not executable: needs-input")
}

func TestChainHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newUpper("never")
	chain := cor.NewBaseChain("cancelled").AddCommand(cmd)
	chCtx := cor.NewBaseContext(ctx)
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.Equal(t, 0, cmd.calls)
	assert.ErrorIs(t, chCtx.Err(), context.Canceled)
	assert.Equal(t, ctx, chCtx.GetContext())
}
