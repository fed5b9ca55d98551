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

// Package cor (Chain of Responsibility) is the small workflow engine used by the
// asset pipeline. A scene asset (an illustration or a narration track) is
// produced by running a chain of commands: one command talks to the hosted
// backend, the next persists the bytes and yields a reference the scene can
// carry. This file holds the interfaces every command, chain and context
// implements.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys a BaseChain uses to pipe the output of one
// command into the input of the next.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the property bag passed through a chain for one asset request.
type Context interface {
	// SetContext sets the Go context carrying cancellation and the active span.
	SetContext(ctx context.Context)

	// GetContext returns the Go context of the command currently executing.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value any) Context

	// Get returns the value stored under key, or nil.
	Get(key string) any

	// Remove deletes key.
	Remove(key string)

	// AddError records the failure of the named command.
	AddError(key string, err error)

	// GetErrors returns every recorded failure keyed by command name.
	GetErrors() map[string]error

	// HasErrors reports whether any command failed.
	HasErrors() bool

	// Err joins every recorded failure into one error, or returns nil.
	Err() error
}

// Executable is anything with a unit of work to run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single, named, instrumented step of an asset workflow.
type Command interface {
	Executable

	GetName() string

	// GetInputParam returns the key the command reads its input from.
	GetInputParam() string

	// GetOutputParam returns the key the command writes its result to.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered list of commands and is itself a Command, so chains nest.
type Chain interface {
	Command

	// AddCommand appends a command to the chain.
	AddCommand(command Command) Chain
}
