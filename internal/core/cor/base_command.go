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

// Package cor provides the workflow building blocks. This file defines
// BaseCommand, which every asset command embeds to get its name, its tracer and
// its success / error counters.
package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope for every command counter.
const MeterName = "github.com/jaycherian/prompt-to-video-live/assets"

// BaseCommand is the default Command implementation.
type BaseCommand struct {
	Name            string              // Identifies the command in spans and metric names.
	InputParamName  string              // Overrides CtxIn as the input key when set.
	OutputParamName string              // Overrides CtxOut as the output key when set.
	Tracer          trace.Tracer        // Tracer for command spans.
	Meter           metric.Meter        // Meter the counters were created on.
	SuccessCounter  metric.Int64Counter // Incremented by Succeed.
	ErrorCounter    metric.Int64Counter // Incremented by Fail.
}

// NewBaseCommand builds a BaseCommand with counters named
// "<name>.counter.success" and "<name>.counter.error".
//
// Inputs:
//   - name: The command name.
//
// Outputs:
//   - *BaseCommand: The instrumented command base.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterName)

	successCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.success", name))
	if err != nil {
		slog.Error("failed to create success counter", "command", name, "error", err)
	}
	errorCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.error", name))
	if err != nil {
		slog.Error("failed to create error counter", "command", name, "error", err)
	}

	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: successCounter,
		ErrorCounter:   errorCounter,
	}
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires a Go context and a non-nil input value.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(c.GetInputParam()) != nil
}

func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) == 0 {
		return CtxIn
	}
	return c.InputParamName
}

func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) == 0 {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Succeed stores out under the command's output key and counts a success.
func (c *BaseCommand) Succeed(context Context, out any, attrs ...attribute.KeyValue) {
	context.Add(c.GetOutputParam(), out)
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(context.GetContext(), 1, metric.WithAttributes(attrs...))
	}
}

// Fail records err against the command and counts a failure.
func (c *BaseCommand) Fail(context Context, err error, attrs ...attribute.KeyValue) {
	context.AddError(c.GetName(), err)
	if c.ErrorCounter != nil {
		c.ErrorCounter.Add(context.GetContext(), 1, metric.WithAttributes(attrs...))
	}
}
