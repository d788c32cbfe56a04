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

// Package cor (Chain of Responsibility) provides the building blocks for chat
// turn workflows. This file defines `BaseChain`, the default `Chain`.
//
// Logic Flow:
//  1. A span is opened for the whole chain.
//  2. Commands run in order, each inside its own child span. The shared
//     context carries the child span's Go context while the command runs and
//     is reset to the chain span afterwards so sibling spans stay flat.
//  3. A command whose IsExecutable check fails is skipped and leaves CtxIn
//     untouched. Optional steps (archiving, publishing) rely on this.
//  4. After the first recorded error the remaining commands are skipped,
//     unless ContinueOnFailure(true) was set.
//  5. After each command the value in CtxOut is moved to CtxIn, so the output
//     of one command becomes the input of the next.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BaseChain is the default implementation of the Chain interface.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain named name.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure sets whether the chain keeps executing after an error.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand appends a command.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the names of the commands in execution order.
func (c *BaseChain) Commands() []string {
	out := make([]string, 0, len(c.commands))
	for _, command := range c.commands {
		out = append(out, command.GetName())
	}
	return out
}

// IsExecutable only requires a Go context; each command checks its own input.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs every command in order against chCtx.
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()

	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())

		if chCtx.HasErrors() && !c.continueOnFailure {
			commandSpan.SetStatus(codes.Error, "previous error on chain; skipping execution")
			commandSpan.End()
			break
		}

		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)

			if err, failed := chCtx.GetErrors()[command.GetName()]; failed {
				commandSpan.RecordError(err)
				commandSpan.SetStatus(codes.Error, "command failed")
			} else {
				commandSpan.SetStatus(codes.Ok, "command completed successfully")
			}
			pipe(chCtx)
		} else {
			commandSpan.SetAttributes(attribute.Bool("skipped", true))
			commandSpan.SetStatus(codes.Ok, "command not executable; skipped")
		}
		commandSpan.End()
	}

	if !chCtx.HasErrors() {
		c.GetSuccessCounter().Add(outerCtx, 1)
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	} else {
		c.GetErrorCounter().Add(outerCtx, 1)
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	}
}

// pipe moves the value in CtxOut to CtxIn.
func pipe(chCtx Context) {
	outputValue := chCtx.Get(CtxOut)
	chCtx.Remove(CtxIn)
	if outputValue != nil {
		chCtx.Add(CtxIn, outputValue)
	}
	chCtx.Remove(CtxOut)
}
