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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
)

// ResponseGenerator sends the assembled prompt to the language model. When
// includeHistory is set the memory digest found under ParamHistory is
// prepended to the prompt.
type ResponseGenerator struct {
	cor.BaseCommand
	generativeAIModel        cloud.ContentGenerator
	maxRetries               int
	includeHistory           bool
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

func NewResponseGenerator(name string, generativeAIModel cloud.ContentGenerator, maxRetries int, includeHistory bool) *ResponseGenerator {
	out := &ResponseGenerator{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		maxRetries:        maxRetries,
		includeHistory:    includeHistory,
	}
	out.InputParamName = ParamPrompt
	out.OutputParamName = ParamRawResponse

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))
	return out
}

func (r *ResponseGenerator) IsExecutable(context cor.Context) bool {
	_, ok := cor.Value[string](context, r.GetInputParam())
	return ok
}

func (r *ResponseGenerator) Execute(context cor.Context) {
	text, _ := cor.Value[string](context, r.GetInputParam())
	if r.includeHistory {
		if history, ok := cor.Value[string](context, ParamHistory); ok {
			text = history + text
		}
	}

	contents := cloud.NewUserContent(cloud.NewTextPart(text))
	out, err := cloud.GenerateMultiModalResponse(context.GetContext(), r.geminiInputTokenCounter, r.geminiOutputTokenCounter, r.geminiRetryCounter, r.maxRetries, r.generativeAIModel, contents)
	if err != nil {
		r.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(r.GetName(), fmt.Errorf("gemini request failed: %w", err))
		return
	}

	slog.InfoContext(context.GetContext(), "response generated", "chars", len(out), "preview", prompt.Truncate(out, 100))
	r.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(r.GetOutputParam(), out)
	context.Add(cor.CtxOut, out)
}

// ResponseCleanup strips stock openers and extra blank lines from the reply.
type ResponseCleanup struct {
	cor.BaseCommand
}

func NewResponseCleanup(name string) *ResponseCleanup {
	out := &ResponseCleanup{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = ParamRawResponse
	out.OutputParamName = ParamResponse
	return out
}

func (c *ResponseCleanup) IsExecutable(context cor.Context) bool {
	_, ok := cor.Value[string](context, c.GetInputParam())
	return ok
}

func (c *ResponseCleanup) Execute(context cor.Context) {
	raw, _ := cor.Value[string](context, c.GetInputParam())
	out := prompt.CleanResponse(raw)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), out)
	context.Add(cor.CtxOut, out)
}
