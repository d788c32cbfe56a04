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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
)

// ExtractionErrorPrefix starts the inline text returned in place of a
// description when the vision call fails.
const ExtractionErrorPrefix = "Extraction error: "

var errEmptyDescription = errors.New("the vision model returned no text")

// Extractor describes images with the vision model.
type Extractor interface {
	// Describe returns a factual description of the image or an error.
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
	// Extract never fails: errors are reported inline, prefixed with
	// ExtractionErrorPrefix.
	Extract(ctx context.Context, data []byte, mimeType string) string
}

// VisionExtractor is the Extractor backed by the shared vision model.
type VisionExtractor struct {
	model        cloud.ContentGenerator
	prompt       string
	maxRetries   int
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	retries      metric.Int64Counter
}

// NewVisionExtractor creates an extractor that sends prompt with every image.
func NewVisionExtractor(model cloud.ContentGenerator, prompt string, maxRetries int) *VisionExtractor {
	meter := otel.Meter(cor.MeterName)
	out := &VisionExtractor{model: model, prompt: prompt, maxRetries: maxRetries}
	out.inputTokens, _ = meter.Int64Counter("vision.gemini.token.input")
	out.outputTokens, _ = meter.Int64Counter("vision.gemini.token.output")
	out.retries, _ = meter.Int64Counter("vision.gemini.retry")
	return out
}

func (v *VisionExtractor) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	content := cloud.NewUserContent(cloud.NewTextPart(v.prompt), cloud.NewInlineData(data, mimeType))
	out, err := cloud.GenerateMultiModalResponse(ctx, v.inputTokens, v.outputTokens, v.retries, v.maxRetries, v.model, content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errEmptyDescription
	}
	return out, nil
}

func (v *VisionExtractor) Extract(ctx context.Context, data []byte, mimeType string) string {
	out, err := v.Describe(ctx, data, mimeType)
	if err != nil {
		slog.ErrorContext(ctx, "image extraction failed", "error", err)
		return fmt.Sprintf("%s%v", ExtractionErrorPrefix, err)
	}
	slog.DebugContext(ctx, "image content extracted", "chars", len(out))
	return out
}
