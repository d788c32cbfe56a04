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
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// ImageDescriber extracts the content of every uploaded image. Each image is
// described independently; the output keeps upload order.
type ImageDescriber struct {
	cor.BaseCommand
	extractor Extractor
	limit     int // Concurrent vision calls.
}

func NewImageDescriber(name string, extractor Extractor, limit int) *ImageDescriber {
	if limit < 1 {
		limit = 1
	}
	out := &ImageDescriber{BaseCommand: *cor.NewBaseCommand(name), extractor: extractor, limit: limit}
	out.InputParamName = ParamRequest
	out.OutputParamName = ParamImageDescriptions
	return out
}

func (d *ImageDescriber) IsExecutable(context cor.Context) bool {
	req, ok := cor.Value[*model.ChatRequest](context, d.GetInputParam())
	return ok && len(req.Images) > 0
}

func (d *ImageDescriber) Execute(context cor.Context) {
	req, _ := cor.Value[*model.ChatRequest](context, d.GetInputParam())
	ctx := context.GetContext()

	descriptions := make([]string, len(req.Images))
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, img := range req.Images {
		g.Go(func() error {
			descriptions[i] = d.extractor.Extract(ctx, img.Data, MIMEType(img))
			return nil
		})
	}
	// Extract reports failures inline, so Wait never returns an error.
	_ = g.Wait()

	for i, desc := range descriptions {
		slog.InfoContext(ctx, "image content extracted", "image", i+1, "chars", len(desc))
	}
	d.GetSuccessCounter().Add(ctx, 1)
	context.Add(d.GetOutputParam(), descriptions)
	context.Add(cor.CtxOut, descriptions)
}
