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

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
)

const previewLength = 300

// PromptAssembler renders the prompt of the turn's mode from the message and
// whatever visual context the previous commands produced.
type PromptAssembler struct {
	cor.BaseCommand
	builder *prompt.Builder
	mode    model.Mode
}

func NewPromptAssembler(name string, builder *prompt.Builder, mode model.Mode) *PromptAssembler {
	out := &PromptAssembler{BaseCommand: *cor.NewBaseCommand(name), builder: builder, mode: mode}
	out.InputParamName = ParamMessage
	out.OutputParamName = ParamPrompt
	return out
}

func (p *PromptAssembler) IsExecutable(context cor.Context) bool {
	_, ok := cor.Value[string](context, p.GetInputParam())
	return ok
}

func (p *PromptAssembler) Execute(context cor.Context) {
	message, _ := cor.Value[string](context, p.GetInputParam())
	in := prompt.Input{Message: message}
	if images, ok := cor.Value[[]string](context, ParamImageDescriptions); ok {
		in.Images = images
		if len(images) > 0 {
			in.ImageContent = images[0]
		}
	}
	if videos, ok := cor.Value[[]*model.VideoDigest](context, ParamVideoDigests); ok {
		in.Videos = videos
		if p.mode == model.ModeVideo && len(videos) > 0 && len(videos[0].Captions) > 0 {
			slog.InfoContext(context.GetContext(), "first caption preview", "caption", prompt.Truncate(videos[0].Captions[0], 100))
		}
	}

	out, err := p.builder.Build(p.mode, in)
	if err != nil {
		p.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(p.GetName(), err)
		return
	}
	slog.DebugContext(context.GetContext(), "prompt assembled", "mode", p.mode, "preview", prompt.Truncate(out, previewLength))
	p.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(p.GetOutputParam(), out)
	context.Add(cor.CtxOut, out)
}
