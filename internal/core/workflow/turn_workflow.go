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

// Package workflow assembles the commands of a chat turn into chains, one per
// conversation mode, and runs the background session maintenance.
package workflow

import (
	"fmt"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/commands"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

// Dependencies are the collaborators shared by every turn workflow.
type Dependencies struct {
	Builder   *prompt.Builder
	ChatModel cloud.ContentGenerator
	Vision    cloud.ContentGenerator
	Sampler   *video.Sampler
	Archiver  commands.Archiver // Optional; uploads are not archived when nil.
}

// TurnWorkflow is the chain executed for one conversation mode. The caller
// places the *model.ChatRequest, the message text and, for the history
// modes, the memory digest on the context; the cleaned reply is left under
// commands.ParamResponse.
type TurnWorkflow struct {
	cor.BaseCommand
	mode            model.Mode
	deps            Dependencies
	frameWidth      int
	numberOfWorkers int
	chatRetries     int
	visionRetries   int
	chain           *cor.BaseChain
}

func (t *TurnWorkflow) Mode() model.Mode {
	return t.mode
}

// Commands lists the names of the chained commands, in execution order.
func (t *TurnWorkflow) Commands() []string {
	return t.chain.Commands()
}

func (t *TurnWorkflow) IsExecutable(context cor.Context) bool {
	_, ok := cor.Value[*model.ChatRequest](context, commands.ParamRequest)
	return ok && t.chain.IsExecutable(context)
}

func (t *TurnWorkflow) Execute(context cor.Context) {
	t.chain.Execute(context)
}

func (t *TurnWorkflow) initializeChain() {
	out := cor.NewBaseChain(t.GetName())
	extractor := commands.NewVisionExtractor(t.deps.Vision, t.deps.Builder.ExtractionPrompt(), t.visionRetries)
	describer := commands.NewFrameDescriber("describe-video-frames", extractor, t.frameWidth, t.numberOfWorkers)

	out.AddCommand(commands.NewMediaArchive("archive-uploads", t.deps.Archiver))

	switch t.mode {
	case model.ModeImage:
		out.AddCommand(commands.NewImageDescriber("describe-images", extractor, t.numberOfWorkers))
	case model.ModeVideo:
		// Only the first video of the request is analysed.
		out.AddCommand(commands.NewUploadToTempFile("video-to-temp-file", 1))
		out.AddCommand(commands.NewVideoFrameSampler("sample-video-frames", t.deps.Sampler))
		out.AddCommand(describer)
	case model.ModeMultiImage, model.ModeMixed:
		out.AddCommand(commands.NewImageDescriber("describe-images", extractor, t.numberOfWorkers))
		out.AddCommand(commands.NewUploadToTempFile("videos-to-temp-files", 0))
		out.AddCommand(commands.NewVideoDigester("digest-videos", t.deps.Sampler, describer, t.numberOfWorkers))
	}

	out.AddCommand(commands.NewPromptAssembler("assemble-prompt", t.deps.Builder, t.mode))
	out.AddCommand(commands.NewResponseGenerator("generate-response", t.deps.ChatModel, t.chatRetries, t.mode.IncludesHistory()))
	out.AddCommand(commands.NewResponseCleanup("clean-response"))

	t.chain = out
}

// NewTurnWorkflow builds the chain for mode.
func NewTurnWorkflow(config *cloud.Config, deps Dependencies, mode model.Mode) (*TurnWorkflow, error) {
	switch mode {
	case model.ModeText, model.ModeImage, model.ModeMultiImage, model.ModeMixed, model.ModeVideo:
	default:
		return nil, fmt.Errorf("unknown conversation mode %q", mode)
	}
	if deps.Builder == nil || deps.ChatModel == nil {
		return nil, fmt.Errorf("%s workflow requires a prompt builder and a chat model", mode)
	}
	if mode != model.ModeText && (deps.Vision == nil || deps.Sampler == nil) {
		return nil, fmt.Errorf("%s workflow requires a vision model and a frame sampler", mode)
	}

	pipeline := &TurnWorkflow{
		BaseCommand:     *cor.NewBaseCommand(fmt.Sprintf("%s-turn", mode)),
		mode:            mode,
		deps:            deps,
		frameWidth:      config.Video.FrameWidth,
		numberOfWorkers: config.Application.ThreadPoolSize,
		chatRetries:     config.AgentModels[cloud.ChatModelName].MaxRetries,
		visionRetries:   config.AgentModels[cloud.VisionModelName].MaxRetries,
	}
	pipeline.initializeChain()
	return pipeline, nil
}

// NewTurnWorkflows builds one workflow per conversation mode.
func NewTurnWorkflows(config *cloud.Config, deps Dependencies) (map[model.Mode]*TurnWorkflow, error) {
	out := make(map[model.Mode]*TurnWorkflow)
	for _, mode := range []model.Mode{model.ModeText, model.ModeImage, model.ModeMultiImage, model.ModeMixed, model.ModeVideo} {
		w, err := NewTurnWorkflow(config, deps, mode)
		if err != nil {
			return nil, err
		}
		out[mode] = w
	}
	return out, nil
}
