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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

// VideoFrameSampler reads the metadata and the retained frames of the first
// video written by UploadToTempFile.
//
// An unreadable video is not an error: it produces empty metadata and no
// frames, and the turn continues with an empty timeline.
type VideoFrameSampler struct {
	cor.BaseCommand
	sampler *video.Sampler
}

func NewVideoFrameSampler(name string, sampler *video.Sampler) *VideoFrameSampler {
	out := &VideoFrameSampler{BaseCommand: *cor.NewBaseCommand(name), sampler: sampler}
	out.InputParamName = ParamVideoPaths
	out.OutputParamName = ParamSampledVideo
	return out
}

func (c *VideoFrameSampler) IsExecutable(context cor.Context) bool {
	paths, ok := cor.Value[[]string](context, c.GetInputParam())
	return ok && len(paths) > 0
}

func (c *VideoFrameSampler) Execute(context cor.Context) {
	paths, _ := cor.Value[[]string](context, c.GetInputParam())
	sampled := sample(context, c.sampler, paths[0])
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("video.duration", sampled.Metadata.Duration),
		attribute.Int("video.frames.retained", len(sampled.Frames)),
	)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), sampled)
	context.Add(cor.CtxOut, sampled)
}

func sample(context cor.Context, sampler *video.Sampler, path string) *model.SampledVideo {
	ctx := context.GetContext()
	out := &model.SampledVideo{
		Source:   path,
		Metadata: sampler.Metadata(ctx, path),
		Frames:   sampler.ExtractFrames(ctx, path),
	}
	if out.Metadata.IsZero() {
		slog.WarnContext(ctx, "video metadata unavailable", "path", path, "frames", len(out.Frames))
		return out
	}
	slog.InfoContext(ctx, "video metadata",
		"duration", out.Metadata.Duration,
		"fps", out.Metadata.FPS,
		"resolution", out.Metadata.Resolution,
		"frames", len(out.Frames))
	return out
}
