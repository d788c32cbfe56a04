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
	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

// VideoDigester samples and describes every video of a mixed media turn.
// All videos are decoded first; frame descriptions start once every
// sampling pass has finished.
type VideoDigester struct {
	cor.BaseCommand
	sampler   *video.Sampler
	describer *FrameDescriber
	limit     int // Videos decoded concurrently.
}

func NewVideoDigester(name string, sampler *video.Sampler, describer *FrameDescriber, limit int) *VideoDigester {
	if limit < 1 {
		limit = 1
	}
	out := &VideoDigester{BaseCommand: *cor.NewBaseCommand(name), sampler: sampler, describer: describer, limit: limit}
	out.InputParamName = ParamVideoPaths
	out.OutputParamName = ParamVideoDigests
	return out
}

func (v *VideoDigester) IsExecutable(context cor.Context) bool {
	paths, ok := cor.Value[[]string](context, v.GetInputParam())
	return ok && len(paths) > 0
}

func (v *VideoDigester) Execute(context cor.Context) {
	paths, _ := cor.Value[[]string](context, v.GetInputParam())

	sampled := make([]*model.SampledVideo, len(paths))
	var g errgroup.Group
	g.SetLimit(v.limit)
	for i, path := range paths {
		g.Go(func() error {
			sampled[i] = sample(context, v.sampler, path)
			return nil
		})
	}
	_ = g.Wait()

	digests := make([]*model.VideoDigest, len(sampled))
	for i, s := range sampled {
		digests[i] = v.describer.Describe(context.GetContext(), s)
	}

	v.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(v.GetOutputParam(), digests)
	context.Add(cor.CtxOut, digests)
}
