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
	goctx "context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

// FrameDescriber describes every retained frame of a sampled video with the
// vision model. Frames are described concurrently by a fixed pool of
// workers; the captions keep the order of the frames.
type FrameDescriber struct {
	cor.BaseCommand
	extractor       Extractor
	frameWidth      int // Frames are scaled down to this width before upload.
	numberOfWorkers int
}

func NewFrameDescriber(name string, extractor Extractor, frameWidth int, numberOfWorkers int) *FrameDescriber {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	out := &FrameDescriber{
		BaseCommand:     *cor.NewBaseCommand(name),
		extractor:       extractor,
		frameWidth:      frameWidth,
		numberOfWorkers: numberOfWorkers,
	}
	out.InputParamName = ParamSampledVideo
	out.OutputParamName = ParamVideoDigests
	return out
}

func (f *FrameDescriber) IsExecutable(context cor.Context) bool {
	_, ok := cor.Value[*model.SampledVideo](context, f.GetInputParam())
	return ok
}

func (f *FrameDescriber) Execute(context cor.Context) {
	sampled, _ := cor.Value[*model.SampledVideo](context, f.GetInputParam())
	digest := f.Describe(context.GetContext(), sampled)

	f.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(f.GetOutputParam(), []*model.VideoDigest{digest})
	context.Add(cor.CtxOut, digest)
}

// Describe returns the captions of every frame of sampled, in frame order.
func (f *FrameDescriber) Describe(ctx goctx.Context, sampled *model.SampledVideo) *model.VideoDigest {
	captions := make([]string, len(sampled.Frames))
	if len(sampled.Frames) == 0 {
		return &model.VideoDigest{Metadata: sampled.Metadata, Captions: captions}
	}

	var wg sync.WaitGroup
	jobs := make(chan *frameJob, len(sampled.Frames))

	workers := min(f.numberOfWorkers, len(sampled.Frames))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go f.frameWorker(jobs, captions, len(sampled.Frames), &wg)
	}

	for i, frame := range sampled.Frames {
		frameCtx, span := f.Tracer.Start(ctx, fmt.Sprintf("%s_frame_%d", f.GetName(), i))
		span.SetAttributes(attribute.Int("sequence", i), attribute.Int("frame.index", frame.Index))
		jobs <- &frameJob{position: i, ctx: frameCtx, span: span, frame: frame}
	}
	close(jobs)
	wg.Wait()

	return &model.VideoDigest{Metadata: sampled.Metadata, Captions: captions}
}

type frameJob struct {
	position int
	ctx      goctx.Context
	span     trace.Span
	frame    *model.Frame
}

// frameWorker writes each caption to its own slot of captions, so no two
// workers touch the same element.
func (f *FrameDescriber) frameWorker(jobs <-chan *frameJob, captions []string, total int, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		data, err := video.EncodeJPEG(j.frame.Image, f.frameWidth)
		if err != nil {
			captions[j.position] = fmt.Sprintf("%s%v", ExtractionErrorPrefix, err)
			j.span.SetStatus(codes.Error, "frame encode failed")
			j.span.End()
			continue
		}
		captions[j.position] = f.extractor.Extract(j.ctx, data, video.JPEGMIMEType)
		slog.InfoContext(j.ctx, "frame analyzed", "frame", j.position+1, "total", total)
		j.span.SetStatus(codes.Ok, "frame described")
		j.span.End()
	}
}
