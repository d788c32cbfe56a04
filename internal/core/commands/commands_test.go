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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/commands"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
	test "github.com/jaycherian/gcp-go-multimodal-chat/internal/testutil"
)

// pngHeader is enough for the file type sniffer to report image/png.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newContext(values map[string]interface{}) cor.Context {
	ctx := cor.NewBaseContext()
	for k, v := range values {
		ctx.Add(k, v)
	}
	return ctx
}

func TestResponseGeneratorPrependsHistory(t *testing.T) {
	fake := test.NewFakeModel("Sure, here you go")
	gen := commands.NewResponseGenerator("gen", fake, 0, true)

	ctx := newContext(map[string]interface{}{
		commands.ParamPrompt:  "PROMPT",
		commands.ParamHistory: "Recent history:\nUser: hi\n\n",
	})
	require.True(t, gen.IsExecutable(ctx))
	gen.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Equal(t, "Recent history:\nUser: hi\n\nPROMPT", fake.LastCall().Text)
	assert.Equal(t, "Sure, here you go", ctx.Get(commands.ParamRawResponse))
}

func TestResponseGeneratorIgnoresHistoryWhenDisabled(t *testing.T) {
	fake := test.NewFakeModel("ok")
	gen := commands.NewResponseGenerator("gen", fake, 0, false)

	ctx := newContext(map[string]interface{}{
		commands.ParamPrompt:  "PROMPT",
		commands.ParamHistory: "Recent history:\n",
	})
	gen.Execute(ctx)
	assert.Equal(t, "PROMPT", fake.LastCall().Text)
}

func TestResponseGeneratorRecordsFailure(t *testing.T) {
	fake := test.NewFailingModel(errors.New("quota exceeded"))
	gen := commands.NewResponseGenerator("gen", fake, 1, false)

	ctx := newContext(map[string]interface{}{commands.ParamPrompt: "PROMPT"})
	gen.Execute(ctx)

	require.True(t, ctx.HasErrors())
	assert.ErrorContains(t, ctx.FirstError(), "quota exceeded")
	assert.Nil(t, ctx.Get(commands.ParamRawResponse))
	assert.Len(t, fake.Calls(), 2)
}

func TestResponseCleanup(t *testing.T) {
	cleanup := commands.NewResponseCleanup("cleanup")
	ctx := newContext(map[string]interface{}{commands.ParamRawResponse: "Okay, the sky is blue.\n\n\n\nReally."})
	require.True(t, cleanup.IsExecutable(ctx))
	cleanup.Execute(ctx)
	assert.Equal(t, "the sky is blue.\n\nReally.", ctx.Get(commands.ParamResponse))
}

func TestPromptAssembler(t *testing.T) {
	builder, err := prompt.NewBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)

	t.Run("image", func(t *testing.T) {
		assembler := commands.NewPromptAssembler("prompt", builder, model.ModeImage)
		ctx := newContext(map[string]interface{}{
			commands.ParamMessage:           "what is this?",
			commands.ParamImageDescriptions: []string{"A red bicycle."},
		})
		assembler.Execute(ctx)
		require.False(t, ctx.HasErrors())
		out := ctx.Get(commands.ParamPrompt).(string)
		assert.Contains(t, out, "IMAGE CONTENT:\nA red bicycle.")
		assert.Contains(t, out, "what is this?")
	})

	t.Run("video", func(t *testing.T) {
		assembler := commands.NewPromptAssembler("prompt", builder, model.ModeVideo)
		digest := &model.VideoDigest{Metadata: model.VideoMetadata{Duration: 75}, Captions: []string{"a dog", "a cat"}}
		ctx := newContext(map[string]interface{}{
			commands.ParamMessage:      "summarize",
			commands.ParamVideoDigests: []*model.VideoDigest{digest},
		})
		assembler.Execute(ctx)
		require.False(t, ctx.HasErrors())
		out := ctx.Get(commands.ParamPrompt).(string)
		assert.Contains(t, out, "(1min 15s)")
		assert.Contains(t, out, "[00:00] a dog")
	})

	t.Run("video without digest", func(t *testing.T) {
		assembler := commands.NewPromptAssembler("prompt", builder, model.ModeVideo)
		ctx := newContext(map[string]interface{}{commands.ParamMessage: "summarize"})
		assembler.Execute(ctx)
		assert.True(t, ctx.HasErrors())
	})
}

func TestImageDescriberReportsFailuresInline(t *testing.T) {
	fake := test.NewFailingModel(errors.New("vision unavailable"))
	extractor := commands.NewVisionExtractor(fake, prompt.DefaultExtractionPrompt, 0)
	describer := commands.NewImageDescriber("images", extractor, 2)

	req := &model.ChatRequest{Images: []*model.MediaItem{
		{Filename: "a.png", Data: pngHeader},
		{Filename: "b.png", Data: pngHeader},
	}}
	ctx := newContext(map[string]interface{}{commands.ParamRequest: req})
	require.True(t, describer.IsExecutable(ctx))
	describer.Execute(ctx)

	require.False(t, ctx.HasErrors())
	out := ctx.Get(commands.ParamImageDescriptions).([]string)
	require.Len(t, out, 2)
	for _, d := range out {
		assert.True(t, strings.HasPrefix(d, commands.ExtractionErrorPrefix), d)
		assert.Contains(t, d, "vision unavailable")
	}
	assert.Len(t, fake.Calls(), 2)
}

func TestImageDescriberSendsImageBytes(t *testing.T) {
	fake := test.NewFakeModel("A chart of sales.")
	extractor := commands.NewVisionExtractor(fake, prompt.DefaultExtractionPrompt, 0)
	describer := commands.NewImageDescriber("images", extractor, 1)

	req := &model.ChatRequest{Images: []*model.MediaItem{{Filename: "a.png", Data: pngHeader}}}
	ctx := newContext(map[string]interface{}{commands.ParamRequest: req})
	describer.Execute(ctx)

	assert.Equal(t, []string{"A chart of sales."}, ctx.Get(commands.ParamImageDescriptions))
	assert.Equal(t, 1, fake.LastCall().Images)
	assert.Contains(t, fake.LastCall().Text, "Be FACTUAL.")
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", commands.MIMEType(&model.MediaItem{Data: pngHeader}))
	assert.Equal(t, "png", commands.Extension(&model.MediaItem{Data: pngHeader}))
	assert.Equal(t, "image/webp", commands.MIMEType(&model.MediaItem{Data: []byte("xx"), MIMEType: "image/webp"}))
	assert.Equal(t, "mov", commands.Extension(&model.MediaItem{Filename: "clip.mov", Data: []byte("xx")}))
	assert.Equal(t, "bin", commands.Extension(&model.MediaItem{Data: []byte("xx")}))
}

func TestVideoCommandsDescribeEveryRetainedFrame(t *testing.T) {
	opener := test.NewSyntheticOpener().AddAny(test.NewSyntheticVideo(1, 60, test.SceneEvery(10)))
	sampler := video.NewSampler(opener)
	sampler.Interval = 10

	var mu sync.Mutex
	n := 0
	fake := &test.FakeModel{Respond: func(test.Call) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "frame", nil
	}}
	extractor := commands.NewVisionExtractor(fake, prompt.DefaultExtractionPrompt, 0)

	chain := cor.NewBaseChain("video")
	chain.AddCommand(commands.NewUploadToTempFile("upload", 1))
	chain.AddCommand(commands.NewVideoFrameSampler("sample", sampler))
	chain.AddCommand(commands.NewFrameDescriber("describe", extractor, 4, 3))

	req := &model.ChatRequest{Videos: []*model.MediaItem{
		{Filename: "clip.mp4", Data: []byte("first")},
		{Filename: "other.mp4", Data: []byte("second")},
	}}
	ctx := newContext(map[string]interface{}{commands.ParamRequest: req})
	chain.Execute(ctx)
	require.NoError(t, ctx.Err())

	paths := ctx.Get(commands.ParamVideoPaths).([]string)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], commands.TempFilePrefix)
	assert.True(t, strings.HasSuffix(paths[0], ".mp4"))

	digests := ctx.Get(commands.ParamVideoDigests).([]*model.VideoDigest)
	require.Len(t, digests, 1)
	assert.Equal(t, 60, digests[0].Metadata.Duration)
	assert.Equal(t, []string{"frame", "frame", "frame", "frame", "frame", "frame"}, digests[0].Captions)
	assert.Equal(t, 6, n)

	ctx.Close()
	_, err := os.Stat(paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestVideoDigesterHandlesEveryVideo(t *testing.T) {
	opener := test.NewSyntheticOpener().AddAny(test.NewSyntheticVideo(1, 20, test.SceneEvery(10)))
	sampler := video.NewSampler(opener)
	sampler.Interval = 10

	extractor := commands.NewVisionExtractor(test.NewFakeModel("scene"), prompt.DefaultExtractionPrompt, 0)
	describer := commands.NewFrameDescriber("describe", extractor, 4, 2)

	chain := cor.NewBaseChain("mixed")
	chain.AddCommand(commands.NewUploadToTempFile("upload", 0))
	chain.AddCommand(commands.NewVideoDigester("digest", sampler, describer, 2))

	req := &model.ChatRequest{Videos: []*model.MediaItem{
		{Filename: "a.mp4", Data: []byte("a")},
		{Filename: "b.mp4", Data: []byte("b")},
	}}
	ctx := newContext(map[string]interface{}{commands.ParamRequest: req})
	defer ctx.Close()
	chain.Execute(ctx)
	require.NoError(t, ctx.Err())

	digests := ctx.Get(commands.ParamVideoDigests).([]*model.VideoDigest)
	require.Len(t, digests, 2)
	for _, d := range digests {
		assert.Equal(t, 20, d.Metadata.Duration)
		assert.Equal(t, []string{"scene", "scene"}, d.Captions)
	}
	assert.Equal(t, 2, opener.Opened())
	assert.Equal(t, 2, opener.Closed())
}

type fakeArchiver struct {
	failFor string
	stored  []string
}

func (f *fakeArchiver) Archive(_ context.Context, sessionID string, item *model.MediaItem) (*cloud.GCSObject, error) {
	if item.Filename == f.failFor {
		return nil, fmt.Errorf("bucket unavailable")
	}
	name := sessionID + "/" + item.Filename
	f.stored = append(f.stored, name)
	return &cloud.GCSObject{Bucket: "uploads", Name: name}, nil
}

func TestMediaArchiveIsBestEffort(t *testing.T) {
	archiver := &fakeArchiver{failFor: "b.png"}
	archive := commands.NewMediaArchive("archive", archiver)

	req := &model.ChatRequest{SessionID: "s-1", Images: []*model.MediaItem{
		{Filename: "a.png", Data: pngHeader},
		{Filename: "b.png", Data: pngHeader},
	}, Videos: []*model.MediaItem{{Filename: "c.mp4", Data: []byte("c")}}}
	ctx := newContext(map[string]interface{}{commands.ParamRequest: req})
	require.True(t, archive.IsExecutable(ctx))
	archive.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	objects := ctx.Get(cloud.GetGCSObjectName()).([]*cloud.GCSObject)
	require.Len(t, objects, 2)
	assert.Equal(t, []string{"s-1/a.png", "s-1/c.mp4"}, archiver.stored)
}

func TestMediaArchiveSkippedWithoutArchiver(t *testing.T) {
	archive := commands.NewMediaArchive("archive", nil)
	req := &model.ChatRequest{Images: []*model.MediaItem{{Filename: "a.png"}}}
	assert.False(t, archive.IsExecutable(newContext(map[string]interface{}{commands.ParamRequest: req})))
}
