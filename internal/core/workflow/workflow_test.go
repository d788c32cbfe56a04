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

package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/commands"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/memory"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/prompt"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-multimodal-chat/internal/testutil"
)

type fixture struct {
	config *cloud.Config
	chat   *test.FakeModel
	vision *test.FakeModel
	opener *test.SyntheticOpener
	deps   workflow.Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	builder, err := prompt.NewBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)

	f := &fixture{
		config: test.GetConfig(),
		chat:   test.NewFakeModel("Sure! Here is my answer."),
		vision: test.NewFakeModel("a person walking"),
		opener: test.NewSyntheticOpener().AddAny(test.NewSyntheticVideo(1, 30, test.SceneEvery(10))),
	}
	f.deps = workflow.Dependencies{
		Builder:   builder,
		ChatModel: f.chat,
		Vision:    cloud.NewStaticVisionHandle(f.vision),
		Sampler:   video.NewSamplerFromConfig(f.opener, f.config.Video),
	}
	return f
}

func run(t *testing.T, w *workflow.TurnWorkflow, req *model.ChatRequest, history string) cor.Context {
	t.Helper()
	chainCtx := cor.NewBaseContext()
	t.Cleanup(chainCtx.Close)
	chainCtx.SetContext(context.Background())
	chainCtx.Add(commands.ParamRequest, req)
	chainCtx.Add(commands.ParamMessage, req.Text)
	if history != "" {
		chainCtx.Add(commands.ParamHistory, history)
	}
	require.True(t, w.IsExecutable(chainCtx))
	w.Execute(chainCtx)
	return chainCtx
}

func TestTextTurn(t *testing.T) {
	f := newFixture(t)
	w, err := workflow.NewTurnWorkflow(f.config, f.deps, model.ModeText)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive-uploads", "assemble-prompt", "generate-response", "clean-response"}, w.Commands())

	out := run(t, w, &model.ChatRequest{Text: "hello there"}, "Recent history:\nUser: hi\n\n")
	require.NoError(t, out.Err())

	assert.Equal(t, "Here is my answer.", out.Get(commands.ParamResponse))
	assert.True(t, strings.HasPrefix(f.chat.LastCall().Text, "Recent history:"))
	assert.Contains(t, f.chat.LastCall().Text, `User message: "hello there"`)
	assert.Empty(t, f.vision.Calls())
}

func TestImageTurnDescribesImageFirst(t *testing.T) {
	f := newFixture(t)
	w, err := workflow.NewTurnWorkflow(f.config, f.deps, model.ModeImage)
	require.NoError(t, err)

	req := &model.ChatRequest{Text: "what is it?", Images: []*model.MediaItem{{Filename: "a.jpg", MIMEType: "image/jpeg", Data: []byte("jpeg")}}}
	out := run(t, w, req, "")
	require.NoError(t, out.Err())

	require.Len(t, f.vision.Calls(), 1)
	assert.Equal(t, 1, f.vision.LastCall().Images)
	assert.Contains(t, f.chat.LastCall().Text, "IMAGE CONTENT:\na person walking")
	assert.Equal(t, 0, f.chat.LastCall().Images)
}

func TestVideoTurnIgnoresHistoryAndExtraVideos(t *testing.T) {
	f := newFixture(t)
	w, err := workflow.NewTurnWorkflow(f.config, f.deps, model.ModeVideo)
	require.NoError(t, err)

	req := &model.ChatRequest{Text: "summarize", Videos: []*model.MediaItem{
		{Filename: "a.mp4", Data: []byte("a")},
		{Filename: "b.mp4", Data: []byte("b")},
	}}
	out := run(t, w, req, "Recent history:\nUser: old topic\n\n")
	require.NoError(t, out.Err())

	// 30 frames at 1 fps sampled every 10 seconds.
	assert.Len(t, f.vision.Calls(), 3)
	assert.Equal(t, 1, f.opener.Opened())
	text := f.chat.LastCall().Text
	assert.NotContains(t, text, "old topic")
	assert.Contains(t, text, "[00:00] a person walking")
	assert.Contains(t, text, "[00:20] a person walking")
}

func TestMixedTurnCombinesImagesAndVideos(t *testing.T) {
	f := newFixture(t)
	w, err := workflow.NewTurnWorkflow(f.config, f.deps, model.ModeMixed)
	require.NoError(t, err)

	req := &model.ChatRequest{Text: "compare", Images: []*model.MediaItem{
		{Filename: "a.jpg", Data: []byte("a")},
		{Filename: "b.jpg", Data: []byte("b")},
	}, Videos: []*model.MediaItem{{Filename: "c.mp4", Data: []byte("c")}}}
	out := run(t, w, req, "")
	require.NoError(t, out.Err())

	text := f.chat.LastCall().Text
	assert.Contains(t, text, "2 image(s) shared:")
	assert.Contains(t, text, "1 video(s) shared:")
	assert.Contains(t, text, "Video 1 (30s):")
	// Two images plus three frames.
	assert.Len(t, f.vision.Calls(), 5)
}

func TestTurnReportsGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.deps.ChatModel = test.NewFailingModel(errors.New("model overloaded"))
	w, err := workflow.NewTurnWorkflow(f.config, f.deps, model.ModeText)
	require.NoError(t, err)

	out := run(t, w, &model.ChatRequest{Text: "hi"}, "")
	require.Error(t, out.Err())
	assert.ErrorContains(t, out.FirstError(), "model overloaded")
	assert.Nil(t, out.Get(commands.ParamResponse))
}

func TestNewTurnWorkflowValidatesDependencies(t *testing.T) {
	f := newFixture(t)
	_, err := workflow.NewTurnWorkflow(f.config, f.deps, model.Mode("audio"))
	assert.Error(t, err)

	deps := f.deps
	deps.Vision = nil
	_, err = workflow.NewTurnWorkflow(f.config, deps, model.ModeImage)
	assert.Error(t, err)
	_, err = workflow.NewTurnWorkflow(f.config, deps, model.ModeText)
	assert.NoError(t, err)

	all, err := workflow.NewTurnWorkflows(f.config, f.deps)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, model.ModeVideo, all[model.ModeVideo].Mode())
}

func TestSessionExpiryEvictsIdleSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore(10).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _, err := store.Touch(ctx, "old")
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, _, err = store.Touch(ctx, "fresh")
	require.NoError(t, err)

	config := test.GetConfig()
	config.Memory.SessionTTLMinutes = 60
	w := workflow.NewSessionExpiryWorkflow(config, store)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	require.True(t, w.IsExecutable(chainCtx))
	w.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, []string{"old"}, chainCtx.Get(cor.CtxOut))

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fresh", sessions[0].ID)

	w.StartTimer()
	w.Stop()
	w.Stop()
}

func TestSessionExpiryDisabledWithoutTTL(t *testing.T) {
	config := test.GetConfig()
	config.Memory.SessionTTLMinutes = 0
	w := workflow.NewSessionExpiryWorkflow(config, memory.NewInMemoryStore(10))
	assert.False(t, w.IsExecutable(cor.NewBaseContext()))
}
