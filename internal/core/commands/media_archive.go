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
	"log/slog"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// Archiver stores an original upload.
type Archiver interface {
	Archive(ctx goctx.Context, sessionID string, item *model.MediaItem) (*cloud.GCSObject, error)
}

// MediaArchive copies the uploads of a turn to Cloud Storage and records the
// resulting objects under cloud.GetGCSObjectName(). Archiving is best effort:
// a failed upload is logged and counted but does not fail the turn.
type MediaArchive struct {
	cor.BaseCommand
	archiver Archiver
}

func NewMediaArchive(name string, archiver Archiver) *MediaArchive {
	out := &MediaArchive{BaseCommand: *cor.NewBaseCommand(name), archiver: archiver}
	out.InputParamName = ParamRequest
	out.OutputParamName = cloud.GetGCSObjectName()
	return out
}

func (c *MediaArchive) IsExecutable(context cor.Context) bool {
	if c.archiver == nil {
		return false
	}
	req, ok := cor.Value[*model.ChatRequest](context, c.GetInputParam())
	return ok && len(req.Images)+len(req.Videos) > 0
}

func (c *MediaArchive) Execute(context cor.Context) {
	req, _ := cor.Value[*model.ChatRequest](context, c.GetInputParam())
	ctx := context.GetContext()

	items := append(append([]*model.MediaItem{}, req.Images...), req.Videos...)
	objects := make([]*cloud.GCSObject, 0, len(items))
	for _, item := range items {
		obj, err := c.archiver.Archive(ctx, req.SessionID, item)
		if err != nil {
			c.GetErrorCounter().Add(ctx, 1)
			slog.WarnContext(ctx, "failed to archive upload", "filename", item.Filename, "error", err)
			continue
		}
		objects = append(objects, obj)
	}
	if len(objects) == len(items) {
		c.GetSuccessCounter().Add(ctx, 1)
	}
	context.Add(c.GetOutputParam(), objects)
}
