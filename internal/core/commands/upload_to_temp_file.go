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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/cor"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

const TempFilePrefix = "chat-upload-"

// UploadToTempFile writes the uploaded videos of a request to temporary files
// so they can be decoded from disk. The files are tracked on the context and
// removed when the turn ends.
type UploadToTempFile struct {
	cor.BaseCommand
	limit int // Maximum number of videos written; 0 writes all of them.
}

// NewUploadToTempFile creates the command. limit bounds how many videos are
// written, in upload order.
func NewUploadToTempFile(name string, limit int) *UploadToTempFile {
	out := &UploadToTempFile{BaseCommand: *cor.NewBaseCommand(name), limit: limit}
	out.InputParamName = ParamRequest
	out.OutputParamName = ParamVideoPaths
	return out
}

func (c *UploadToTempFile) IsExecutable(context cor.Context) bool {
	req, ok := cor.Value[*model.ChatRequest](context, c.GetInputParam())
	return ok && len(req.Videos) > 0
}

func (c *UploadToTempFile) Execute(context cor.Context) {
	req, _ := cor.Value[*model.ChatRequest](context, c.GetInputParam())
	videos := req.Videos
	if c.limit > 0 && len(videos) > c.limit {
		videos = videos[:c.limit]
	}

	paths := make([]string, 0, len(videos))
	for _, item := range videos {
		path, err := writeTempFile(item)
		if path != "" {
			context.AddTempFile(path)
		}
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), err)
			return
		}
		slog.DebugContext(context.GetContext(), "wrote upload to temp file", "filename", item.Filename, "path", path, "bytes", len(item.Data))
		paths = append(paths, path)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), paths)
}

// Extension returns the file extension of an upload, sniffed from its
// content and falling back to the extension of its file name.
func Extension(item *model.MediaItem) string {
	if kind, err := filetype.Match(item.Data); err == nil && kind != filetype.Unknown {
		return kind.Extension
	}
	if ext := filepath.Ext(item.Filename); len(ext) > 1 {
		return ext[1:]
	}
	return "bin"
}

// MIMEType returns the sniffed MIME type of an upload, or the declared one.
func MIMEType(item *model.MediaItem) string {
	if kind, err := filetype.Match(item.Data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if item.MIMEType != "" {
		return item.MIMEType
	}
	return "application/octet-stream"
}

func writeTempFile(item *model.MediaItem) (string, error) {
	tempFile, err := os.CreateTemp("", TempFilePrefix+"*."+Extension(item))
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	if _, err := tempFile.Write(item.Data); err != nil {
		_ = tempFile.Close()
		return tempFile.Name(), fmt.Errorf("failed to write %s to temp file: %w", item.Filename, err)
	}
	if err := tempFile.Close(); err != nil {
		return tempFile.Name(), fmt.Errorf("failed to close temp file: %w", err)
	}
	return tempFile.Name(), nil
}
