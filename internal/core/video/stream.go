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

// Package video turns an uploaded video file into a small, ordered set of
// representative frames. Decoding is delegated to an Opener; the sampling
// policy (cadence, frame budget and the scene-change gate) lives in Sampler.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// ErrOpen is wrapped by every Opener failure.
var ErrOpen = errors.New("unable to open video")

// StreamInfo describes the primary video stream of a file.
type StreamInfo struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
}

// Metadata converts the stream description into the model representation.
// Duration is truncated to whole seconds and is 0 when the frame rate is
// unknown.
func (i StreamInfo) Metadata() model.VideoMetadata {
	duration := 0
	if i.FPS > 0 {
		duration = int(float64(i.TotalFrames) / i.FPS)
	}
	return model.VideoMetadata{
		Duration:    duration,
		FPS:         i.FPS,
		TotalFrames: i.TotalFrames,
		Width:       i.Width,
		Height:      i.Height,
		Resolution:  fmt.Sprintf("%dx%d", i.Width, i.Height),
	}
}

// Stream yields decoded frames in presentation order. Next returns io.EOF
// once the stream is exhausted. Every image returned by Next is owned by the
// caller and is never reused by the stream.
type Stream interface {
	Info() StreamInfo
	Next() (*image.RGBA, error)
	Close() error
}

// Opener gives access to a video file.
type Opener interface {
	// Probe reads the stream description without decoding frames.
	Probe(ctx context.Context, path string) (StreamInfo, error)
	// Open starts decoding path. The caller must Close the stream.
	Open(ctx context.Context, path string) (Stream, error)
}
