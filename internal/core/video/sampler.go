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

package video

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

const (
	DefaultIntervalSeconds = 5.0
	DefaultMaxFrames       = 30
)

// Sampler selects the frames of a video that are worth describing.
//
// A frame is considered when its index is a multiple of the frame interval
// and retained when it is the first considered frame or differs from the last
// retained frame by more than Threshold. Sampling stops after MaxFrames
// retained frames or at the end of the stream.
//
// The gate compares decoded frames at full resolution. Retained frames are
// stored downscaled to FrameWidth.
type Sampler struct {
	Opener     Opener
	Interval   float64 // Target cadence in seconds.
	MaxFrames  int     // Hard ceiling on retained frames.
	Threshold  float64 // Scene-change threshold, see IsSceneChange.
	FrameWidth int     // Width retained frames are scaled to; zero keeps them as decoded.
}

// NewSampler creates a sampler with the default policy.
func NewSampler(opener Opener) *Sampler {
	return &Sampler{
		Opener:    opener,
		Interval:  DefaultIntervalSeconds,
		MaxFrames: DefaultMaxFrames,
		Threshold: DefaultSceneThreshold,
	}
}

// NewSamplerFromConfig creates a sampler from the video section of the
// configuration. Unset values keep their defaults.
func NewSamplerFromConfig(opener Opener, config cloud.VideoSampling) *Sampler {
	s := NewSampler(opener)
	if config.IntervalSeconds > 0 {
		s.Interval = config.IntervalSeconds
	}
	if config.MaxFrames > 0 {
		s.MaxFrames = config.MaxFrames
	}
	if config.SceneThreshold > 0 {
		s.Threshold = config.SceneThreshold
	}
	if config.FrameWidth > 0 {
		s.FrameWidth = config.FrameWidth
	}
	return s
}

// FrameInterval returns the stride, in decoded frames, between two sampling
// attempts. The stride starts at round(fps*interval) and widens to
// floor(total/max) when the target cadence would exceed the frame budget.
func (s *Sampler) FrameInterval(info StreamInfo) int {
	interval := int(math.Round(info.FPS * s.Interval))
	if interval < 1 {
		interval = 1
	}
	duration := 0.0
	if info.FPS > 0 {
		duration = float64(info.TotalFrames) / info.FPS
	}
	estimated := int(math.Floor(duration / s.Interval))
	if estimated > s.MaxFrames {
		interval = info.TotalFrames / s.MaxFrames
		if interval < 1 {
			interval = 1
		}
	}
	return interval
}

// Metadata probes path. An unreadable file yields the zero value.
func (s *Sampler) Metadata(ctx context.Context, path string) model.VideoMetadata {
	info, err := s.Opener.Probe(ctx, path)
	if err != nil {
		slog.WarnContext(ctx, "unable to read video metadata", "path", path, "error", err)
		return model.VideoMetadata{}
	}
	return info.Metadata()
}

// ExtractFrames decodes path and returns the retained frames in order. An
// unreadable file yields an empty sequence; decode errors part way through
// keep the frames retained so far. The stream is closed on every path.
func (s *Sampler) ExtractFrames(ctx context.Context, path string) model.FrameSequence {
	frames := make(model.FrameSequence, 0)
	if s.MaxFrames <= 0 {
		return frames
	}

	stream, err := s.Opener.Open(ctx, path)
	if err != nil {
		slog.WarnContext(ctx, "unable to open video", "path", path, "error", err)
		return frames
	}
	defer func() {
		if err := stream.Close(); err != nil {
			slog.DebugContext(ctx, "error closing video stream", "path", path, "error", err)
		}
	}()

	info := stream.Info()
	interval := s.FrameInterval(info)
	slog.DebugContext(ctx, "sampling video",
		"path", path,
		"fps", info.FPS,
		"total_frames", info.TotalFrames,
		"frame_interval", interval,
		"max_frames", s.MaxFrames)

	// previous is the last retained frame as decoded.
	var previous *image.RGBA
	for index := 0; len(frames) < s.MaxFrames; index++ {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "video sampling cancelled", "path", path, "retained", len(frames))
			break
		}
		img, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.WarnContext(ctx, "error decoding video frame", "path", path, "index", index, "error", err)
			break
		}
		if index%interval != 0 {
			continue
		}
		if previous != nil && !IsSceneChange(previous, img, s.Threshold) {
			continue
		}
		frame := &model.Frame{Index: index, Timestamp: frameTimestamp(index, info.FPS), Image: ResizeRGBA(img, s.FrameWidth)}
		frames = append(frames, frame)
		previous = img
		slog.DebugContext(ctx, "retained frame", "index", index, "retained", len(frames))
	}

	slog.InfoContext(ctx, "video sampled", "path", path, "retained", len(frames), "frame_interval", interval)
	return frames
}

func frameTimestamp(index int, fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(index) / fps * float64(time.Second))
}
