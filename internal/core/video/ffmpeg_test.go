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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(`{
  "streams": [{"width": 1280, "height": 720, "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001", "nb_frames": "1798"}],
  "format": {"duration": "60.0"}
}`))
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 1798, info.TotalFrames)
	assert.Equal(t, "1280x720", info.Metadata().Resolution)
}

func TestParseProbeEstimatesFrameCount(t *testing.T) {
	// WebM containers do not report nb_frames.
	info, err := parseProbe([]byte(`{
  "streams": [{"width": 640, "height": 360, "avg_frame_rate": "0/0", "r_frame_rate": "25/1"}],
  "format": {"duration": "12.0"}
}`))
	require.NoError(t, err)
	assert.Equal(t, 25.0, info.FPS)
	assert.Equal(t, 300, info.TotalFrames)
}

func TestParseProbeRejectsFilesWithoutVideo(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams": [], "format": {}}`))
	assert.ErrorIs(t, err, ErrOpen)

	_, err = parseProbe([]byte(`not json`))
	assert.ErrorIs(t, err, ErrOpen)
}

func TestFFmpegOpenerMissingExecutable(t *testing.T) {
	opener := NewFFmpegOpener("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	_, err := opener.Open(context.Background(), "clip.mp4")
	assert.ErrorIs(t, err, ErrOpen)

	frames := NewSampler(opener).ExtractFrames(context.Background(), "clip.mp4")
	assert.Empty(t, frames)
}
