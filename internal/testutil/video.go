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

package test

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

// SyntheticVideo is a video whose frames are solid gray images. Shade
// returns the gray level of frame i.
type SyntheticVideo struct {
	Info  video.StreamInfo
	Shade func(i int) uint8
	// FailAt makes Next return an error at that index. Negative disables it.
	FailAt int
}

// SceneEvery returns a Shade that switches between black and white every n
// frames, so each switch is a scene change at any threshold below 255.
func SceneEvery(n int) func(int) uint8 {
	return func(i int) uint8 {
		if (i/n)%2 == 0 {
			return 0
		}
		return 255
	}
}

// Constant returns a Shade that never changes.
func Constant(level uint8) func(int) uint8 {
	return func(int) uint8 { return level }
}

// NewSyntheticVideo creates a small video of the given length.
func NewSyntheticVideo(fps float64, totalFrames int, shade func(int) uint8) *SyntheticVideo {
	return &SyntheticVideo{
		Info:   video.StreamInfo{FPS: fps, TotalFrames: totalFrames, Width: 8, Height: 6},
		Shade:  shade,
		FailAt: -1,
	}
}

// SyntheticOpener serves SyntheticVideos by path and records stream
// lifecycle so tests can assert that every opened stream was closed.
type SyntheticOpener struct {
	mu     sync.Mutex
	videos map[string]*SyntheticVideo
	opened int
	closed int
	reads  int
}

// NewSyntheticOpener creates an empty opener.
func NewSyntheticOpener() *SyntheticOpener {
	return &SyntheticOpener{videos: make(map[string]*SyntheticVideo)}
}

// Add registers v under path.
func (o *SyntheticOpener) Add(path string, v *SyntheticVideo) *SyntheticOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.videos[path] = v
	return o
}

// AddAny registers v under every path; it is used when the path is a temp
// file chosen at runtime.
func (o *SyntheticOpener) AddAny(v *SyntheticVideo) *SyntheticOpener {
	return o.Add("*", v)
}

func (o *SyntheticOpener) lookup(path string) (*SyntheticVideo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.videos[path]; ok {
		return v, nil
	}
	if v, ok := o.videos["*"]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", video.ErrOpen, path)
}

// Probe implements video.Opener.
func (o *SyntheticOpener) Probe(_ context.Context, path string) (video.StreamInfo, error) {
	v, err := o.lookup(path)
	if err != nil {
		return video.StreamInfo{}, err
	}
	return v.Info, nil
}

// Open implements video.Opener.
func (o *SyntheticOpener) Open(_ context.Context, path string) (video.Stream, error) {
	v, err := o.lookup(path)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
	return &syntheticStream{opener: o, video: v}, nil
}

// Opened returns the number of streams opened so far.
func (o *SyntheticOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// Closed returns the number of streams closed so far.
func (o *SyntheticOpener) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Reads returns the number of frames decoded so far.
func (o *SyntheticOpener) Reads() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reads
}

type syntheticStream struct {
	opener *SyntheticOpener
	video  *SyntheticVideo
	next   int
}

func (s *syntheticStream) Info() video.StreamInfo {
	return s.video.Info
}

func (s *syntheticStream) Next() (*image.RGBA, error) {
	if s.next >= s.video.Info.TotalFrames {
		return nil, io.EOF
	}
	if s.video.FailAt >= 0 && s.next == s.video.FailAt {
		return nil, fmt.Errorf("corrupt frame %d", s.next)
	}
	img := SolidFrame(s.video.Info.Width, s.video.Info.Height, s.video.Shade(s.next))
	s.next++
	s.opener.mu.Lock()
	s.opener.reads++
	s.opener.mu.Unlock()
	return img, nil
}

func (s *syntheticStream) Close() error {
	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()
	s.opener.closed++
	return nil
}

// SolidFrame returns a w x h image filled with a single gray level.
func SolidFrame(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: level, G: level, B: level, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
