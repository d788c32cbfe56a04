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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

const (
	// DefaultFfprobeArgs reads the first video stream and the container
	// duration as JSON.
	DefaultFfprobeArgs      = "-v error -select_streams v:0 -show_entries stream=width,height,avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration -of json"
	// DefaultFfmpegInputArgs and DefaultFfmpegOutputArgs surround the input
	// path; together they decode every frame of the first video stream to
	// packed RGB on stdout.
	DefaultFfmpegInputArgs  = "-v error -nostdin -i"
	DefaultFfmpegOutputArgs = "-map 0:v:0 -f rawvideo -pix_fmt rgb24 -"
	CommandSeparator        = " "
)

// FFmpegOpener decodes videos with the ffprobe and ffmpeg executables.
type FFmpegOpener struct {
	FFmpegPath  string // e.g. "ffmpeg" or "/usr/bin/ffmpeg".
	FFprobePath string // e.g. "ffprobe".
}

// NewFFmpegOpener creates an opener for the given executables.
func NewFFmpegOpener(ffmpegPath, ffprobePath string) *FFmpegOpener {
	return &FFmpegOpener{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against path.
func (o *FFmpegOpener) Probe(ctx context.Context, path string) (StreamInfo, error) {
	args := append(strings.Split(DefaultFfprobeArgs, CommandSeparator), path)
	cmd := exec.CommandContext(ctx, o.FFprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return StreamInfo{}, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrOpen, path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("%w: invalid ffprobe output: %v", ErrOpen, err)
	}
	if len(out.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("%w: no video stream", ErrOpen)
	}
	s := out.Streams[0]
	info := StreamInfo{Width: s.Width, Height: s.Height}

	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}

	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
	} else {
		duration := parseFloat(s.Duration)
		if duration == 0 {
			duration = parseFloat(out.Format.Duration)
		}
		info.TotalFrames = int(math.Round(duration * info.FPS))
	}
	if info.Width <= 0 || info.Height <= 0 {
		return StreamInfo{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrOpen, info.Width, info.Height)
	}
	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001". Invalid or
// undefined ("0/0") rates return 0.
func parseRate(in string) float64 {
	num, den, found := strings.Cut(in, "/")
	if !found {
		return parseFloat(in)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(in string) float64 {
	v, err := strconv.ParseFloat(in, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Open probes path and starts an ffmpeg process that streams raw frames.
func (o *FFmpegOpener) Open(ctx context.Context, path string) (Stream, error) {
	info, err := o.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	args := strings.Split(DefaultFfmpegInputArgs, CommandSeparator)
	args = append(args, path)
	args = append(args, strings.Split(DefaultFfmpegOutputArgs, CommandSeparator)...)
	cmd := exec.CommandContext(ctx, o.FFmpegPath, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrOpen, err)
	}
	return &ffmpegStream{
		info:   info,
		cmd:    cmd,
		cancel: cancel,
		reader: bufio.NewReaderSize(stdout, info.Width*info.Height*3),
		stderr: stderr,
		buffer: make([]byte, info.Width*info.Height*3),
	}, nil
}

type ffmpegStream struct {
	info   StreamInfo
	cmd    *exec.Cmd
	cancel context.CancelFunc
	reader io.Reader
	stderr *bytes.Buffer
	buffer []byte
	closed bool
}

func (s *ffmpegStream) Info() StreamInfo {
	return s.info
}

func (s *ffmpegStream) Next() (*image.RGBA, error) {
	if _, err := io.ReadFull(s.reader, s.buffer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	for src, dst := 0, 0; src < len(s.buffer); src, dst = src+3, dst+4 {
		img.Pix[dst] = s.buffer[src]
		img.Pix[dst+1] = s.buffer[src+1]
		img.Pix[dst+2] = s.buffer[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}

// Close stops the decoder. Frames not yet read are discarded, so the exit
// status of a killed process is not reported.
func (s *ffmpegStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}
