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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/cloud"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/video"
)

var sampleFlags struct {
	interval  float64
	maxFrames int
	threshold float64
	outDir    string
}

var sampleCmd = &cobra.Command{
	Use:   "sample <video>",
	Short: "Run the frame sampler on a local video",
	Long: `Sample decodes a local video with ffmpeg, applies the same frame sampling
policy as the chat server and prints the video metadata and the retained
frames. No model is called. With --out the retained frames are written as
JPEG files.`,
	Args: cobra.ExactArgs(1),
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().Float64Var(&sampleFlags.interval, "interval", 0, "target seconds between frames (default from video.interval_seconds)")
	sampleCmd.Flags().IntVar(&sampleFlags.maxFrames, "max-frames", 0, "maximum retained frames (default from video.max_frames)")
	sampleCmd.Flags().Float64Var(&sampleFlags.threshold, "threshold", 0, "scene change threshold (default from video.scene_threshold)")
	sampleCmd.Flags().StringVar(&sampleFlags.outDir, "out", "", "directory the retained frames are written to")
	rootCmd.AddCommand(sampleCmd)
}

type sampledFrame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	File      string  `json:"file,omitempty"`
}

type sampleReport struct {
	Video    string              `json:"video"`
	Metadata model.VideoMetadata `json:"metadata"`
	Interval int                 `json:"frame_interval"`
	Frames   []sampledFrame      `json:"frames"`
}

func runSample(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read video: %w", err)
	}

	// Sampling needs no credentials, so the configuration is loaded without
	// validation and only its video section is used.
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return err
	}
	sc := config.Video
	if sampleFlags.interval > 0 {
		sc.IntervalSeconds = sampleFlags.interval
	}
	if sampleFlags.maxFrames > 0 {
		sc.MaxFrames = sampleFlags.maxFrames
	}
	if sampleFlags.threshold > 0 {
		sc.SceneThreshold = sampleFlags.threshold
	}

	opener := video.NewFFmpegOpener(sc.FFmpegPath, sc.FFprobePath)
	sampler := video.NewSamplerFromConfig(opener, sc)

	ctx := cmd.Context()
	report := sampleReport{Video: path, Frames: make([]sampledFrame, 0)}
	info, err := opener.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", path, err)
	}
	report.Metadata = info.Metadata()
	report.Interval = sampler.FrameInterval(info)

	if sampleFlags.outDir != "" {
		if err := os.MkdirAll(sampleFlags.outDir, 0o755); err != nil {
			return err
		}
	}

	for _, frame := range sampler.ExtractFrames(ctx, path) {
		out := sampledFrame{Index: frame.Index, Timestamp: frame.Timestamp.Seconds()}
		if sampleFlags.outDir != "" {
			data, err := video.EncodeJPEG(frame.Image, sc.FrameWidth)
			if err != nil {
				return fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
			}
			out.File = filepath.Join(sampleFlags.outDir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
			if err := os.WriteFile(out.File, data, 0o644); err != nil {
				return err
			}
		}
		report.Frames = append(report.Frames, out)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
