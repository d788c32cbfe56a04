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

package prompt

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// Timeline spreads captions evenly over duration seconds. Entry i is placed
// at int(i * duration / len(captions)); the real capture time of the frame is
// deliberately not used.
func Timeline(captions []string, duration int) []model.TimelineEntry {
	if len(captions) == 0 {
		return nil
	}
	interval := float64(duration) / float64(len(captions))
	out := make([]model.TimelineEntry, len(captions))
	for i, caption := range captions {
		ts := int(float64(i) * interval)
		out[i] = model.TimelineEntry{Minutes: ts / 60, Seconds: ts % 60, Caption: caption}
	}
	return out
}

// BuildVideoTimeline renders Timeline as "[MM:SS] caption" lines.
func BuildVideoTimeline(captions []string, duration int) string {
	entries := Timeline(captions, duration)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%02d:%02d] %s", e.Minutes, e.Seconds, e.Caption)
	}
	return strings.Join(lines, "\n")
}

const (
	MixedImagePreview   = 300 // Characters of each image description.
	MixedVideoSamples   = 3   // Captions shown per video.
	MixedCaptionPreview = 80  // Characters of each sample caption.
)

// MixedMediaContext summarises several media items for the mixed prompt.
func MixedMediaContext(images []string, videos []*model.VideoDigest) string {
	var parts []string
	if len(images) > 0 {
		parts = append(parts, fmt.Sprintf("%d image(s) shared:", len(images)))
		for i, content := range images {
			parts = append(parts, fmt.Sprintf("\nImage %d:", i+1))
			parts = append(parts, Truncate(content, MixedImagePreview)+"...")
		}
	}
	if len(videos) > 0 {
		parts = append(parts, fmt.Sprintf("\n%d video(s) shared:", len(videos)))
		for i, v := range videos {
			parts = append(parts, fmt.Sprintf("\nVideo %d (%ds):", i+1, v.Metadata.Duration))
			for j := 0; j < len(v.Captions) && j < MixedVideoSamples; j++ {
				parts = append(parts, "  → "+Truncate(v.Captions[j], MixedCaptionPreview))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
