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
	"image"
)

// DefaultSceneThreshold is the mean grayscale difference, on a 0-255 scale,
// above which two frames belong to different scenes.
const DefaultSceneThreshold = 30.0

// luma is the BT.601 weighting used by image/color for RGB to gray.
func luma(r, g, b uint8) int32 {
	return int32((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// SceneDifference returns the mean absolute difference between the grayscale
// renditions of a and b. The frames must have the same dimensions.
func SceneDifference(a, b *image.RGBA) float64 {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var total int64
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			d := luma(rowA[x], rowA[x+1], rowA[x+2]) - luma(rowB[x], rowB[x+1], rowB[x+2])
			if d < 0 {
				d = -d
			}
			total += int64(d)
		}
	}
	return float64(total) / float64(w*h)
}

// IsSceneChange reports whether current differs from previous by more than
// threshold. Frames of different dimensions always count as a change.
func IsSceneChange(previous, current *image.RGBA, threshold float64) bool {
	if previous == nil || current == nil {
		return true
	}
	if previous.Rect.Dx() != current.Rect.Dx() || previous.Rect.Dy() != current.Rect.Dy() {
		return true
	}
	return SceneDifference(previous, current) > threshold
}
