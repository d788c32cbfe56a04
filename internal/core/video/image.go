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
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	JPEGMIMEType       = "image/jpeg"
	DefaultJPEGQuality = 85
)

// Resize scales img down so that it is at most maxWidth pixels wide,
// keeping the aspect ratio. Images already within bounds, or a maxWidth
// of 0, return img unchanged.
func Resize(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return img
	}
	height := bounds.Dy() * maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// ResizeRGBA is Resize for decoded frames.
func ResizeRGBA(img *image.RGBA, maxWidth int) *image.RGBA {
	if out, ok := Resize(img, maxWidth).(*image.RGBA); ok {
		return out
	}
	return img
}

// EncodeJPEG resizes img to maxWidth and encodes it for an inline vision
// request.
func EncodeJPEG(img image.Image, maxWidth int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(img, maxWidth), &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
