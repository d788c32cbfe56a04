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

package cloud

import (
	"context"
	"sync"

	"google.golang.org/genai"
)

// VisionHandle is the shared vision model. The model is resolved on first
// use, exactly once, and every later caller reads the same instance (or the
// same initialization error).
type VisionHandle struct {
	get func() (ContentGenerator, error)
}

// NewVisionHandle creates a handle that resolves its model with init.
func NewVisionHandle(init func() (ContentGenerator, error)) *VisionHandle {
	return &VisionHandle{get: sync.OnceValues(init)}
}

// NewStaticVisionHandle wraps an already constructed model.
func NewStaticVisionHandle(model ContentGenerator) *VisionHandle {
	return NewVisionHandle(func() (ContentGenerator, error) { return model, nil })
}

// Model returns the resolved vision model.
func (v *VisionHandle) Model() (ContentGenerator, error) {
	return v.get()
}

// GenerateContent resolves the model and forwards the call.
func (v *VisionHandle) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	m, err := v.get()
	if err != nil {
		return nil, err
	}
	return m.GenerateContent(ctx, content)
}
