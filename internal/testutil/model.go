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
	"strings"
	"sync"

	"google.golang.org/genai"
)

// Call is one request received by a FakeModel.
type Call struct {
	Text   string // All text parts joined by a newline.
	Images int    // Number of inline data parts.
}

// FakeModel is a cloud.ContentGenerator that answers from a function and
// records every request. It is safe for concurrent use.
type FakeModel struct {
	mu      sync.Mutex
	calls   []Call
	Respond func(call Call) (string, error)
}

// NewFakeModel answers every request with reply.
func NewFakeModel(reply string) *FakeModel {
	return &FakeModel{Respond: func(Call) (string, error) { return reply, nil }}
}

// NewFailingModel fails every request with err.
func NewFailingModel(err error) *FakeModel {
	return &FakeModel{Respond: func(Call) (string, error) { return "", err }}
}

// GenerateContent implements cloud.ContentGenerator.
func (f *FakeModel) GenerateContent(_ context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	var call Call
	var texts []string
	for _, c := range content {
		for _, p := range c.Parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
			if p.InlineData != nil {
				call.Images++
			}
		}
	}
	call.Text = strings.Join(texts, "\n")

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	reply, err := f.Respond(call)
	if err != nil {
		return nil, err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: reply}}}}},
	}, nil
}

// Calls returns a copy of the recorded requests.
func (f *FakeModel) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastCall returns the most recent request, or the zero Call.
func (f *FakeModel) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}
