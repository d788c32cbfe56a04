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

// Package memory keeps the bounded conversation window of each session and
// renders the digest of recent turns that is prepended to new prompts.
package memory

import (
	"strings"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

const (
	DefaultMaxPairs = 10
	DigestHeader    = "Recent history:"
	DigestEntries   = 6   // Most recent entries shown in the digest.
	DigestCharLimit = 150 // Characters of each entry shown in the digest.
	Ellipsis        = "..."
)

// ConversationMemory is a rolling window of at most 2*MaxPairs messages.
// It is not safe for concurrent use; the stores hand out copies.
type ConversationMemory struct {
	maxPairs int
	messages []model.Message
}

// NewConversationMemory creates an empty window. A non positive maxPairs
// uses DefaultMaxPairs.
func NewConversationMemory(maxPairs int) *ConversationMemory {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	return &ConversationMemory{maxPairs: maxPairs, messages: make([]model.Message, 0, 2*maxPairs)}
}

// Capacity returns the maximum number of entries.
func (m *ConversationMemory) Capacity() int {
	return 2 * m.maxPairs
}

// Add appends one entry and evicts the oldest entries beyond capacity.
func (m *ConversationMemory) Add(role model.Role, content string) {
	m.Append(model.NewMessage(role, content))
}

// Append adds messages in order, keeping the most recent Capacity entries.
func (m *ConversationMemory) Append(messages ...model.Message) {
	m.messages = append(m.messages, messages...)
	if over := len(m.messages) - m.Capacity(); over > 0 {
		m.messages = append(m.messages[:0:0], m.messages[over:]...)
	}
}

// Len returns the number of entries.
func (m *ConversationMemory) Len() int {
	return len(m.messages)
}

// Messages returns a copy of the window, oldest first.
func (m *ConversationMemory) Messages() []model.Message {
	return append([]model.Message{}, m.messages...)
}

// Clear empties the window.
func (m *ConversationMemory) Clear() {
	m.messages = m.messages[:0]
}

// Digest renders the last DigestEntries entries as "User: ..." and "AI: ..."
// lines under DigestHeader, followed by a blank line. An empty window renders
// as the empty string.
func (m *ConversationMemory) Digest() string {
	if len(m.messages) == 0 {
		return ""
	}
	recent := m.messages
	if len(recent) > DigestEntries {
		recent = recent[len(recent)-DigestEntries:]
	}
	lines := make([]string, 0, len(recent)+1)
	lines = append(lines, DigestHeader)
	for _, msg := range recent {
		lines = append(lines, msg.Role.Label()+": "+truncate(msg.Content, DigestCharLimit))
	}
	return strings.Join(lines, "\n") + "\n\n"
}

func truncate(s string, limit int) string {
	n := 0
	for pos := range s {
		if n == limit {
			return s[:pos] + Ellipsis
		}
		n++
	}
	return s
}
