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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the in-memory types that flow through a
// single chat turn: the inbound request, the decoded video frames, the
// per-item media descriptions and the outbound reply. None of these are
// persisted in this form; the archive rows live in `persistent.go`.
package model

import (
	"image"
	"time"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the prefix used when a role is rendered into a prompt digest.
// Everything other than the user is rendered as the AI.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "AI"
}

// MessageKind is the content type of an archived message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindMixed MessageKind = "mixed"
)

// Mode is the conversation mode selected for a single turn. It is derived
// from the content of the request and never carried across turns.
type Mode string

const (
	ModeText       Mode = "text"
	ModeImage      Mode = "image"
	ModeMultiImage Mode = "multi_image"
	ModeMixed      Mode = "mixed"
	ModeVideo      Mode = "video"
)

// Kind maps a conversation mode onto the archived message kind.
func (m Mode) Kind() MessageKind {
	switch m {
	case ModeImage:
		return KindImage
	case ModeVideo:
		return KindVideo
	case ModeMultiImage, ModeMixed:
		return KindMixed
	default:
		return KindText
	}
}

// IncludesHistory reports whether the memory digest is prepended to the
// prompt for this mode. Multi-item and video turns are treated as a fresh topic.
func (m Mode) IncludesHistory() bool {
	return m == ModeText || m == ModeImage
}

// Message is a single entry in a conversation window. Once appended it is
// never modified.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Media     string    `json:"media,omitempty"` // Optional marker such as "image" or "video:12s".
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// VideoMetadata holds the properties of a video derived once when it is opened.
// The zero value means the video could not be read.
type VideoMetadata struct {
	Duration    int     `json:"duration"` // Whole seconds.
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Resolution  string  `json:"resolution"`
}

// IsZero reports whether the metadata is empty.
func (v VideoMetadata) IsZero() bool {
	return v == VideoMetadata{}
}

// Frame is a single decoded RGB image tagged with the index it was read at.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Image     *image.RGBA
}

// FrameSequence is the ordered list of frames retained by the sampler.
type FrameSequence []*Frame

// Indexes returns the frame indexes of the sequence, mostly for logging.
func (f FrameSequence) Indexes() []int {
	out := make([]int, 0, len(f))
	for _, frame := range f {
		out = append(out, frame.Index)
	}
	return out
}

// SampledVideo is the output of the frame sampling step.
type SampledVideo struct {
	Source   string
	Metadata VideoMetadata
	Frames   FrameSequence
}

// VideoDigest is a sampled video after every retained frame has been described.
type VideoDigest struct {
	Metadata VideoMetadata
	Captions []string
}

// TimelineEntry is one line of a synthesized video timeline.
type TimelineEntry struct {
	Minutes int
	Seconds int
	Caption string
}

// MediaItem is a single uploaded attachment held in memory for the turn.
type MediaItem struct {
	Filename string
	MIMEType string
	Data     []byte
}

// ChatRequest is the normalized inbound request for one turn.
type ChatRequest struct {
	SessionID string
	Text      string
	Images    []*MediaItem
	Videos    []*MediaItem
}

// IsEmpty reports whether the request has neither text nor media.
func (r *ChatRequest) IsEmpty() bool {
	return r == nil || (len(r.Text) == 0 && len(r.Images) == 0 && len(r.Videos) == 0)
}

// ChatReply is the result of a completed turn.
type ChatReply struct {
	SessionID string `json:"session_id"`
	Text      string `json:"response"`
	Mode      Mode   `json:"mode"`
	Degraded  bool   `json:"-"` // True when the reply is an apology for a failed call.
}

// TurnEvent is published after a turn has been recorded.
type TurnEvent struct {
	SessionID string    `json:"session_id"`
	Mode      Mode      `json:"mode"`
	Degraded  bool      `json:"degraded"`
	Images    int       `json:"images"`
	Videos    int       `json:"videos"`
	Timestamp time.Time `json:"timestamp"`
}
