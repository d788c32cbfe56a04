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
// This file, `persistent.go`, contains the rows written to the BigQuery
// archive: one row per session and one row per conversation entry.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is a chat session. Sessions are listed by LastActivity descending.
type Session struct {
	ID           string    `json:"session_id" bigquery:"session_id"`
	CreatedAt    time.Time `json:"created_at" bigquery:"created_at"`
	LastActivity time.Time `json:"last_activity" bigquery:"last_activity"`
	// ClearedAt is the time of the last clear; zero when never cleared.
	// Archived entries up to it are not restored.
	ClearedAt    time.Time `json:"-" bigquery:"cleared_at"`
}

// NewSession creates a session with a random identifier.
func NewSession() *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), CreatedAt: now, LastActivity: now}
}

// MessageRecord is an archived conversation entry. Records of one session
// are read back ordered by Timestamp ascending.
type MessageRecord struct {
	ID        string      `json:"id" bigquery:"id"`
	SessionID string      `json:"session_id" bigquery:"session_id"`
	Role      Role        `json:"role" bigquery:"role"`
	Kind      MessageKind `json:"message_type" bigquery:"message_type"`
	Content   string      `json:"content" bigquery:"content"`
	FilePath  string      `json:"file_path,omitempty" bigquery:"file_path"` // Stored object name in the upload bucket.
	Metadata  string      `json:"metadata,omitempty" bigquery:"metadata"`   // Free-form JSON.
	Timestamp time.Time   `json:"timestamp" bigquery:"timestamp"`
}

// NewMessageRecord creates a record for a conversation entry. The metadata
// map is encoded as JSON; a nil map leaves the column empty.
func NewMessageRecord(sessionID string, kind MessageKind, msg Message, metadata map[string]interface{}) *MessageRecord {
	out := &MessageRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      msg.Role,
		Kind:      kind,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			out.Metadata = string(b)
		}
	}
	return out
}

// AsMessage converts an archived record back to a conversation entry.
func (r *MessageRecord) AsMessage() Message {
	return Message{Role: r.Role, Content: r.Content, Media: r.FilePath, Timestamp: r.Timestamp}
}
