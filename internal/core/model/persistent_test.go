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

// Package model_test contains unit tests for the data models defined in the
// model package.
package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/stretchr/testify/assert"
)

// TestNewSession verifies that a new session gets a valid random ID and that
// both timestamps are set to the current time.
func TestNewSession(t *testing.T) {
	session := model.NewSession()

	_, err := uuid.Parse(session.ID)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), session.CreatedAt, time.Second)
	assert.Equal(t, session.CreatedAt, session.LastActivity)
	assert.NotEqual(t, session.ID, model.NewSession().ID)
}

// TestNewMessageRecord checks that the record copies the entry and encodes
// the metadata map as JSON.
func TestNewMessageRecord(t *testing.T) {
	msg := model.NewMessage(model.RoleUser, "[Video 12s] what happens here?")
	record := model.NewMessageRecord("s-1", model.KindVideo, msg, map[string]interface{}{"duration": 12})

	assert.Equal(t, "s-1", record.SessionID)
	assert.Equal(t, model.RoleUser, record.Role)
	assert.Equal(t, model.KindVideo, record.Kind)
	assert.Equal(t, msg.Content, record.Content)
	assert.Equal(t, msg.Timestamp, record.Timestamp)
	assert.JSONEq(t, `{"duration":12}`, record.Metadata)

	empty := model.NewMessageRecord("s-1", model.KindText, msg, nil)
	assert.Equal(t, "", empty.Metadata)
	assert.Equal(t, msg.Content, empty.AsMessage().Content)
}

// TestModeKinds verifies the mapping between conversation modes, archive
// kinds and whether the memory digest is used.
func TestModeKinds(t *testing.T) {
	cases := []struct {
		mode    model.Mode
		kind    model.MessageKind
		history bool
	}{
		{model.ModeText, model.KindText, true},
		{model.ModeImage, model.KindImage, true},
		{model.ModeMultiImage, model.KindMixed, false},
		{model.ModeMixed, model.KindMixed, false},
		{model.ModeVideo, model.KindVideo, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.mode.Kind(), string(c.mode))
		assert.Equal(t, c.history, c.mode.IncludesHistory(), string(c.mode))
	}
	assert.Equal(t, "User", model.RoleUser.Label())
	assert.Equal(t, "AI", model.RoleAssistant.Label())
}
