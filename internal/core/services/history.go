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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

// HistoryService archives sessions and conversation entries to BigQuery.
type HistoryService struct {
	BigqueryClient *bigquery.Client // Client for interacting with Google BigQuery.
	DatasetName    string           // The dataset holding both tables.
	SessionTable   string           // One row per session.
	MessageTable   string           // One row per conversation entry.
}

// GetFQN returns the fully qualified name of table in standard SQL form.
func (s *HistoryService) GetFQN(table string) string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(table).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// RecordSession upserts the session row with a MERGE statement, so the row
// follows the session's last activity and clear time.
func (s *HistoryService) RecordSession(ctx context.Context, session *model.Session) error {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryUpsertSession, s.GetFQN(s.SessionTable)))
	q.Parameters = SessionParameters(session)
	// Read runs the statement and waits for the job to complete.
	if _, err := q.Read(ctx); err != nil {
		return fmt.Errorf("bigquery merge failed for session %s: %w", session.ID, err)
	}
	return nil
}

// SessionParameters binds session to the parameters of QryUpsertSession.
func SessionParameters(session *model.Session) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "session_id", Value: session.ID},
		{Name: "created_at", Value: session.CreatedAt},
		{Name: "last_activity", Value: session.LastActivity},
		{Name: "cleared_at", Value: bigquery.NullTimestamp{Timestamp: session.ClearedAt, Valid: !session.ClearedAt.IsZero()}},
	}
}

func (s *HistoryService) RecordMessages(ctx context.Context, records ...*model.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	i := s.BigqueryClient.Dataset(s.DatasetName).Table(s.MessageTable).Inserter()
	if err := i.Put(ctx, records); err != nil {
		return fmt.Errorf("bigquery insert failed for session %s: %w", records[0].SessionID, err)
	}
	return nil
}

// Messages returns the archived entries of a session ordered by timestamp.
// Entries recorded before the session's archived clear time are left out.
func (s *HistoryService) Messages(ctx context.Context, sessionID string) ([]*model.MessageRecord, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryMessagesBySession, s.GetFQN(s.MessageTable), s.GetFQN(s.SessionTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "session_id", Value: sessionID}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MessageRecord, 0)
	for {
		var record model.MessageRecord
		err := itr.Next(&record)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, &record)
	}
	return out, nil
}
