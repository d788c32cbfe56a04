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

const (
	// QryMessagesBySession reads the archived entries of one session, oldest
	// first, skipping those recorded before the session was last cleared.
	// The placeholders are the fully qualified message and session tables;
	// the session id is bound as the @session_id parameter.
	QryMessagesBySession = "SELECT m.id, m.session_id, m.role, m.message_type, m.content, m.file_path, m.metadata, m.timestamp " +
		"FROM `%s` m LEFT JOIN `%s` s ON s.session_id = m.session_id " +
		"WHERE m.session_id = @session_id AND (s.cleared_at IS NULL OR m.timestamp > s.cleared_at) " +
		"ORDER BY m.timestamp ASC"

	// QryUpsertSession inserts or refreshes one session row. The placeholder
	// is the fully qualified session table. A null @cleared_at keeps the
	// archived clear time.
	QryUpsertSession = "MERGE `%s` t " +
		"USING (SELECT @session_id AS session_id, @created_at AS created_at, @last_activity AS last_activity, @cleared_at AS cleared_at) s " +
		"ON t.session_id = s.session_id " +
		"WHEN MATCHED THEN UPDATE SET last_activity = s.last_activity, cleared_at = IFNULL(s.cleared_at, t.cleared_at) " +
		"WHEN NOT MATCHED THEN INSERT (session_id, created_at, last_activity, cleared_at) " +
		"VALUES (s.session_id, s.created_at, s.last_activity, s.cleared_at)"
)
