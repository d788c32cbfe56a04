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

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
)

const (
	defaultRedisPrefix = "chat"
	defaultRedisTTL    = 24 * time.Hour

	fieldCreatedAt    = "created_at"
	fieldLastActivity = "last_activity"
	fieldClearedAt    = "cleared_at"
)

// RedisStore keeps the windows in Redis so that several server instances
// share them.
//
// Layout, for prefix p and session s:
//   - p:session:s           hash with created_at, last_activity and cleared_at (unix nanos)
//   - p:session:s:messages  list of JSON messages, trimmed to the capacity
//   - p:sessions            sorted set of session ids scored by last activity
//
// The per-session keys expire after the TTL; the sorted set is pruned by
// Evict and lazily by Sessions.
type RedisStore struct {
	client   *redis.Client
	maxPairs int
	ttl      time.Duration
	prefix   string
	now      func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the idle time after which Redis drops a session. Zero disables
// expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisClock replaces the time source; it is used by tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a store on client whose windows hold maxPairs pairs.
func NewRedisStore(client *redis.Client, maxPairs int, opts ...RedisOption) *RedisStore {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	store := &RedisStore{
		client:   client,
		maxPairs: maxPairs,
		ttl:      defaultRedisTTL,
		prefix:   defaultRedisPrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *RedisStore) messagesKey(id string) string {
	return fmt.Sprintf("%s:session:%s:messages", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":sessions"
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*ConversationMemory, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	values, err := s.client.LRange(ctx, s.messagesKey(sessionID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := NewConversationMemory(s.maxPairs)
	for _, v := range values {
		var msg model.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out.Append(msg)
	}
	return out, nil
}

// Append pushes messages and trims the list in a single transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...model.Message) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, len(messages))
	for i, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values[i] = data
	}

	key := s.messagesKey(sessionID)
	capacity := int64(2 * s.maxPairs)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -capacity, -1)
	s.touch(ctx, pipe, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	key := s.sessionKey(sessionID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.messagesKey(sessionID))
	if exists > 0 {
		pipe.HSet(ctx, key, fieldClearedAt, s.now().UnixNano())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	return parseSession(sessionID, fields), nil
}

// touch queues the commands that record activity on pipe. The returned
// command reports, once executed, whether the session was created.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, sessionID string) *redis.BoolCmd {
	now := s.now()
	key := s.sessionKey(sessionID)
	created := pipe.HSetNX(ctx, key, fieldCreatedAt, now.UnixNano())
	pipe.HSet(ctx, key, fieldLastActivity, now.UnixNano())
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.Unix()), Member: sessionID})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.messagesKey(sessionID), s.ttl)
	}
	return created
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string) (*model.Session, bool, error) {
	if sessionID == "" {
		return nil, false, ErrInvalidSessionID
	}
	pipe := s.client.TxPipeline()
	created := s.touch(ctx, pipe, sessionID)
	fields := pipe.HGetAll(ctx, s.sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("redis pipeline failed: %w", err)
	}
	return parseSession(sessionID, fields.Val()), created.Val(), nil
}

func (s *RedisStore) Sessions(ctx context.Context) ([]*model.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Session{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	out := make([]*model.Session, 0, len(ids))
	var expired []interface{}
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			expired = append(expired, id)
			continue
		}
		out = append(out, parseSession(id, fields))
	}
	if len(expired) > 0 {
		s.client.ZRem(ctx, s.indexKey(), expired...)
	}
	sortByActivity(out)
	return out, nil
}

func (s *RedisStore) Evict(ctx context.Context, idleFor time.Duration) ([]string, error) {
	cutoff := s.now().Add(-idleFor).Unix()
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.TxPipeline()
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
		pipe.Del(ctx, s.sessionKey(id), s.messagesKey(id))
	}
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}
	return ids, nil
}

func parseSession(id string, fields map[string]string) *model.Session {
	out := &model.Session{ID: id}
	if v, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		out.CreatedAt = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(fields[fieldLastActivity], 10, 64); err == nil {
		out.LastActivity = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(fields[fieldClearedAt], 10, 64); err == nil {
		out.ClearedAt = time.Unix(0, v)
	}
	return out
}
