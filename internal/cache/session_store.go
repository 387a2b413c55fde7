package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"sysdesign-ai/internal/model"
)

// SessionStore keeps planning sessions in redis. Every save refreshes the
// TTL, so an idle session disappears on its own. Saves are compare-and-set
// on the session version, so a request working on a stale copy cannot
// overwrite a newer one.
type SessionStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSessionStore(client *redisv9.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*model.PlanSession, bool, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session failed: %w", err)
	}

	var session model.PlanSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached session failed: %w", err)
	}
	return &session, true, nil
}

// Save stores session if the stored copy still has session.Version, then
// bumps session.Version. It returns model.ErrSessionChanged otherwise.
func (s *SessionStore) Save(ctx context.Context, session *model.PlanSession) error {
	key := s.sessionKey(session.ID)
	based := session.Version

	next := *session
	next.Version = based + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redisv9.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != based {
			return model.ErrSessionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redisv9.TxFailedErr):
		return model.ErrSessionChanged
	case errors.Is(err, model.ErrSessionChanged):
		return err
	case err != nil:
		return fmt.Errorf("redis set session failed: %w", err)
	}

	session.Version = next.Version
	return nil
}

// storedVersion returns 0 for a session that does not exist.
func storedVersion(ctx context.Context, tx *redisv9.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redisv9.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return 0, fmt.Errorf("unmarshal cached session failed: %w", err)
	}
	return stored.Version, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("plan:session:%s", sessionID)
}
