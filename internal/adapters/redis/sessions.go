package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ticketry/boxoffice/internal/checkout"
)

// SessionStore keeps checkout step data (billing, payment token) in redis.
// This state is session-local; losing it costs the shopper a re-entry, not
// inventory.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds a store whose entries outlive the hold by the given
// TTL, so an expired session still reads as expired rather than missing.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Save(ctx context.Context, session checkout.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.SessionID), data, s.ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*checkout.Session, error) {
	val, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session checkout.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

func sessionKey(sessionID uuid.UUID) string {
	return "checkout:" + sessionID.String()
}
