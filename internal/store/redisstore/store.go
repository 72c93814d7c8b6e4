package redisstore

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumisalon/salon-chat/internal/chat"
)

// Store caches session transcripts in redis. Every cache failure is
// logged and treated as a miss; the database stays authoritative.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, ttl: ttl}
}

func transcriptKey(sessionID string) string {
	return "transcript:" + sessionID
}

func (s *Store) GetTranscript(ctx context.Context, sessionID string) ([]chat.Message, bool) {
	raw, err := s.rdb.Get(ctx, transcriptKey(sessionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("redisstore: get transcript failed session_id=%s err=%v", sessionID, err)
		}
		return nil, false
	}
	var msgs []chat.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		log.Printf("redisstore: decode transcript failed session_id=%s err=%v", sessionID, err)
		return nil, false
	}
	return msgs, true
}

func (s *Store) SetTranscript(ctx context.Context, sessionID string, msgs []chat.Message) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, transcriptKey(sessionID), raw, s.ttl).Err(); err != nil {
		log.Printf("redisstore: set transcript failed session_id=%s err=%v", sessionID, err)
	}
}

func (s *Store) Invalidate(ctx context.Context, sessionID string) {
	if err := s.rdb.Del(ctx, transcriptKey(sessionID)).Err(); err != nil {
		log.Printf("redisstore: invalidate failed session_id=%s err=%v", sessionID, err)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
