// Package store persists transcript snapshots to Redis with per-key
// expiry. The snapshot record is overwritten on every save; a summary
// record and a time-ordered index are maintained alongside it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
	"call-transcription-bot/internal/transcript"
)

// ErrNotFound - no snapshot exists for the session, either never
// written or already expired.
var ErrNotFound = errors.New("store: snapshot not found")

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL is the expiry window shared by every record of a session,
	// reset on each write.
	TTL         time.Duration
	DialTimeout time.Duration
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		TTL:         24 * time.Hour,
		DialTimeout: 5 * time.Second,
	}
}

// Store is a transcript snapshot store backed by Redis.
type Store struct {
	client  *redis.Client
	ttl     time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", cfg.Addr, err)
	}

	return &Store{
		client:  client,
		ttl:     cfg.TTL,
		log:     logging.WithComponent("store"),
		metrics: metrics.DefaultMetrics,
	}, nil
}

func transcriptKey(sessionID string) string {
	return "session:" + sessionID + ":transcript"
}

func summaryKey(sessionID string) string {
	return "session:" + sessionID + ":summary"
}

func timeIndexKey(sessionID string) string {
	return "session:" + sessionID + ":timeindex"
}

// SaveSnapshot overwrites the session's current snapshot and resets its
// expiry. The summary record is updated and the serialized write is
// appended to the time-ordered index; the index is additive, the
// snapshot is not.
func (s *Store) SaveSnapshot(ctx context.Context, snap transcript.Snapshot, status string) error {
	start := time.Now()
	err := s.saveSnapshot(ctx, snap, status)
	s.metrics.RecordStoreWrite(err, time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", snap.SessionID).Msg("Snapshot write failed")
	}
	return err
}

func (s *Store) saveSnapshot(ctx context.Context, snap transcript.Snapshot, status string) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	summary, err := json.Marshal(transcript.Summary{
		SessionID:     snap.SessionID,
		UpdatedAt:     snap.Timestamp,
		TranscriptLen: len(snap.Text),
		Status:        status,
	})
	if err != nil {
		return fmt.Errorf("store: marshal summary: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, transcriptKey(snap.SessionID), data, s.ttl)
		pipe.Set(ctx, summaryKey(snap.SessionID), summary, s.ttl)
		pipe.ZAdd(ctx, timeIndexKey(snap.SessionID), redis.Z{
			Score:  float64(snap.Timestamp),
			Member: string(data),
		})
		pipe.Expire(ctx, timeIndexKey(snap.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// GetSnapshot returns the current snapshot for the session, or
// ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, sessionID string) (transcript.Snapshot, error) {
	raw, err := s.client.Get(ctx, transcriptKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return transcript.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return transcript.Snapshot{}, fmt.Errorf("store: get snapshot %s: %w", sessionID, err)
	}

	var snap transcript.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return transcript.Snapshot{}, fmt.Errorf("store: unmarshal snapshot %s: %w", sessionID, err)
	}
	return snap, nil
}

// GetSummary returns the session's summary record, or ErrNotFound.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (transcript.Summary, error) {
	raw, err := s.client.Get(ctx, summaryKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return transcript.Summary{}, ErrNotFound
	}
	if err != nil {
		return transcript.Summary{}, fmt.Errorf("store: get summary %s: %w", sessionID, err)
	}

	var sum transcript.Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return transcript.Summary{}, fmt.Errorf("store: unmarshal summary %s: %w", sessionID, err)
	}
	return sum, nil
}

// History returns snapshots from the time index in chronological
// order, up to limit entries (0 means all).
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]transcript.Snapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := s.client.ZRange(ctx, timeIndexKey(sessionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", sessionID, err)
	}

	out := make([]transcript.Snapshot, 0, len(raws))
	for _, raw := range raws {
		var snap transcript.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Skipping unreadable index entry")
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
