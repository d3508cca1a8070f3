package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ytget/yt-converter/internal/model"
)

const (
	defaultRedisURL = "redis://localhost:6379/0"
	keyPrefix       = "ytc:artifact:"
	indexKey        = "ytc:artifacts"
	pingTimeout     = 2 * time.Second
)

// RedisStore implements Store with one JSON document per token plus an
// index set of all tokens.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to Redis at url.
func NewRedisStore(url string, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, logger: logger}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func artifactKey(token string) string {
	return keyPrefix + token
}

// Insert implements Store
func (s *RedisStore) Insert(ctx context.Context, rec model.ArtifactRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, artifactKey(rec.Token), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if !ok {
		return ErrDuplicateToken
	}
	if err := s.client.SAdd(ctx, indexKey, rec.Token).Err(); err != nil {
		// Roll back so no unindexed record lingers past the sweeper
		s.client.Del(context.WithoutCancel(ctx), artifactKey(rec.Token))
		return fmt.Errorf("index record: %w", err)
	}
	return nil
}

// Lookup implements Store
func (s *RedisStore) Lookup(ctx context.Context, token string) (model.ArtifactRecord, bool, error) {
	data, err := s.client.Get(ctx, artifactKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ArtifactRecord{}, false, nil
	}
	if err != nil {
		return model.ArtifactRecord{}, false, fmt.Errorf("lookup record: %w", err)
	}
	var rec model.ArtifactRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.ArtifactRecord{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

// RemoveAll implements Store
func (s *RedisStore) RemoveAll(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	keys := make([]string, len(tokens))
	members := make([]any, len(tokens))
	for i, token := range tokens {
		keys[i] = artifactKey(token)
		members[i] = token
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, indexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove records: %w", err)
	}
	return nil
}

// Snapshot implements Store
func (s *RedisStore) Snapshot(ctx context.Context) ([]model.ArtifactRecord, error) {
	tokens, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = artifactKey(token)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	out := make([]model.ArtifactRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a document
			continue
		}
		var rec model.ArtifactRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			s.logger.Warn("skipping undecodable artifact record", "token", tokens[i], "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
