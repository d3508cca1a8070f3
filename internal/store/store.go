// Package store keeps the token to artifact mapping.
//
// Two backends implement Store: an in-process map built on go-cache and a
// Redis backend for deployments where the sweeper runs out of process.
// Neither backend expires entries on its own; eviction belongs to the
// retention sweeper.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ytget/yt-converter/internal/model"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrDuplicateToken is returned by Insert when the token is already registered.
var ErrDuplicateToken = errors.New("duplicate token")

// Store is the artifact registry. Every method is safe for concurrent use.
type Store interface {
	// Insert registers rec under rec.Token.
	Insert(ctx context.Context, rec model.ArtifactRecord) error
	// Lookup returns the record for token. It never mutates state.
	Lookup(ctx context.Context, token string) (model.ArtifactRecord, bool, error)
	// RemoveAll deletes every listed token. Unknown tokens are ignored.
	RemoveAll(ctx context.Context, tokens []string) error
	// Snapshot returns a point-in-time copy of all records.
	Snapshot(ctx context.Context) ([]model.ArtifactRecord, error)
	// Close releases backend resources.
	Close() error
}

// Open builds the store selected by backend.
func Open(backend, redisURL string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case "", BackendMemory:
		logger.Info("using in-memory artifact store")
		return NewMemoryStore(), nil
	case BackendRedis:
		s, err := NewRedisStore(redisURL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis artifact store")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
