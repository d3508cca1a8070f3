package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ytget/yt-converter/internal/model"
)

func newRecord(token string) model.ArtifactRecord {
	return model.ArtifactRecord{
		Token:       token,
		FilePath:    "/tmp/" + token + "/a.mp3",
		DisplayName: "Song.mp3",
		CreatedAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Format:      model.FormatAudio,
		JobID:       "job-" + token,
	}
}

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	s, err := NewRedisStore("redis://"+srv.Addr(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// backends runs fn against every Store implementation
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		fn(t, newRedisTestStore(t))
	})
}

func TestStore_InsertLookup(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := newRecord("tok1")

		require.NoError(t, s.Insert(ctx, rec))

		got, ok, err := s.Lookup(ctx, "tok1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rec.FilePath, got.FilePath)
		assert.Equal(t, rec.DisplayName, got.DisplayName)
		assert.Equal(t, rec.Format, got.Format)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		_, ok, err = s.Lookup(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_DuplicateToken(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newRecord("dup")))

		other := newRecord("dup")
		other.FilePath = "/elsewhere.mp3"
		require.ErrorIs(t, s.Insert(ctx, other), ErrDuplicateToken)

		got, _, err := s.Lookup(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/dup/a.mp3", got.FilePath, "first record must be kept")
	})
}

func TestStore_LookupIsRepeatable(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, newRecord("again")))
		for range 3 {
			_, ok, err := s.Lookup(ctx, "again")
			require.NoError(t, err)
			require.True(t, ok)
		}
	})
}

func TestStore_RemoveAllAndSnapshot(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, tok := range []string{"a", "b", "c"} {
			require.NoError(t, s.Insert(ctx, newRecord(tok)))
		}

		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, snap, 3)

		require.NoError(t, s.RemoveAll(ctx, []string{"a", "c", "unknown"}))
		require.NoError(t, s.RemoveAll(ctx, nil))

		snap, err = s.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap, 1)
		assert.Equal(t, "b", snap[0].Token)

		_, ok, err := s.Lookup(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisStore_SnapshotSkipsUndecodableRecord(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, newRecord("good")))
	require.NoError(t, s.client.Set(ctx, artifactKey("bad"), "{not json", 0).Err())
	require.NoError(t, s.client.SAdd(ctx, indexKey, "bad").Err())

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "good", snap[0].Token)
}

func TestStore_ConcurrentInserts(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers, perWorker = 8, 50

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perWorker {
					errs <- s.Insert(ctx, newRecord(fmt.Sprintf("w%d-%d", w, i)))
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, snap, workers*perWorker)
	})
}

func TestMemoryStore_TenThousandTokensAreDistinct(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for range 10000 {
		require.NoError(t, s.Insert(ctx, newRecord(uuid.NewString())))
	}
	assert.Equal(t, 10000, s.Len())
}

func TestMemoryStore_SnapshotMatchesInserted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewMemoryStore()
		ctx := context.Background()
		tokens := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z0-9]{1,12}`), func(v string) string { return v }).Draw(t, "tokens")
		for _, tok := range tokens {
			if err := s.Insert(ctx, newRecord(tok)); err != nil {
				t.Fatalf("insert %q: %v", tok, err)
			}
		}

		removeN := rapid.IntRange(0, len(tokens)).Draw(t, "removeN")
		if err := s.RemoveAll(ctx, tokens[:removeN]); err != nil {
			t.Fatalf("remove: %v", err)
		}

		snap, err := s.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(snap) != len(tokens)-removeN {
			t.Fatalf("expected %d records, got %d", len(tokens)-removeN, len(snap))
		}
		for _, tok := range tokens[removeN:] {
			if _, ok, _ := s.Lookup(ctx, tok); !ok {
				t.Fatalf("token %q lost", tok)
			}
		}
	})
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("etcd", "", nil)
	require.Error(t, err)

	_, err = Open(BackendRedis, "not-a-url://", nil)
	require.Error(t, err)
}
