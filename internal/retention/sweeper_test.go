package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ytget/yt-converter/internal/model"
	"github.com/ytget/yt-converter/internal/store"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seed creates root/jobID/name and registers it under token
func seed(t *testing.T, st store.Store, root, token, jobID, name string, created time.Time) model.ArtifactRecord {
	t.Helper()
	dir := filepath.Join(root, jobID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	rec := model.ArtifactRecord{
		Token:       token,
		FilePath:    path,
		DisplayName: "x.mp3",
		CreatedAt:   created,
		Format:      model.FormatAudio,
		JobID:       jobID,
	}
	require.NoError(t, st.Insert(context.Background(), rec))
	return rec
}

func TestSweep_TTLBoundary(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	rec := seed(t, st, root, "tok", "job1", "a.mp3", base)

	assert.Equal(t, 0, sw.Sweep(context.Background(), base.Add(3600*time.Second)))
	_, ok, _ := st.Lookup(context.Background(), "tok")
	assert.True(t, ok, "record exactly TTL old must survive")
	assert.FileExists(t, rec.FilePath)

	assert.Equal(t, 1, sw.Sweep(context.Background(), base.Add(3601*time.Second)))
	_, ok, _ = st.Lookup(context.Background(), "tok")
	assert.False(t, ok)
	assert.NoFileExists(t, rec.FilePath)
	assert.NoDirExists(t, filepath.Join(root, "job1"))
	assert.DirExists(t, root, "root download area is never removed")
}

func TestSweep_Idempotent(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	seed(t, st, root, "a", "job-a", "a.mp3", base)
	seed(t, st, root, "b", "job-b", "b.mp4", base.Add(30*time.Minute))

	now := base.Add(2 * time.Hour)
	assert.Equal(t, 2, sw.Sweep(context.Background(), now))
	assert.Equal(t, 0, sw.Sweep(context.Background(), now))
}

func TestSweep_KeepsFreshRecords(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	old := seed(t, st, root, "old", "job-old", "a.mp3", base)
	fresh := seed(t, st, root, "fresh", "job-fresh", "b.mp3", base.Add(90*time.Minute))

	assert.Equal(t, 1, sw.Sweep(context.Background(), base.Add(2*time.Hour)))

	snap, err := st.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "fresh", snap[0].Token)
	assert.NoFileExists(t, old.FilePath)
	assert.FileExists(t, fresh.FilePath)
}

func TestSweep_NonEmptyDirectoryIsKept(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	rec := seed(t, st, root, "tok", "job1", "a.mp3", base)
	leftover := filepath.Join(root, "job1", "a.webm.part")
	require.NoError(t, os.WriteFile(leftover, []byte("x"), 0o644))

	assert.Equal(t, 1, sw.Sweep(context.Background(), base.Add(2*time.Hour)))
	assert.NoFileExists(t, rec.FilePath)
	assert.FileExists(t, leftover, "directory removal must never be recursive")
}

func TestSweep_FileInRootDoesNotRemoveRoot(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())

	path := filepath.Join(root, "loose.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, st.Insert(context.Background(), model.ArtifactRecord{Token: "loose", FilePath: path, CreatedAt: base}))

	assert.Equal(t, 1, sw.Sweep(context.Background(), base.Add(2*time.Hour)))
	assert.DirExists(t, root)
}

func TestSweep_MissingFileStillEvicts(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	rec := seed(t, st, root, "tok", "job1", "a.mp3", base)
	require.NoError(t, os.Remove(rec.FilePath))

	assert.Equal(t, 1, sw.Sweep(context.Background(), base.Add(2*time.Hour)))
}

func TestSweep_RetainOnError(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()

	// A non-empty directory where the file should be makes os.Remove fail
	dir := filepath.Join(root, "job1", "a.mp3")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "child"), 0o755))
	require.NoError(t, st.Insert(context.Background(), model.ArtifactRecord{Token: "tok", FilePath: dir, CreatedAt: base}))

	retain := New(Config{Root: root, TTL: time.Hour, RetainOnError: true}, st, nil, quietLogger())
	assert.Equal(t, 0, retain.Sweep(context.Background(), base.Add(2*time.Hour)))
	_, ok, _ := st.Lookup(context.Background(), "tok")
	assert.True(t, ok)

	drop := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	assert.Equal(t, 1, drop.Sweep(context.Background(), base.Add(2*time.Hour)))
	_, ok, _ = st.Lookup(context.Background(), "tok")
	assert.False(t, ok)
}

type failingStore struct {
	store.Store
}

func (failingStore) Snapshot(context.Context) ([]model.ArtifactRecord, error) {
	return nil, errors.New("backend down")
}

func TestSweep_SnapshotErrorIsSwallowed(t *testing.T) {
	sw := New(Config{Root: t.TempDir()}, failingStore{store.NewMemoryStore()}, nil, quietLogger())
	assert.Equal(t, 0, sw.Sweep(context.Background(), base))
}

func TestTrySweep_SkipsWhileRunning(t *testing.T) {
	sw := New(Config{Root: t.TempDir()}, store.NewMemoryStore(), nil, quietLogger())

	sw.mu.Lock()
	_, ran := sw.TrySweep(context.Background())
	sw.mu.Unlock()
	assert.False(t, ran)

	_, ran = sw.TrySweep(context.Background())
	assert.True(t, ran)
}

func TestRun_StopsWithContext(t *testing.T) {
	root := t.TempDir()
	st := store.NewMemoryStore()
	sw := New(Config{Root: root, TTL: time.Hour}, st, nil, quietLogger())
	sw.now = func() time.Time { return base.Add(2 * time.Hour) }
	seed(t, st, root, "tok", "job1", "a.mp3", base)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok, _ := st.Lookup(context.Background(), "tok")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSweep_ExpiryProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		st := store.NewMemoryStore()
		sw := New(Config{Root: "/nonexistent-root", TTL: time.Hour}, st, nil, quietLogger())

		ages := rapid.SliceOfN(rapid.IntRange(0, 7200), 0, 20).Draw(rt, "ages")
		now := base.Add(3 * time.Hour)
		want := 0
		for i, age := range ages {
			created := now.Add(-time.Duration(age) * time.Second)
			if age > 3600 {
				want++
			}
			rec := model.ArtifactRecord{
				Token:     fmt.Sprintf("tok-%d", i),
				FilePath:  "/nonexistent-root/job/file.mp3",
				CreatedAt: created,
			}
			if err := st.Insert(context.Background(), rec); err != nil {
				rt.Fatalf("insert: %v", err)
			}
		}

		if got := sw.Sweep(context.Background(), now); got != want {
			rt.Fatalf("expected %d evictions, got %d", want, got)
		}
		if got := sw.Sweep(context.Background(), now); got != 0 {
			rt.Fatalf("second sweep evicted %d", got)
		}
	})
}
