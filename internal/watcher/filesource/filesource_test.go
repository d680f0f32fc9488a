package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/pkg/logger"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		_, err := f.WriteString(l + "\n")
		require.NoError(t, err)
	}
}

func TestSubscribe_NilBookmarkStartsFromTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Security.ndjson")
	writeLines(t, path, `{"id":"1","event_id":4624,"host":"h1"}`)

	src := New(dir, 20*time.Millisecond, logger.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := src.Subscribe(ctx, "Security", nil)
	require.NoError(t, err)

	writeLines(t, path, `{"id":"2","event_id":4625,"host":"h1"}`)

	select {
	case rec := <-records:
		require.Equal(t, "2", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestSubscribe_ResumesAfterBookmarkedID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Security.ndjson")
	writeLines(t, path,
		`{"id":"1","event_id":4624,"host":"h1"}`,
		`{"id":"2","event_id":4625,"host":"h1"}`,
		`{"id":"3","event_id":4626,"host":"h1"}`,
	)

	src := New(dir, 20*time.Millisecond, logger.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := src.Subscribe(ctx, "Security", []byte("1"))
	require.NoError(t, err)

	select {
	case rec := <-records:
		require.Equal(t, "2", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
	select {
	case rec := <-records:
		require.Equal(t, "3", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestSubscribe_UnknownBookmarkFallsBackToTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Security.ndjson")
	writeLines(t, path, `{"id":"1","event_id":4624,"host":"h1"}`)

	src := New(dir, 20*time.Millisecond, logger.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, err := src.Subscribe(ctx, "Security", []byte("never-seen"))
	require.NoError(t, err)

	select {
	case rec := <-records:
		t.Fatalf("expected no record yet, got %+v", rec)
	case <-time.After(100 * time.Millisecond):
	}

	writeLines(t, path, `{"id":"2","event_id":4625,"host":"h1"}`)
	select {
	case rec := <-records:
		require.Equal(t, "2", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}
