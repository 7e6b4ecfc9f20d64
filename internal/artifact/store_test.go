package artifact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(StoreConfig{
		DBPath:       filepath.Join(dir, "artifacts.db"),
		ArtifactDir:  filepath.Join(dir, "files"),
		MaxSizeBytes: maxSize,
		BaseURL:      "http://127.0.0.1:8080",
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	rec, err := s.Save(ctx, "session-1", "photo.jpg", "image", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Size != int64(len("jpeg-bytes")) {
		t.Fatalf("unexpected size: %d", rec.Size)
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("stored bytes differ: %q", data)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "photo.jpg" || got.Type != "image" || got.SessionID != "session-1" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s := newTestStore(t, 0)
	if _, err := s.Get(context.Background(), "no-such-id"); err == nil {
		t.Fatal("expected an error for an unknown artifact")
	}
}

func TestStore_SizeLimit(t *testing.T) {
	s := newTestStore(t, 8)

	_, err := s.Save(context.Background(), "s1", "big.bin", "file", strings.NewReader("way too many bytes"))
	if err == nil {
		t.Fatal("expected an error for an oversized artifact")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := os.ReadDir(s.dir)
	if len(entries) != 0 {
		t.Fatalf("rejected artifact must not leave files behind: %v", entries)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	if _, err := s.Save(ctx, "s1", "one.txt", "file", strings.NewReader("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "s1", "two.txt", "file", strings.NewReader("2")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "other", "three.txt", "file", strings.NewReader("3")); err != nil {
		t.Fatal(err)
	}

	recs, err := s.List(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 artifacts for session, got %d", len(recs))
	}
}

func TestStore_Ref(t *testing.T) {
	s := newTestStore(t, 0)

	rec, err := s.Save(context.Background(), "s1", "clip.mp4", "video", strings.NewReader("mp4"))
	if err != nil {
		t.Fatal(err)
	}

	ref := s.Ref(rec)
	if ref.ID != rec.ID || ref.Type != "video" || ref.Name != "clip.mp4" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	want := "http://127.0.0.1:8080/api/v1/artifacts/" + rec.ID
	if ref.DownloadURL != want {
		t.Fatalf("download url = %q, want %q", ref.DownloadURL, want)
	}
}
