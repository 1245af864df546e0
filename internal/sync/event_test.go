package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexsync/isync-adapter/internal/watcher"
)

func TestHandleEventCopiesCloudCreateToLocal(t *testing.T) {
	cfg, cloudRoot, _ := newTestConfig(t)
	cloudFile := filepath.Join(cloudRoot, "alpha", "doc.txt")
	if err := os.MkdirAll(filepath.Dir(cloudFile), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFileAt(t, cloudFile, "hello", time.Now().Add(-time.Minute))

	r := New(cfg, nil)
	r.HandleEvent(context.Background(), watcher.Event{Path: cloudFile, Op: watcher.Create, IsDir: false, At: time.Now()})

	localFile := filepath.Join(cfg.LocalRoot, "alpha", "doc.txt")
	data, err := os.ReadFile(localFile)
	if err != nil {
		t.Fatalf("expected event-driven copy: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content mismatch: %q", data)
	}
}

func TestHandleEventSkipsSymlinks(t *testing.T) {
	cfg, cloudRoot, _ := newTestConfig(t)
	target := filepath.Join(cloudRoot, "real.txt")
	writeFileAt(t, target, "real content", time.Now().Add(-time.Minute))

	link := filepath.Join(cloudRoot, "placeholder.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	r := New(cfg, nil)
	r.HandleEvent(context.Background(), watcher.Event{Path: link, Op: watcher.Create, IsDir: false, At: time.Now()})

	if _, err := os.Lstat(filepath.Join(cfg.LocalRoot, "placeholder.txt")); err == nil {
		t.Error("event-driven copy must not follow symlinks into the local mirror")
	}
}

func TestHandleEventSuppressedDuringSweep(t *testing.T) {
	cfg, cloudRoot, _ := newTestConfig(t)
	cloudFile := filepath.Join(cloudRoot, "doc.txt")
	writeFileAt(t, cloudFile, "hello", time.Now().Add(-time.Minute))

	r := New(cfg, nil)
	r.isSweeping.Store(true)
	r.HandleEvent(context.Background(), watcher.Event{Path: cloudFile, Op: watcher.Create, IsDir: false, At: time.Now()})

	if _, err := os.Stat(filepath.Join(cfg.LocalRoot, "doc.txt")); err == nil {
		t.Error("event-driven copy must be suppressed while a sweep is in progress")
	}
}

func TestHandleEventDeletePropagatesOnlyWhenDestinationOlder(t *testing.T) {
	cfg, cloudRoot, _ := newTestConfig(t)
	localFile := filepath.Join(cfg.LocalRoot, "doc.txt")
	writeFileAt(t, localFile, "mirrored", time.Now().Add(-time.Hour))
	cloudFile := filepath.Join(cloudRoot, "doc.txt")

	r := New(cfg, nil)
	r.HandleEvent(context.Background(), watcher.Event{Path: cloudFile, Op: watcher.Remove, IsDir: false, At: time.Now()})

	if _, err := os.Stat(localFile); err == nil {
		t.Error("expected delete to propagate when destination is older than the deletion")
	}
}

func TestHandleEventWithholdsDeleteWhenDestinationNewer(t *testing.T) {
	cfg, cloudRoot, _ := newTestConfig(t)
	localFile := filepath.Join(cfg.LocalRoot, "doc.txt")
	deletionTime := time.Now().Add(-time.Hour)
	writeFileAt(t, localFile, "newer work", time.Now())
	cloudFile := filepath.Join(cloudRoot, "doc.txt")

	r := New(cfg, nil)
	r.HandleEvent(context.Background(), watcher.Event{Path: cloudFile, Op: watcher.Remove, IsDir: false, At: deletionTime})

	if _, err := os.Stat(localFile); err != nil {
		t.Error("local file newer than the deletion must be preserved")
	}
}

func TestHandleEventNeverDeletesAlongUploadOnlyPath(t *testing.T) {
	cfg, cloudRoot, outputPath := newTestConfig(t)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		t.Fatal(err)
	}
	cloudOutputFile := filepath.Join(cloudRoot, "outputs", "report.pdf")
	if err := os.MkdirAll(filepath.Dir(cloudOutputFile), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFileAt(t, cloudOutputFile, "report", time.Now().Add(-time.Hour))

	localOutputFile := filepath.Join(outputPath, "report.pdf")

	r := New(cfg, nil)
	r.HandleEvent(context.Background(), watcher.Event{Path: localOutputFile, Op: watcher.Remove, IsDir: false, At: time.Now()})

	if _, err := os.Stat(cloudOutputFile); err != nil {
		t.Error("a local-side removal under the upload-only outputs path must never delete the cloud copy")
	}
}
