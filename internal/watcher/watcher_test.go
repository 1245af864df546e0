package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsSkippedFile(t *testing.T) {
	cases := map[string]bool{
		".DS_Store":   true,
		"Thumbs.db":   true,
		"desktop.ini": true,
		"._resource":  true,
		"notes.tmp":   true,
		"notes.swp":   true,
		"backup~":     true,
		"file.lock":   true,
		"doc.txt":     false,
		"report.pdf":  false,
	}
	for name, want := range cases {
		if got := IsSkippedFile(name); got != want {
			t.Errorf("IsSkippedFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsSkippedDir(t *testing.T) {
	if !IsSkippedDir(".git", false) {
		t.Error("expected .git to be skipped")
	}
	if !IsSkippedDir("node_modules", false) {
		t.Error("expected node_modules to be skipped")
	}
	if IsSkippedDir(".git", true) {
		t.Error("root directories must never be skipped even if hidden-named")
	}
	if IsSkippedDir("cases", false) {
		t.Error("ordinary directory should not be skipped")
	}
}

func TestStartEnrollsExistingTreeAndDeliversEvents(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "alpha")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	w := New([]string{root}, nil)
	events, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	target := filepath.Join(sub, "doc.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed before observing create")
			}
			if ev.Path == target {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for create event")
		}
	}
}

func TestNoiseFilesProduceNoEvents(t *testing.T) {
	root := t.TempDir()
	w := New([]string{root}, nil)
	events, err := w.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Also write a real file so we have a positive signal the watcher is alive.
	if err := os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(ev.Path) == ".DS_Store" {
				t.Fatalf("noise file produced an event: %+v", ev)
			}
			if filepath.Base(ev.Path) == "real.txt" {
				return
			}
		case <-deadline:
			return
		}
	}
}
