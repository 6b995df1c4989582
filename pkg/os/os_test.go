package os

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "sub", "settings.bin")
	if err := WriteFileAtomic(name, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(name, []byte("de"), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "de" {
		t.Errorf("content = %q", b)
	}
	entries, _ := os.ReadDir(filepath.Dir(name))
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
	if ModTime(name).IsZero() || !ModTime(name+".nope").IsZero() {
		t.Errorf("bad mod times")
	}
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.lock")
	a, err := NewFileLock(path)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewFileLock(path)
	if err = a.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err = b.Lock(ctx); err == nil {
		t.Errorf("second lock should time out")
	}
	_ = a.Unlock()
	if err = b.Lock(context.Background()); err != nil {
		t.Errorf("lock after unlock: %v", err)
	}
	_ = b.Unlock()
}
