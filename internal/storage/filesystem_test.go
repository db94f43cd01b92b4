package storage

import (
	"context"
	"errors"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Write(context.Background(), "./studio/run-1/scene-01.png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "studio/run-1/scene-01.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "\x89PNG" {
		t.Fatalf("data = %q", data)
	}
	if got := store.URL(key); got != "http://localhost:8080/static/studio/run-1/scene-01.png" {
		t.Fatalf("URL = %q", got)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", ".."} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("sanitizeKey(%q) expected error", key)
		}
	}
	got, err := sanitizeKey(`\studio\a.png`)
	if err != nil || got != "studio/a.png" {
		t.Fatalf("sanitizeKey backslash = %q, %v", got, err)
	}
}

func TestReadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Read(context.Background(), "nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing err = %v", err)
	}
	if store.URL("x") != "" {
		t.Fatalf("URL without base should be empty")
	}
}

func TestWriteRejectsEmptyBlob(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "")
	if _, err := store.Write(context.Background(), "a.bin", nil); err == nil {
		t.Fatalf("expected error for empty blob")
	}
}

func TestExtensionForMIME(t *testing.T) {
	cases := map[string]string{"image/png": ".png", "audio/mpeg": ".mp3", " IMAGE/JPEG ": ".jpg", "x/unknown": ".bin"}
	for mime, want := range cases {
		if got := ExtensionForMIME(mime); got != want {
			t.Fatalf("ExtensionForMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
