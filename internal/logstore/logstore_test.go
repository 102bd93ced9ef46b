package logstore

import (
	"path/filepath"
	"testing"
)

func TestStorePutGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get("missing"); err != nil {
		t.Fatalf("Get missing: %v", err)
	} else if ok {
		t.Fatal("Get reported a value for an absent key")
	}

	if err := s.Put("rev1", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, ok, err := s.Get("rev1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(value) != "payload" {
		t.Fatalf("Get = %q, %v; want %q, true", value, ok, "payload")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put("rev1", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	value, ok, err := s.Get("rev1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !ok || string(value) != "payload" {
		t.Fatalf("Get after reopen = %q, %v; want %q, true", value, ok, "payload")
	}
}
