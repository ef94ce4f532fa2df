package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockThenLoadVerifies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minion.yaml")
	if err := os.WriteFile(path, []byte("id: alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	checksumPath, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if checksumPath != filepath.Join(dir, ".checksums") {
		t.Fatalf("Lock() path = %q", checksumPath)
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("LoadChecksums() error = %v", err)
	}
	if manifest.Hashes["minion.yaml"] == "" {
		t.Fatal("minion.yaml hash missing from manifest")
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock error = %v", err)
	}
}

func TestLoadRejectsTamperedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minion.yaml")
	if err := os.WriteFile(path, []byte("id: alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(path); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("id: mallory\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected tampered config to fail verification")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("error = %v, want hash mismatch", err)
	}
}

func TestVerifyFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	if err := os.WriteFile(path, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash() error = %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(hash))
	}
	if err := VerifyFileHash(path, hash); err != nil {
		t.Fatalf("VerifyFileHash() error = %v", err)
	}
	if err := VerifyFileHash(path, strings.Repeat("0", 64)); err == nil {
		t.Fatal("expected mismatch error")
	}
}
