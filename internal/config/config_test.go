package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGlobalSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Global{DefaultProfile: "work"}
	if err := SaveGlobal(path, cfg); err != nil {
		t.Fatalf("SaveGlobal() error = %v", err)
	}

	loaded, err := LoadGlobal(path)
	if err != nil {
		t.Fatalf("LoadGlobal() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
}

func TestProfileSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Profile{
		ConversationID: "00ikWIu59slPWL7Ys41o",
		Auth:           Auth{Endpoint: "https://auth.example.com", APIKey: "k"},
		DocStore:       DocStore{Endpoint: "https://docs.example.com"},
		Blob:           Blob{Bucket: "audio", Region: "us-east-1"},
		Audio:          Audio{Device: "file", Format: "wav"},
	}
	if err := SaveProfile(path, cfg); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if loaded.ConversationID != cfg.ConversationID {
		t.Errorf("ConversationID = %q, want %q", loaded.ConversationID, cfg.ConversationID)
	}
	if loaded.Blob.Bucket != "audio" {
		t.Errorf("Blob.Bucket = %q, want audio", loaded.Blob.Bucket)
	}
	if loaded.Audio.Format != "wav" {
		t.Errorf("Audio.Format = %q, want wav", loaded.Audio.Format)
	}
}

func TestProfileFormatDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveProfile(path, &Profile{ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Audio.Format != "m4a" {
		t.Errorf("Audio.Format default = %q, want m4a", loaded.Audio.Format)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := LoadGlobal("/nonexistent/config.toml"); err == nil {
		t.Error("LoadGlobal() expected error for missing file")
	}
	if _, err := LoadProfile("/nonexistent/config.toml"); err == nil {
		t.Error("LoadProfile() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := SaveGlobal(path, &Global{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
