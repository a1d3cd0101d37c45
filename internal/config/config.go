package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Global represents the global ~/.vochat/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile represents a per-profile config.toml. It carries the endpoints of
// the three backend services and the fixed conversation this client renders.
type Profile struct {
	ConversationID string `toml:"conversation_id"`

	Auth     Auth     `toml:"auth"`
	DocStore DocStore `toml:"docstore"`
	Blob     Blob     `toml:"blob"`
	Audio    Audio    `toml:"audio"`
}

// Auth configures the identity service.
type Auth struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

// DocStore configures the conversation document service.
type DocStore struct {
	// Endpoint is the HTTP base URL; the subscription upgrades to a
	// WebSocket on the same host.
	Endpoint string `toml:"endpoint"`
}

// Blob configures the S3-compatible object store for audio payloads.
type Blob struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Audio configures the capture/playback device backend.
type Audio struct {
	// Device selects the device backend; "file" is the development
	// loopback that captures from and plays to files on disk.
	Device string `toml:"device"`
	// Format is the capture container extension (e.g. "m4a", "wav").
	Format string `toml:"format"`
}

// LoadGlobal reads the global config. Returns an error if the file is missing.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveGlobal writes the global config, creating parent dirs as needed.
func SaveGlobal(path string, cfg *Global) error {
	return save(path, cfg)
}

// LoadProfile reads a profile config from the given path.
func LoadProfile(path string) (*Profile, error) {
	var cfg Profile
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Audio.Format == "" {
		cfg.Audio.Format = "m4a"
	}
	return &cfg, nil
}

// SaveProfile writes a profile config to the given path.
func SaveProfile(path string, cfg *Profile) error {
	return save(path, cfg)
}

func save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
