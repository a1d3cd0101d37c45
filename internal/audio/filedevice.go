package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileDevice is the development loopback device: captures are plain files
// written under the profile's recordings directory, playback fetches the
// URL and reports completion after a nominal clip length. It lets the whole
// pipeline run end to end on hosts without microphone access.
type FileDevice struct {
	logger  *zap.Logger
	http    *http.Client
	clipLen time.Duration
}

// NewFileDevice creates a loopback device.
func NewFileDevice(logger *zap.Logger) *FileDevice {
	return &FileDevice{
		logger:  logger,
		http:    &http.Client{Timeout: 30 * time.Second},
		clipLen: 2 * time.Second,
	}
}

func (d *FileDevice) RequestPermission(context.Context) (bool, error) {
	return true, nil
}

func (d *FileDevice) StartRecording(_ context.Context, preset RecordingPreset) (Capture, error) {
	if err := os.MkdirAll(preset.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(preset.Dir, fmt.Sprintf("capture-%d.%s", time.Now().UnixNano(), preset.Format))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	d.logger.Info("loopback capture started", zap.String("path", path))
	return &fileCapture{file: f, path: path}, nil
}

type fileCapture struct {
	file *os.File
	path string
}

func (c *fileCapture) Stop(context.Context) (string, error) {
	// Loopback "audio": a short placeholder payload stands in for encoder
	// output.
	if _, err := c.file.Write(make([]byte, 1024)); err != nil {
		_ = c.file.Close()
		return "", err
	}
	if err := c.file.Close(); err != nil {
		return "", err
	}
	return c.path, nil
}

func (d *FileDevice) LoadAndPlay(ctx context.Context, url string, onStatus func(PlaybackStatus)) (Player, error) {
	resp, err := d.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch audio: %s", resp.Status)
	}

	p := &filePlayer{onStatus: onStatus, remaining: d.clipLen}
	p.startLocked()
	return p, nil
}

type filePlayer struct {
	mu        sync.Mutex
	onStatus  func(PlaybackStatus)
	timer     *time.Timer
	startedAt time.Time
	remaining time.Duration
	done      bool
}

// startLocked arms the completion timer; callers hold no lock on the fresh
// player, and mu otherwise.
func (p *filePlayer) startLocked() {
	p.startedAt = time.Now()
	p.timer = time.AfterFunc(p.remaining, func() {
		p.mu.Lock()
		if p.done {
			p.mu.Unlock()
			return
		}
		p.done = true
		fn := p.onStatus
		p.mu.Unlock()
		fn(PlaybackStatus{Finished: true})
	})
}

func (p *filePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.timer == nil {
		return nil
	}
	p.timer.Stop()
	p.timer = nil
	p.remaining -= time.Since(p.startedAt)
	if p.remaining < 0 {
		p.remaining = 0
	}
	return nil
}

func (p *filePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.timer != nil {
		return nil
	}
	p.startLocked()
	return nil
}

func (p *filePlayer) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}
