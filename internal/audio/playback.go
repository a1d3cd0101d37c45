package audio

import (
	"context"
	"sync"
	"time"

	"github.com/vanotis720/vochat/internal/bus"
	"go.uber.org/zap"
)

// PlaybackState is a per-message playback handle state.
type PlaybackState string

const (
	Unloaded PlaybackState = "unloaded"
	Loading  PlaybackState = "loading"
	Playing  PlaybackState = "playing"
	Paused   PlaybackState = "paused"
	Finished PlaybackState = "finished"
)

// PlaybackChange is the payload of playback state events.
type PlaybackChange struct {
	MessageID string
	From      PlaybackState
	To        PlaybackState
}

type playbackHandle struct {
	state  PlaybackState
	player Player
}

// Playback tracks one handle per audio message. Playing a message releases
// any other loaded handle first; pausing one never affects another. All
// handles are released on Close.
type Playback struct {
	device Device
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*playbackHandle
}

// NewPlayback creates an empty playback registry.
func NewPlayback(device Device, b *bus.Bus, logger *zap.Logger) *Playback {
	return &Playback{
		device:  device,
		bus:     b,
		logger:  logger,
		handles: make(map[string]*playbackHandle),
	}
}

// State returns the handle state for a message (Unloaded when untracked).
func (p *Playback) State(messageID string) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[messageID]; ok {
		return h.state
	}
	return Unloaded
}

// Play starts or resumes playback of one message's audio URL.
func (p *Playback) Play(ctx context.Context, messageID, url string) error {
	p.mu.Lock()
	h, ok := p.handles[messageID]
	if ok {
		switch h.state {
		case Paused:
			player := h.player
			p.setLocked(messageID, h, Playing)
			p.mu.Unlock()
			if err := player.Resume(); err != nil {
				p.releaseOnError(messageID, err)
				return &PlaybackError{MessageID: messageID, Err: err}
			}
			return nil
		case Loading, Playing:
			p.mu.Unlock()
			return nil
		}
	}

	// Supersede: at most one message is audibly loaded at a time.
	p.releaseOthersLocked(messageID)

	h = &playbackHandle{state: Unloaded}
	p.handles[messageID] = h
	p.setLocked(messageID, h, Loading)
	p.mu.Unlock()

	player, err := p.device.LoadAndPlay(ctx, url, func(st PlaybackStatus) {
		p.onStatus(messageID, st)
	})
	if err != nil {
		p.releaseOnError(messageID, err)
		return &PlaybackError{MessageID: messageID, Err: err}
	}

	p.mu.Lock()
	h, ok = p.handles[messageID]
	if !ok || h.state != Loading {
		// Released or superseded while the device was loading.
		p.mu.Unlock()
		_ = player.Unload()
		return nil
	}
	h.player = player
	p.setLocked(messageID, h, Playing)
	p.mu.Unlock()
	return nil
}

// Pause pauses one message's playback; no-op unless it is playing.
func (p *Playback) Pause(messageID string) error {
	p.mu.Lock()
	h, ok := p.handles[messageID]
	if !ok || h.state != Playing || h.player == nil {
		p.mu.Unlock()
		return nil
	}
	player := h.player
	p.setLocked(messageID, h, Paused)
	p.mu.Unlock()

	if err := player.Pause(); err != nil {
		p.releaseOnError(messageID, err)
		return &PlaybackError{MessageID: messageID, Err: err}
	}
	return nil
}

// Release unloads one message's handle, e.g. when it scrolls out of view.
func (p *Playback) Release(messageID string) {
	p.mu.Lock()
	p.releaseLocked(messageID)
	p.mu.Unlock()
}

// Close releases every loaded handle. Mandatory on teardown.
func (p *Playback) Close() {
	p.mu.Lock()
	for id := range p.handles {
		p.releaseLocked(id)
	}
	p.mu.Unlock()
}

func (p *Playback) onStatus(messageID string, st PlaybackStatus) {
	if st.Err != nil {
		p.releaseOnError(messageID, st.Err)
		return
	}
	if !st.Finished {
		return
	}

	p.mu.Lock()
	h, ok := p.handles[messageID]
	if !ok {
		p.mu.Unlock()
		return
	}
	player := h.player
	h.player = nil
	p.setLocked(messageID, h, Finished)
	delete(p.handles, messageID)
	p.mu.Unlock()

	if player != nil {
		_ = player.Unload()
	}
	p.logger.Debug("playback finished", zap.String("msg_id", messageID))
}

func (p *Playback) releaseOnError(messageID string, cause error) {
	p.mu.Lock()
	p.releaseLocked(messageID)
	p.mu.Unlock()

	perr := &PlaybackError{MessageID: messageID, Err: cause}
	p.logger.Warn("playback error", zap.Error(perr))
	p.bus.Publish(bus.Event{
		Kind:      bus.KindPlaybackFailed,
		Timestamp: time.Now(),
		Payload:   perr.Error(),
	})
}

// releaseLocked frees one handle; must be called with mu held.
func (p *Playback) releaseLocked(messageID string) {
	h, ok := p.handles[messageID]
	if !ok {
		return
	}
	if h.player != nil {
		_ = h.player.Unload()
		h.player = nil
	}
	p.setLocked(messageID, h, Unloaded)
	delete(p.handles, messageID)
}

func (p *Playback) releaseOthersLocked(keep string) {
	for id := range p.handles {
		if id != keep {
			p.releaseLocked(id)
		}
	}
}

func (p *Playback) setLocked(messageID string, h *playbackHandle, to PlaybackState) {
	from := h.state
	if from == to {
		return
	}
	h.state = to
	p.bus.Publish(bus.Event{
		Kind:      bus.KindPlaybackState,
		Timestamp: time.Now(),
		Payload:   PlaybackChange{MessageID: messageID, From: from, To: to},
	})
}
