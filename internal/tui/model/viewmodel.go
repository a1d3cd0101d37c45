package model

import (
	"context"
	"sync"
	"time"

	"github.com/vanotis720/vochat/internal/api"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/tui/client"
)

// ViewModel caches daemon state for the UI and signals refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client    *client.Client
	Status    *api.StatusResponse
	Messages  []docstore.Message
	Recording string
	Playback  map[string]string // message id -> playback state
	Flash     Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model bound to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		Playback:  make(map[string]string),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status summary.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = resp
	vm.Recording = resp.Recording
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadMessages fetches the current conversation view.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	msgs, err := vm.client.Messages(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Login signs in and reloads status on success.
func (vm *ViewModel) Login(ctx context.Context, email, password string) error {
	if err := vm.client.Login(ctx, email, password); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// Logout ends the session.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.client.Logout(ctx); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// SendText sends a text message; the view updates when the next snapshot
// arrives, there is no local echo.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	if err := vm.client.Send(ctx, text); err != nil {
		return err
	}
	vm.Flash.Set("Message sent", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// ToggleRecording starts a recording when idle, stops it when active, and
// acknowledges a failed one.
func (vm *ViewModel) ToggleRecording(ctx context.Context) error {
	vm.mu.RLock()
	current := vm.Recording
	vm.mu.RUnlock()

	var (
		state string
		err   error
	)
	switch current {
	case "recording":
		state, err = vm.client.RecordStop(ctx)
	case "failed":
		state, err = vm.client.RecordAck(ctx)
	default:
		state, err = vm.client.RecordStart(ctx)
	}
	if err != nil {
		return err
	}
	vm.SetRecording(state)
	return nil
}

// TogglePlayback plays a paused or unloaded audio message and pauses a
// playing one.
func (vm *ViewModel) TogglePlayback(ctx context.Context, messageID string) error {
	vm.mu.RLock()
	current := vm.Playback[messageID]
	vm.mu.RUnlock()

	var (
		state string
		err   error
	)
	if current == "playing" {
		state, err = vm.client.Pause(ctx, messageID)
	} else {
		state, err = vm.client.Play(ctx, messageID)
	}
	if err != nil {
		return err
	}
	vm.SetPlayback(messageID, state)
	return nil
}

// SetRecording records the pipeline state reported by the daemon.
func (vm *ViewModel) SetRecording(state string) {
	vm.mu.Lock()
	vm.Recording = state
	vm.mu.Unlock()
	vm.signalRefresh()
}

// SetPlayback records a message's playback state reported by the daemon.
func (vm *ViewModel) SetPlayback(messageID, state string) {
	vm.mu.Lock()
	if state == "unloaded" || state == "finished" {
		delete(vm.Playback, messageID)
	} else {
		vm.Playback[messageID] = state
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// GetMessages returns a snapshot of the current messages.
func (vm *ViewModel) GetMessages() []docstore.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetStatus returns a snapshot of the daemon status.
func (vm *ViewModel) GetStatus() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

// GetRecording returns the current recording pipeline state.
func (vm *ViewModel) GetRecording() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Recording
}

// GetPlayback returns a message's playback state, or empty when unloaded.
func (vm *ViewModel) GetPlayback(messageID string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Playback[messageID]
}
