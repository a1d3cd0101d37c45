package model

import (
	"sync"
	"time"
)

// Flash holds a transient notification message.
type Flash struct {
	mu       sync.RWMutex
	message  string
	deadline time.Time
}

// Set stores a flash message that expires after the given duration.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.deadline = time.Now().Add(d)
}

// Clear drops the current message immediately.
func (f *Flash) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = ""
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.deadline) {
		return ""
	}
	return f.message
}
