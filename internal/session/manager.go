package session

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/vanotis720/vochat/internal/auth"
	"github.com/vanotis720/vochat/internal/bus"
	"go.uber.org/zap"
)

// Matches the address pattern enforced before any service call.
var emailRegexp = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,})+$`)

// ValidationError is a local pre-flight rejection; no service call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// Pre-flight validation reasons.
const (
	ReasonMissingFields = "missing fields"
	ReasonInvalidEmail  = "invalid email"
)

// Change is the payload of session change notifications.
type Change struct {
	User *auth.User
}

// Manager owns the current-user identity. It registers with the identity
// service's session-change stream on construction and republishes changes:
// first synchronously to handlers registered via OnChange (the conversation
// synchronizer must settle before queued commands run), then on the bus.
type Manager struct {
	svc    auth.Service
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	user     *auth.User
	handlers []func(*auth.User)
	unsub    func()
}

// NewManager creates a session manager bound to the identity service.
func NewManager(svc auth.Service, b *bus.Bus, logger *zap.Logger) *Manager {
	m := &Manager{
		svc:    svc,
		bus:    b,
		logger: logger,
	}
	m.unsub = svc.OnSessionChange(m.onSessionChange)
	return m
}

// OnChange registers a synchronous identity-change handler. Handlers run in
// registration order before the bus event is published. fn is invoked
// immediately with the current user so late registrants settle too.
func (m *Manager) OnChange(fn func(*auth.User)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	current := m.user
	m.mu.Unlock()
	fn(current)
}

// CurrentUser returns the signed-in user, or nil.
func (m *Manager) CurrentUser() *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Login validates credentials locally, then signs in against the identity
// service. Returns *ValidationError before any service call when fields are
// missing or the email is malformed, and *auth.Error on service rejection.
// Never retries.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return &ValidationError{Reason: ReasonMissingFields}
	}
	if !emailRegexp.MatchString(email) {
		return &ValidationError{Reason: ReasonInvalidEmail}
	}

	if _, err := m.svc.SignIn(ctx, email, password); err != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSessionError,
			Timestamp: time.Now(),
			Payload:   err.Error(),
		})
		return err
	}
	return nil
}

// Logout terminates the session. Idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	return m.svc.SignOut(ctx)
}

// Close detaches from the identity service stream.
func (m *Manager) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Manager) onSessionChange(u *auth.User) {
	m.mu.Lock()
	m.user = u
	handlers := make([]func(*auth.User), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if u != nil {
		m.logger.Info("session established", zap.String("user_id", u.ID))
	} else {
		m.logger.Info("session cleared")
	}

	// Synchronous handlers settle before anyone observes the change on the bus.
	for _, fn := range handlers {
		fn(u)
	}

	m.bus.Publish(bus.Event{
		Kind:      bus.KindSessionChanged,
		Timestamp: time.Now(),
		Payload:   Change{User: u},
	})
}
