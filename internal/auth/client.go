package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Client talks to a password-based identity service over HTTP and tracks the
// signed-in user locally. The service issues a JWT identity token on sign-in;
// the user id and display name are read from its claims.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger

	mu        sync.Mutex
	user      *User
	token     string
	listeners map[int]func(*User)
	nextID    int
}

// NewClient creates an identity client for the given service endpoint.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		listeners: make(map[int]func(*User)),
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken     string `json:"idToken"`
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges credentials for an identity token. Provider rejections are
// returned as *Error with a category; transport failures are returned as-is.
func (c *Client) SignIn(ctx context.Context, email, password string) (*User, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/accounts:signInWithPassword?key=%s", c.endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sign in response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(data, &errResp)
		authErr := &Error{Category: categorize(errResp.Error.Message), Code: errResp.Error.Message}
		c.logger.Warn("sign in rejected", zap.String("code", authErr.Code))
		return nil, authErr
	}

	var ok signInResponse
	if err := json.Unmarshal(data, &ok); err != nil {
		return nil, fmt.Errorf("decode sign in response: %w", err)
	}

	user := userFromResponse(&ok)

	c.mu.Lock()
	c.user = user
	c.token = ok.IDToken
	fns := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Info("signed in", zap.String("user_id", user.ID))
	for _, fn := range fns {
		fn(user)
	}
	return user, nil
}

// SignOut clears the local session and notifies listeners. Idempotent.
func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	wasSignedIn := c.user != nil
	c.user = nil
	c.token = ""
	fns := c.snapshotListeners()
	c.mu.Unlock()

	if wasSignedIn {
		c.logger.Info("signed out")
		for _, fn := range fns {
			fn(nil)
		}
	}
	return nil
}

// OnSessionChange registers fn and fires it immediately with the current user.
func (c *Client) OnSessionChange(fn func(*User)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := c.user
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// CurrentUser returns the signed-in user, or nil.
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Token returns the current identity token, or empty when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// snapshotListeners must be called with mu held.
func (c *Client) snapshotListeners() []func(*User) {
	fns := make([]func(*User), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// userFromResponse builds the User, preferring identity token claims over
// the response envelope when both are present.
func userFromResponse(resp *signInResponse) *User {
	user := &User{
		ID:          resp.LocalID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
	}

	if resp.IDToken != "" {
		claims := &idTokenClaims{}
		// Token integrity is the server's concern; the client only reads
		// identity fields out of it.
		if _, _, err := jwt.NewParser().ParseUnverified(resp.IDToken, claims); err == nil {
			if claims.UserID != "" {
				user.ID = claims.UserID
			} else if claims.Subject != "" {
				user.ID = claims.Subject
			}
			if claims.Name != "" {
				user.DisplayName = claims.Name
			}
		}
	}
	return user
}

func categorize(code string) Category {
	switch code {
	case "INVALID_EMAIL":
		return CategoryInvalidEmail
	case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return CategoryInvalidCredentials
	default:
		return CategoryUnknown
	}
}
