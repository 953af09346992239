// Package credentials owns the credential lifecycle: fetch, expiry
// evaluation, single-flight refresh and write-back.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"showings/internal/domain"
	"showings/internal/oauth"
	"showings/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// RefreshClient is the stateless token-endpoint wrapper the manager refreshes
// through.
type RefreshClient interface {
	Refresh(ctx context.Context, refreshToken string) (oauth.TokenResult, error)
}

const (
	DefaultExpirySkew      = 5 * time.Minute
	defaultRefreshAttempts = 3
	defaultRefreshBackoff  = 500 * time.Millisecond
)

type Options struct {
	Provider        domain.Provider
	ExpirySkew      time.Duration
	RefreshAttempts int
	RefreshBackoff  time.Duration
	Logger          *slog.Logger

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

type Manager struct {
	store     store.CredentialStore
	refresher RefreshClient
	provider  domain.Provider
	skew      time.Duration
	attempts  int
	backoff   time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

func NewManager(credStore store.CredentialStore, refresher RefreshClient, opts Options) *Manager {
	if opts.Provider == "" {
		opts.Provider = domain.ProviderMicrosoft
	}
	if opts.ExpirySkew <= 0 {
		opts.ExpirySkew = DefaultExpirySkew
	}
	if opts.RefreshAttempts <= 0 {
		opts.RefreshAttempts = defaultRefreshAttempts
	}
	if opts.RefreshBackoff <= 0 {
		opts.RefreshBackoff = defaultRefreshBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:     credStore,
		refresher: refresher,
		provider:  opts.Provider,
		skew:      opts.ExpirySkew,
		attempts:  opts.RefreshAttempts,
		backoff:   opts.RefreshBackoff,
		log:       opts.Logger.With(slog.String("component", "credentials.manager")),
		now:       opts.Now,
		inflight:  make(map[string]*refreshCall),
	}
}

// GetValidAccessToken returns an access token guaranteed to outlive the skew
// margin, refreshing first when needed. Refreshes are single-flight per user:
// concurrent callers share one provider exchange and receive the same token.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", validationError("user_id is required")
	}

	cred, err := m.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", domain.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("credential read: %w", err)
	}

	if cred.FreshAt(m.now(), m.skew) {
		return cred.AccessToken, nil
	}

	return m.refresh(ctx, userID)
}

// StoreNewCredential is the only entry point through which a credential comes
// into existence outside of a refresh; the external authorization-code flow
// calls it after a successful exchange.
func (m *Manager) StoreNewCredential(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return validationError("user_id is required")
	}
	if accessToken == "" {
		return validationError("access_token is required")
	}
	if expiresAt.IsZero() {
		return validationError("expires_at is required")
	}

	cred := domain.Credential{
		UserID:       userID,
		Provider:     m.provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC(),
		UpdatedAt:    m.now().UTC(),
	}
	if err := m.store.Put(ctx, cred); err != nil {
		return fmt.Errorf("credential write: %w", err)
	}

	m.log.Info("credential stored", slog.String("user_id", userID), slog.Time("expires_at", cred.ExpiresAt))
	return nil
}

// AuthorizationStatus reports whether the user currently holds a usable
// credential and when it expires. A missing credential is not an error.
func (m *Manager) AuthorizationStatus(ctx context.Context, userID string) (bool, time.Time, error) {
	cred, err := m.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("credential read: %w", err)
	}

	authorized := m.now().Before(cred.ExpiresAt) || cred.HasRefreshToken()
	return authorized, cred.ExpiresAt, nil
}

func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	if call, ok := m.inflight[userID]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight[userID] = call
	m.mu.Unlock()

	call.token, call.err = m.doRefresh(ctx, userID)

	m.mu.Lock()
	delete(m.inflight, userID)
	m.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

func (m *Manager) doRefresh(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", domain.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("credential read: %w", err)
	}

	// A flight that completed between our staleness check and acquiring the
	// slot already wrote a fresh token back.
	if cred.FreshAt(m.now(), m.skew) {
		return cred.AccessToken, nil
	}

	if !cred.HasRefreshToken() {
		return "", domain.ErrReauthorizationRequired
	}

	var res oauth.TokenResult
	for attempt := 1; ; attempt++ {
		res, err = m.refresher.Refresh(ctx, cred.RefreshToken)
		if err == nil {
			break
		}
		if errors.Is(err, oauth.ErrInvalidGrant) {
			// The stale credential stays in the store as a diagnostic trace.
			m.log.Warn("refresh token rejected", slog.String("user_id", userID))
			return "", domain.ErrReauthorizationRequired
		}
		if attempt >= m.attempts {
			m.log.Warn("refresh failed", slog.String("user_id", userID), slog.Int("attempts", attempt), slog.Any("err", err))
			return "", fmt.Errorf("%w: refresh failed after %d attempts: %v", domain.ErrProviderUnavailable, attempt, err)
		}
		if err := m.wait(ctx, attempt); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
	}

	cred.AccessToken = res.AccessToken
	cred.ExpiresAt = res.ExpiresAt.UTC()
	if res.RefreshToken != "" {
		cred.RefreshToken = res.RefreshToken
	}
	cred.UpdatedAt = m.now().UTC()

	if err := m.store.Put(ctx, cred); err != nil {
		return "", fmt.Errorf("credential write: %w", err)
	}

	m.log.Info("credential refreshed", slog.String("user_id", userID), slog.Time("expires_at", cred.ExpiresAt))
	return cred.AccessToken, nil
}

func (m *Manager) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(m.backoff << (attempt - 1))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
