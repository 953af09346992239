// Package oauth exchanges refresh tokens for fresh access tokens against the
// identity provider's token endpoint. It holds no state between calls; the
// credential manager owns persistence and serialization.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// ErrInvalidGrant means the provider rejected the refresh token itself:
// revoked, expired or consumed. Retrying cannot help; the user must re-run
// the authorization flow. Every other refresh failure is transient.
var ErrInvalidGrant = errors.New("refresh token rejected")

const defaultTimeout = 15 * time.Second

// TokenResult is the outcome of a successful refresh. RefreshToken is empty
// when the provider did not rotate it.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type Config struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	Scopes       []string
	Timeout      time.Duration

	// TokenURL overrides the provider token endpoint. Used by tests.
	TokenURL string
}

type Client struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	endpoint := microsoft.AzureADEndpoint(cfg.Tenant)
	if cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: cfg.TokenURL}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges refreshToken for a new token pair. The returned error is
// ErrInvalidGrant only when the provider's error response says the grant is
// permanently dead; timeouts, 5xx and malformed responses stay transient.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResult, error) {
	if refreshToken == "" {
		return TokenResult{}, ErrInvalidGrant
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return TokenResult{}, fmt.Errorf("%w: %s", ErrInvalidGrant, retrieveErr.ErrorDescription)
		}
		return TokenResult{}, fmt.Errorf("token refresh: %w", err)
	}

	expiresAt := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		// Some providers omit expires_in on refresh; assume a short life so
		// the next caller refreshes again rather than using a dead token.
		expiresAt = time.Now().UTC().Add(time.Hour)
	}

	return TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
