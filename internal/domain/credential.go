package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Provider string

const (
	ProviderMicrosoft Provider = "microsoft"
)

// Credential is the persisted OAuth token material for one (user, provider)
// pair. Writes are full-record upserts keyed on that pair; absence means the
// user never authorized, not that access was revoked.
type Credential struct {
	bun.BaseModel `bun:"table:calendar_credentials"`

	UserID       string    `bun:"user_id,pk" json:"user_id"`
	Provider     Provider  `bun:"provider,pk" json:"provider"`
	AccessToken  string    `bun:"access_token,notnull" json:"access_token"`
	RefreshToken string    `bun:"refresh_token" json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `bun:"expires_at,notnull" json:"expires_at"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (c *Credential) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

// FreshAt reports whether the access token is still usable at now, leaving a
// skew margin so a token judged valid here cannot expire mid-flight during
// the provider call that follows.
func (c Credential) FreshAt(now time.Time, skew time.Duration) bool {
	return now.Before(c.ExpiresAt.Add(-skew))
}

func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}
