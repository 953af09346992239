package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"showings/internal/domain"
	"showings/internal/store"
)

// CredentialRepo stores credentials keyed on (user_id, provider). The
// provider is fixed at construction: one deployment talks to one calendar
// provider.
type CredentialRepo struct {
	db       *bun.DB
	provider domain.Provider
}

func NewCredentialRepo(db *bun.DB, provider domain.Provider) *CredentialRepo {
	return &CredentialRepo{db: db, provider: provider}
}

func (r *CredentialRepo) Get(ctx context.Context, userID string) (domain.Credential, error) {
	var cred domain.Credential
	err := r.db.NewSelect().
		Model(&cred).
		Where("user_id = ?", userID).
		Where("provider = ?", r.provider).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return cred, nil
}

func (r *CredentialRepo) Put(ctx context.Context, cred domain.Credential) error {
	cred.Provider = r.provider

	// Row-level upsert, not read-modify-write: concurrent refreshes for
	// different users never interfere.
	_, err := r.db.NewInsert().
		Model(&cred).
		On("CONFLICT (user_id, provider) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.db.NewDelete().
		Model((*domain.Credential)(nil)).
		Where("user_id = ?", userID).
		Where("provider = ?", r.provider).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
