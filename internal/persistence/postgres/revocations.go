package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ojsys/goodfitapp-backend/internal/auth"
)

// RevocationStore keeps the token revocation set in Postgres so every API
// instance observes the same consumed refresh tokens.
type RevocationStore struct {
	db  DBTX
	now func() time.Time
}

// NewRevocationStore constructs a RevocationStore.
func NewRevocationStore(db DBTX) *RevocationStore {
	return &RevocationStore{db: db, now: time.Now}
}

var _ auth.RevocationStore = (*RevocationStore)(nil)

// Consume inserts jti. Only the insert that creates the row (or revives an expired one) wins.
func (s *RevocationStore) Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
        ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at, revoked_at = NOW()
        WHERE revoked_tokens.expires_at <= $3`, jti, expiresAt, s.now())
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeFamily records the family, keeping the later of the stored and supplied expiry.
func (s *RevocationStore) RevokeFamily(ctx context.Context, family string, expiresAt time.Time) error {
	if _, err := s.db.Exec(ctx, `INSERT INTO revoked_token_families (family, expires_at) VALUES ($1, $2)
        ON CONFLICT (family) DO UPDATE SET expires_at = GREATEST(revoked_token_families.expires_at, EXCLUDED.expires_at)`,
		family, expiresAt); err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	return nil
}

// IsRevoked reports whether an unexpired entry exists for jti or family.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti, family string) (bool, error) {
	var revoked bool
	err := s.db.QueryRow(ctx, `SELECT
            EXISTS(SELECT 1 FROM revoked_tokens WHERE $1 <> '' AND jti = $1 AND expires_at > $3)
            OR EXISTS(SELECT 1 FROM revoked_token_families WHERE $2 <> '' AND family = $2 AND expires_at > $3)`,
		jti, family, s.now()).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// DeleteExpired purges entries past their expiry and returns how many rows were removed.
func (s *RevocationStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now()
	tokens, err := s.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	families, err := s.db.Exec(ctx, `DELETE FROM revoked_token_families WHERE expires_at <= $1`, now)
	if err != nil {
		return tokens.RowsAffected(), fmt.Errorf("delete expired families: %w", err)
	}
	return tokens.RowsAffected() + families.RowsAffected(), nil
}
