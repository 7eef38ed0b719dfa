package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/Kotoba/common/crypto"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// LinkedAccount binds a Matrix user to a backend account.
type LinkedAccount struct {
	MXID       string
	UserID     int64
	Credential string
	LinkedAt   time.Time
}

// Accounts stores linked accounts, sealing credentials when a Sealer is
// given. Without one, credentials are stored as-is.
type Accounts struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

// Accounts returns the linked-account table view of s.
func (s *Store) Accounts(sealer *crypto.Sealer) *Accounts {
	return &Accounts{db: s.db, sealer: sealer}
}

// Link creates or replaces the link for acc.MXID.
func (a *Accounts) Link(ctx context.Context, acc LinkedAccount) error {
	stored := acc.Credential
	if a.sealer != nil {
		sealed, err := a.sealer.Seal(acc.Credential)
		if err != nil {
			return fmt.Errorf("failed to seal credential: %w", err)
		}
		stored = sealed
	}
	at := acc.LinkedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO linked_accounts (mxid, backend_user_id, credential_sealed, linked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(mxid) DO UPDATE SET
			backend_user_id = excluded.backend_user_id,
			credential_sealed = excluded.credential_sealed,
			linked_at = excluded.linked_at
	`, acc.MXID, acc.UserID, stored, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	return nil
}

// Lookup returns the link for mxid, or ErrNotFound.
func (a *Accounts) Lookup(ctx context.Context, mxid string) (*LinkedAccount, error) {
	acc := LinkedAccount{MXID: mxid}
	var stored string
	err := a.db.QueryRowContext(ctx, `
		SELECT backend_user_id, credential_sealed, linked_at FROM linked_accounts WHERE mxid = ?
	`, mxid).Scan(&acc.UserID, &stored, &acc.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	acc.Credential = stored
	if a.sealer != nil {
		plain, err := a.sealer.Open(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential for %s: %w", mxid, err)
		}
		acc.Credential = plain
	}
	return &acc, nil
}

// Unlink removes the link for mxid. Unlinking an unknown user is not an
// error.
func (a *Accounts) Unlink(ctx context.Context, mxid string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM linked_accounts WHERE mxid = ?", mxid); err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	return nil
}
