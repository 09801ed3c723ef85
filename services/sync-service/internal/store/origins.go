package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

const originColumns = `id, owner_id, organization_id, mailbox_name, account_id, provider,
	token_type, access_token, mailbox_id, is_default, is_active, sync_code,
	sync_code_updated_at, created_at`

// GetOrigin returns an origin by ID
func (q *Queries) GetOrigin(ctx context.Context, id uuid.UUID) (*models.Origin, error) {
	var origin models.Origin
	err := q.get(ctx, &origin, `SELECT `+originColumns+` FROM origins WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get origin %s: %w", id, err)
	}
	return &origin, nil
}

// ListOrigins returns every origin, active or not
func (q *Queries) ListOrigins(ctx context.Context) ([]models.Origin, error) {
	var origins []models.Origin
	err := q.selectAll(ctx, &origins, `SELECT `+originColumns+` FROM origins ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list origins: %w", err)
	}
	return origins, nil
}

// ListOriginsByIDs returns the origins with the given IDs, in creation order
func (q *Queries) ListOriginsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Origin, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var origins []models.Origin
	err := q.selectIn(ctx, &origins,
		`SELECT `+originColumns+` FROM origins WHERE id IN (?) ORDER BY created_at`,
		uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list origins: %w", err)
	}
	return origins, nil
}

// ListSyncCandidates returns active origins whose sync code was not updated after border
func (q *Queries) ListSyncCandidates(ctx context.Context, border time.Time) ([]models.Origin, error) {
	var origins []models.Origin
	err := q.selectAll(ctx, &origins, `SELECT `+originColumns+` FROM origins
		WHERE is_active = ?
			AND (sync_code_updated_at IS NULL OR sync_code_updated_at <= ?)`,
		true, border.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list sync candidates: %w", err)
	}
	return origins, nil
}

// CountOriginsInState counts active origins with the given sync code
func (q *Queries) CountOriginsInState(ctx context.Context, code models.SyncCode) (int, error) {
	var n int
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM origins WHERE is_active = ? AND sync_code = ?`, true, code)
	if err != nil {
		return 0, fmt.Errorf("failed to count origins: %w", err)
	}
	return n, nil
}

// ClaimOrigin moves an origin from expected to next only if it still shows
// expected. It returns false when another worker changed the state first.
func (q *Queries) ClaimOrigin(ctx context.Context, id uuid.UUID, expected, next models.SyncCode, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `UPDATE origins SET sync_code = ?, sync_code_updated_at = ?
		WHERE id = ? AND sync_code = ?`,
		next, now.UTC(), id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to claim origin %s: %w", id, err)
	}
	return n == 1, nil
}

// SetOriginSyncCode records the sync state of an origin
func (q *Queries) SetOriginSyncCode(ctx context.Context, id uuid.UUID, code models.SyncCode, now time.Time) error {
	_, err := q.exec(ctx, `UPDATE origins SET sync_code = ?, sync_code_updated_at = ? WHERE id = ?`,
		code, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set sync code of origin %s: %w", id, err)
	}
	return nil
}

// ResetHangedOrigins marks origins stuck in process since before border as failed
func (q *Queries) ResetHangedOrigins(ctx context.Context, border, now time.Time) (int64, error) {
	n, err := q.exec(ctx, `UPDATE origins SET sync_code = ?, sync_code_updated_at = ?
		WHERE sync_code = ? AND sync_code_updated_at <= ?`,
		models.SyncFailed, now.UTC(), models.SyncInProcess, border.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset hanged origins: %w", err)
	}
	return n, nil
}

// CreateOrigin inserts a new origin. The first origin of an owner, or any
// origin created while the owner has no active default, becomes the default.
func (s *Store) CreateOrigin(ctx context.Context, origin *models.Origin) error {
	return s.InTx(ctx, func(tx *Tx) error {
		var existing int
		if err := tx.get(ctx, &existing,
			`SELECT COUNT(*) FROM origins WHERE owner_id = ? AND mailbox_name = ?`,
			origin.OwnerID, origin.MailboxName); err != nil {
			return fmt.Errorf("failed to check origin: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("origin %s for owner %s: %w", origin.MailboxName, origin.OwnerID, ErrAlreadyExists)
		}

		var defaults int
		if err := tx.get(ctx, &defaults,
			`SELECT COUNT(*) FROM origins WHERE owner_id = ? AND is_default = ? AND is_active = ?`,
			origin.OwnerID, true, true); err != nil {
			return fmt.Errorf("failed to count default origins: %w", err)
		}
		if defaults == 0 {
			origin.IsDefault = true
		} else if origin.IsDefault {
			if _, err := tx.exec(ctx, `UPDATE origins SET is_default = ? WHERE owner_id = ?`,
				false, origin.OwnerID); err != nil {
				return fmt.Errorf("failed to reset default origin: %w", err)
			}
		}

		if origin.ID == uuid.Nil {
			origin.ID = uuid.New()
		}
		origin.IsActive = true
		origin.CreatedAt = time.Now().UTC()

		_, err := tx.exec(ctx, `INSERT INTO origins (`+originColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			origin.ID, origin.OwnerID, origin.OrganizationID, origin.MailboxName, origin.AccountID,
			origin.Provider, origin.TokenType, origin.AccessToken, origin.MailboxID,
			origin.IsDefault, origin.IsActive, origin.SyncCode, origin.SyncCodeUpdatedAt, origin.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create origin: %w", err)
		}
		return nil
	})
}

// DeactivateOrigin soft-deletes an origin. If it was the owner's default,
// the oldest remaining active origin takes over.
func (s *Store) DeactivateOrigin(ctx context.Context, id uuid.UUID) error {
	return s.InTx(ctx, func(tx *Tx) error {
		origin, err := tx.GetOrigin(ctx, id)
		if err != nil {
			return err
		}

		if _, err := tx.exec(ctx, `UPDATE origins SET is_active = ?, is_default = ? WHERE id = ?`,
			false, false, id); err != nil {
			return fmt.Errorf("failed to deactivate origin: %w", err)
		}
		if !origin.IsDefault {
			return nil
		}

		var next uuid.UUID
		err = tx.get(ctx, &next, `SELECT id FROM origins
			WHERE owner_id = ? AND is_active = ? ORDER BY created_at LIMIT 1`,
			origin.OwnerID, true)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find next default origin: %w", err)
		}
		if _, err := tx.exec(ctx, `UPDATE origins SET is_default = ? WHERE id = ?`, true, next); err != nil {
			return fmt.Errorf("failed to set default origin: %w", err)
		}
		return nil
	})
}
