package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

const fileUserConstraint = "shares_file_user_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, share *models.Share) (*models.Share, error) {
	query := `
		INSERT INTO shares (file_id, shared_with, shared_by)
		VALUES ($1, $2, $3)
		RETURNING id, shared_at
	`
	err := r.db.QueryRowContext(ctx, query, share.FileID, share.SharedWithID, share.SharedByID).
		Scan(&share.ID, &share.SharedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, fileUserConstraint) {
			return nil, common.ErrAlreadyShared
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return share, nil
}

func (r *PostgresRepository) Get(ctx context.Context, fileID, sharedWithID string) (*models.Share, error) {
	query := `
		SELECT id, file_id, shared_with, shared_by, shared_at
		FROM shares
		WHERE file_id = $1 AND shared_with = $2
	`
	s := &models.Share{}
	err := r.db.QueryRowContext(ctx, query, fileID, sharedWithID).
		Scan(&s.ID, &s.FileID, &s.SharedWithID, &s.SharedByID, &s.SharedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrShareNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM shares WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrShareNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM shares WHERE file_id = $1`, fileID)
}

func (r *PostgresRepository) DeleteByFileAndSharer(ctx context.Context, fileID, sharedByID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM shares WHERE file_id = $1 AND shared_by = $2`, fileID, sharedByID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListSharedWith(ctx context.Context, userID string) ([]*models.SharedFile, error) {
	query := `
		SELECT f.access_token, f.filename, f.size, u.username, s.shared_at
		FROM shares s
		JOIN files f ON f.id = s.file_id
		JOIN users u ON u.id = s.shared_by
		WHERE s.shared_with = $1 AND f.deleted_at IS NULL
		ORDER BY s.shared_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select shares: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedFile
	for rows.Next() {
		item := &models.SharedFile{}
		if err := rows.Scan(&item.AccessToken, &item.Filename, &item.Size, &item.OwnerName, &item.SharedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListRecipients(ctx context.Context, fileID string) ([]*models.Recipient, error) {
	query := `
		SELECT u.username, s.shared_at
		FROM shares s
		JOIN users u ON u.id = s.shared_with
		WHERE s.file_id = $1
		ORDER BY u.username
	`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipients: %w", err)
	}
	defer rows.Close()

	var result []*models.Recipient
	for rows.Next() {
		item := &models.Recipient{}
		if err := rows.Scan(&item.UserName, &item.SharedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
