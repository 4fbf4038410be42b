package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

const (
	accessTokenConstraint = "files_access_token_key"

	fileColumns = `id, stored_path, access_token, password_hash, owner_id, deleted_at, filename, size, created_at`
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	err := s.Scan(&f.ID, &f.StoredPath, &f.AccessToken, &f.PasswordHash, &f.OwnerID,
		&f.DeletedAt, &f.Filename, &f.Size, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (stored_path, access_token, password_hash, owner_id, filename, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.StoredPath, file.AccessToken, file.PasswordHash, file.OwnerID, file.Filename, file.Size,
	).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, accessTokenConstraint) {
			return nil, common.ErrDuplicateToken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM files WHERE access_token = $1)`
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE access_token = $1`
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) LockByToken(ctx context.Context, token string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE access_token = $1 FOR UPDATE`
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrFileNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, state models.FileState) ([]*models.File, error) {
	var query string
	switch state {
	case models.FileBinned:
		query = `SELECT ` + fileColumns + ` FROM files
			WHERE owner_id = $1 AND deleted_at IS NOT NULL
			ORDER BY deleted_at DESC`
	default:
		query = `SELECT ` + fileColumns + ` FROM files
			WHERE owner_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC`
	}
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) MarkBinned(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE files SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	return r.transition(ctx, common.ErrAlreadyBinned, query, id, at)
}

func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	query := `UPDATE files SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`
	return r.transition(ctx, common.ErrNotBinned, query, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	return r.transition(ctx, common.ErrFileNotFound, query, id)
}

// transition executes a conditional statement that must touch exactly one
// row; zero rows means the precondition did not hold and noRows is returned.
func (r *PostgresRepository) transition(ctx context.Context, noRows error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return noRows
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListBinnedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY deleted_at
		LIMIT $2`
	return r.list(ctx, query, cutoff, limit)
}

func (r *PostgresRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE id::text > $1
		ORDER BY id::text
		LIMIT $2`
	return r.list(ctx, query, afterID, limit)
}

func (r *PostgresRepository) ExistsByStoredPath(ctx context.Context, path string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM files WHERE stored_path = $1)`
	if err := r.db.QueryRowContext(ctx, query, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
