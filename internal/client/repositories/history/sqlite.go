package history

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophdrop/internal/client/models"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, u *models.Upload) error {
	query := `INSERT INTO uploads (token, filename, size, protected, uploaded_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(token) DO UPDATE SET filename = excluded.filename,
				size = excluded.size,
				protected = excluded.protected,
				uploaded_at = excluded.uploaded_at
	`
	_, err := r.db.ExecContext(ctx, query, u.Token, u.Filename, u.Size, u.Protected, u.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Upload, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, filename, size, protected, uploaded_at FROM uploads ORDER BY uploaded_at DESC, token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u := &models.Upload{}
		if err := rows.Scan(&u.Token, &u.Filename, &u.Size, &u.Protected, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete upload[%s]: %w", token, err)
	}
	return nil
}
