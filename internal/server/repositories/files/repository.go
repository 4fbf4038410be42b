package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

// Repository is the catalog of stored files. State transitions are
// conditional updates: each succeeds only from the expected source state so
// concurrent requests cannot both win.
type Repository interface {
	// Create inserts the record and fills ID and CreatedAt. A colliding access
	// token yields common.ErrDuplicateToken.
	Create(ctx context.Context, file *models.File) (*models.File, error)
	TokenExists(ctx context.Context, token string) (bool, error)

	// GetByToken returns common.ErrFileNotFound for unknown tokens.
	GetByToken(ctx context.Context, token string) (*models.File, error)
	// LockByToken is GetByToken with a row lock held until the enclosing
	// transaction ends.
	LockByToken(ctx context.Context, token string) (*models.File, error)

	ListByOwner(ctx context.Context, ownerID string, state models.FileState) ([]*models.File, error)

	// MarkBinned moves an active file to the bin; common.ErrAlreadyBinned
	// when it is already there.
	MarkBinned(ctx context.Context, id string, at time.Time) error
	// Restore moves a binned file back; common.ErrNotBinned otherwise.
	Restore(ctx context.Context, id string) error
	// Delete removes the record; common.ErrFileNotFound when absent.
	Delete(ctx context.Context, id string) error

	ListBinnedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.File, error)
	// ListPage walks all records ordered by id, starting after afterID.
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.File, error)
	ExistsByStoredPath(ctx context.Context, path string) (bool, error)
}
