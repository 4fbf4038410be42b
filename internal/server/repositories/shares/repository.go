// Package shares persists the sharing relation between files and users.
package shares

import (
	"context"

	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

type Repository interface {
	// Create inserts the share; an existing (file, recipient) pair yields
	// common.ErrAlreadyShared.
	Create(ctx context.Context, share *models.Share) (*models.Share, error)
	// Get returns common.ErrShareNotFound when no share exists.
	Get(ctx context.Context, fileID, sharedWithID string) (*models.Share, error)
	Delete(ctx context.Context, id string) error
	DeleteByFile(ctx context.Context, fileID string) (int64, error)
	DeleteByFileAndSharer(ctx context.Context, fileID, sharedByID string) (int64, error)

	// ListSharedWith lists active files shared with userID, newest first.
	ListSharedWith(ctx context.Context, userID string) ([]*models.SharedFile, error)
	ListRecipients(ctx context.Context, fileID string) ([]*models.Recipient, error)
}
