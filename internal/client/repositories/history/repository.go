// Package history persists the local record of files uploaded from this
// machine, so their tokens can be found again later.
package history

import (
	"context"

	"github.com/dmitrijs2005/gophdrop/internal/client/models"
)

type Repository interface {
	// Add records an upload; adding a known token overwrites the row.
	Add(ctx context.Context, u *models.Upload) error
	// List returns uploads newest first.
	List(ctx context.Context) ([]*models.Upload, error)
	// Delete forgets a token. Unknown tokens are not an error.
	Delete(ctx context.Context, token string) error
}
