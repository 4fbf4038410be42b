package users

import (
	"context"

	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

type Repository interface {
	// Create inserts the user and fills its ID. A taken username yields
	// common.ErrUserExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
