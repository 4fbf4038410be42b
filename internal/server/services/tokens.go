// Package services contains server-side business logic: the file catalog,
// sharing and user identity. Services speak in models and common errors;
// transports translate both.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

// MaxTokenAttempts bounds how many candidates Generate draws before giving up.
const MaxTokenAttempts = 5

// accessTokenBytes is 128 bits, rendered as 32 hex characters.
const accessTokenBytes = 16

type tokenChecker interface {
	TokenExists(ctx context.Context, token string) (bool, error)
}

// TokenGenerator draws random access tokens that are not yet present in the
// catalog. The check is advisory: the unique index on the catalog is what
// finally guarantees uniqueness.
type TokenGenerator struct {
	catalog tokenChecker
	random  func() (string, error)
}

func NewTokenGenerator(catalog tokenChecker) *TokenGenerator {
	return &TokenGenerator{
		catalog: catalog,
		random:  func() (string, error) { return common.MakeRandHexString(accessTokenBytes) },
	}
}

func (g *TokenGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < MaxTokenAttempts; i++ {
		token, err := g.random()
		if err != nil {
			return "", fmt.Errorf("%w: %w", common.ErrTokenExhausted, err)
		}
		taken, err := g.catalog.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", common.ErrTokenExhausted
}
