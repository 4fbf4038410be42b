// Package repomanager vends repositories bound to a database handle, so that
// services can run the same repository code against *sql.DB or inside a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/shares"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
	Shares(db dbx.DBTX) shares.Repository
}
