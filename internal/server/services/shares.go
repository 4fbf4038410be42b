package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/repomanager"
)

// ShareService manages which users see a file in their shared list. A share
// grants visibility only: downloading still requires the token and, for
// protected files, the password.
type ShareService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewShareService(tx dbx.Transactor, m repomanager.RepositoryManager, log logging.Logger) *ShareService {
	return &ShareService{tx: tx, repomanager: m, log: log.With("component", "shares")}
}

// Share grants toUserName visibility of the requester's file. The file row
// stays locked for the duration so a concurrent Bin cannot slip in between
// the state check and the insert.
func (s *ShareService) Share(ctx context.Context, requester *models.Requester, token, toUserName string) (*models.Share, error) {
	if requester.ID() == "" {
		return nil, common.ErrUnauthenticated
	}

	var share *models.Share
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.repomanager.Files(tx).LockByToken(ctx, token)
		if err != nil {
			return err
		}
		if !f.IsOwnedBy(requester.ID()) {
			return common.ErrForbidden
		}
		if f.State() == models.FileBinned {
			return common.ErrFileBinned
		}

		target, err := s.repomanager.Users(tx).GetUserByLogin(ctx, toUserName)
		if err != nil {
			return err
		}
		if target.ID == requester.ID() {
			return common.ErrInvalidTarget
		}

		share, err = s.repomanager.Shares(tx).Create(ctx, &models.Share{
			FileID:       f.ID,
			SharedWithID: target.ID,
			SharedByID:   requester.ID(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "file shared", "token", token, "with", toUserName)
	return share, nil
}

func (s *ShareService) ListSharedWith(ctx context.Context, requester *models.Requester) ([]*models.SharedFile, error) {
	if requester.ID() == "" {
		return nil, common.ErrUnauthenticated
	}
	return s.repomanager.Shares(s.tx.Conn()).ListSharedWith(ctx, requester.ID())
}

// ListRecipients lists who the requester's file is shared with.
func (s *ShareService) ListRecipients(ctx context.Context, requester *models.Requester, token string) ([]*models.Recipient, error) {
	f, err := s.owned(ctx, requester, token)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Shares(s.tx.Conn()).ListRecipients(ctx, f.ID)
}

// Unshare revokes a single share. Only the user who created the share may
// revoke it.
func (s *ShareService) Unshare(ctx context.Context, requester *models.Requester, token, toUserName string) error {
	if requester.ID() == "" {
		return common.ErrUnauthenticated
	}

	conn := s.tx.Conn()
	f, err := s.repomanager.Files(conn).GetByToken(ctx, token)
	if err != nil {
		return err
	}
	target, err := s.repomanager.Users(conn).GetUserByLogin(ctx, toUserName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrShareNotFound
		}
		return err
	}

	shares := s.repomanager.Shares(conn)
	share, err := shares.Get(ctx, f.ID, target.ID)
	if err != nil {
		return err
	}
	if share.SharedByID != requester.ID() {
		return common.ErrForbidden
	}
	if err := shares.Delete(ctx, share.ID); err != nil {
		return err
	}

	s.log.Info(ctx, "file unshared", "token", token, "with", toUserName)
	return nil
}

// UnshareAll revokes every share the requester made for the file and
// reports how many were removed.
func (s *ShareService) UnshareAll(ctx context.Context, requester *models.Requester, token string) (int64, error) {
	f, err := s.owned(ctx, requester, token)
	if err != nil {
		return 0, err
	}
	n, err := s.repomanager.Shares(s.tx.Conn()).DeleteByFileAndSharer(ctx, f.ID, requester.ID())
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "file unshared from all", "token", token, "count", n)
	return n, nil
}

func (s *ShareService) owned(ctx context.Context, requester *models.Requester, token string) (*models.File, error) {
	if requester.ID() == "" {
		return nil, common.ErrUnauthenticated
	}
	f, err := s.repomanager.Files(s.tx.Conn()).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !f.IsOwnedBy(requester.ID()) {
		return nil, common.ErrForbidden
	}
	return f, nil
}
