package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/cryptox"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/auth"
	"github.com/dmitrijs2005/gophdrop/internal/server/config"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/repomanager"
)

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionInfo describes the caller's current access token.
type SessionInfo struct {
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// UserService provides authentication-related operations:
//   - Register: create users
//   - Login: verify credentials and mint tokens
//   - RefreshToken: rotate refresh tokens and mint new access tokens
//   - Logout: revoke a refresh token
type UserService struct {
	tx                           dbx.Transactor
	repomanager                  repomanager.RepositoryManager
	log                          logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	minPasswordLength            int
	now                          func() time.Time

	// dummyHash is verified against when the user does not exist, so that
	// unknown and known usernames take the same time to reject.
	dummyHash string
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *UserService {
	dummy, _ := cryptox.HashPassword(hex.EncodeToString(common.GenerateRandByteArray(16)))
	return &UserService{
		tx:                           tx,
		repomanager:                  m,
		log:                          log.With("component", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		minPasswordLength:            cfg.MinPasswordLength,
		now:                          time.Now,
		dummyHash:                    dummy,
	}
}

// Register creates a user with an argon2id password hash.
func (s *UserService) Register(ctx context.Context, userName, password string) (*models.User, error) {
	if !userNamePattern.MatchString(userName) {
		return nil, fmt.Errorf("%w: username must be 3-50 characters of letters, digits, '.', '_' or '-'", common.ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return nil, common.ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, &models.User{UserName: userName, PasswordHash: hash})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user", userName)
	return u, nil
}

// Login verifies credentials and returns a new TokenPair.
func (s *UserService) Login(ctx context.Context, userName, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.tx.Conn()).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = cryptox.VerifyPassword(password, s.dummyHash)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, user, s.tx.Conn())
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var (
		pair    *TokenPair
		expired bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		token, err := repo.Find(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		if err := repo.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		if token.Expired(s.now()) {
			// commit the delete, the error is reported below
			expired = true
			return nil
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}

		pair, err = s.generateTokenPair(ctx, user, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}
	return pair, nil
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	return s.repomanager.RefreshTokens(s.tx.Conn()).Delete(ctx, refreshToken)
}

// SessionInfo confirms the requester still exists and reports its token expiry.
func (s *UserService) SessionInfo(ctx context.Context, requester *models.Requester) (*SessionInfo, error) {
	if requester.ID() == "" {
		return nil, common.ErrUnauthenticated
	}
	u, err := s.repomanager.Users(s.tx.Conn()).GetByID(ctx, requester.ID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	return &SessionInfo{UserID: u.ID, UserName: u.UserName, ExpiresAt: requester.ExpiresAt}, nil
}

// Authenticate resolves an access token into a Requester.
func (s *UserService) Authenticate(accessToken string) (*models.Requester, error) {
	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	r := &models.Requester{UserID: claims.UserID, UserName: claims.UserName}
	if claims.ExpiresAt != nil {
		r.ExpiresAt = claims.ExpiresAt.Time
	}
	return r, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(user.ID, user.UserName, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	expires := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, user.ID, refresh, expires); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
