package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophdrop/internal/client/client"
	"github.com/dmitrijs2005/gophdrop/internal/client/config"
	"github.com/dmitrijs2005/gophdrop/internal/client/models"
	"github.com/dmitrijs2005/gophdrop/internal/client/services"
)

// DropService is the part of services.DropService the commands use.
type DropService interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, userName string, password []byte) error
	Login(ctx context.Context, userName string, password []byte) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*models.Session, error)

	Upload(ctx context.Context, path, password string) (*client.UploadResult, error)
	Download(ctx context.Context, token, password, out string) (string, error)
	Bundle(ctx context.Context, out string) (string, error)
	Bin(ctx context.Context, token string) error
	Restore(ctx context.Context, token string) error
	Purge(ctx context.Context, token string) error
	ListFiles(ctx context.Context, binned bool) ([]models.RemoteFile, error)

	Share(ctx context.Context, token, userName string) error
	Unshare(ctx context.Context, token, userName string) (int64, error)
	ListShared(ctx context.Context) ([]models.SharedFile, error)
	ListRecipients(ctx context.Context, token string) ([]models.Recipient, error)

	History(ctx context.Context) ([]*models.Upload, error)
}

var _ DropService = (*services.DropService)(nil)

// getSimpleText, getPassword and getNewPassword are swapped in tests.
var (
	getSimpleText  = GetSimpleText
	getPassword    = GetPassword
	getNewPassword = GetNewPassword
)

type App struct {
	config *config.Config
	svc    DropService
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database, connects the API client and restores the
// stored session, if any.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	db, err := client.InitDatabase(ctx, c.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	api := client.NewHTTPClient(c.ServerURL, c.RequestTimeout)
	svc := services.NewDropService(api, db)

	if _, err := svc.RestoreSession(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	return &App{
		config: c,
		svc:    svc,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Run executes the command named by args[0] with the remaining operands.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
	return cmd.run(a, ctx, args[1:])
}
