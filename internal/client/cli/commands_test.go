package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrop/internal/client/client"
	"github.com/dmitrijs2005/gophdrop/internal/client/config"
	"github.com/dmitrijs2005/gophdrop/internal/client/models"
	"github.com/dmitrijs2005/gophdrop/internal/common"
)

// ------------ fakes ------------

type fakeSvc struct {
	DropService

	calls []string

	uploadPass string
	uploadErr  map[string]error

	downloadToken string
	downloadPass  string
	downloadOut   string
	downloadErr   error

	loginUser string
	loginPass string
	loginErr  error

	registerUser string
	registerPass string

	logoutErr error
	session   *models.Session

	files  []models.RemoteFile
	binned bool

	unshareUser string
	history     []*models.Upload
}

func (f *fakeSvc) record(s string) { f.calls = append(f.calls, s) }

func (f *fakeSvc) Upload(_ context.Context, path, password string) (*client.UploadResult, error) {
	f.record("upload " + path)
	f.uploadPass = password
	if err := f.uploadErr[path]; err != nil {
		return nil, err
	}
	return &client.UploadResult{URL: "/file/tok-" + path + "/", Token: "tok-" + path}, nil
}

func (f *fakeSvc) Download(_ context.Context, token, password, out string) (string, error) {
	f.downloadToken, f.downloadPass, f.downloadOut = token, password, out
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return "/tmp/report.pdf", nil
}

func (f *fakeSvc) Bin(_ context.Context, token string) error     { f.record("bin " + token); return nil }
func (f *fakeSvc) Restore(_ context.Context, token string) error { f.record("restore " + token); return nil }
func (f *fakeSvc) Purge(_ context.Context, token string) error   { f.record("purge " + token); return nil }

func (f *fakeSvc) ListFiles(_ context.Context, binned bool) ([]models.RemoteFile, error) {
	f.binned = binned
	return f.files, nil
}

func (f *fakeSvc) Share(_ context.Context, token, user string) error {
	f.record("share " + token + " " + user)
	return nil
}

func (f *fakeSvc) Unshare(_ context.Context, _, user string) (int64, error) {
	f.unshareUser = user
	if user == "" {
		return 2, nil
	}
	return 1, nil
}

func (f *fakeSvc) Register(_ context.Context, user string, password []byte) error {
	f.registerUser, f.registerPass = user, string(password)
	return nil
}

func (f *fakeSvc) Login(_ context.Context, user string, password []byte) error {
	f.loginUser, f.loginPass = user, string(password)
	return f.loginErr
}

func (f *fakeSvc) Logout(context.Context) error { f.record("logout"); return f.logoutErr }

func (f *fakeSvc) WhoAmI(context.Context) (*models.Session, error) {
	if f.session == nil {
		return nil, client.ErrNotLoggedIn
	}
	return f.session, nil
}

func (f *fakeSvc) History(context.Context) ([]*models.Upload, error) { return f.history, nil }

// ------------ helpers ------------

func newTestApp(svc DropService, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{
		config: &config.Config{ServerURL: "http://drop.local/"},
		svc:    svc,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    &out,
	}, &out
}

func stubPasswords(t *testing.T, password string) {
	t.Helper()
	origGP, origNP := getPassword, getNewPassword
	t.Cleanup(func() {
		getPassword = origGP
		getNewPassword = origNP
	})
	getPassword = func(string, io.Writer) ([]byte, error) { return []byte(password), nil }
	getNewPassword = func(string, io.Writer) ([]byte, error) { return []byte(password), nil }
}

// ------------ tests ------------

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"frobnicate"}},
		{name: "missing token", args: []string{"bin"}},
		{name: "too many operands", args: []string{"restore", "a", "b"}},
		{name: "unknown flag", args: []string{"ls", "-x"}},
		{name: "share needs user", args: []string{"share", "tok"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestApp(&fakeSvc{}, "")
			err := a.Run(context.Background(), tc.args)
			require.Error(t, err)
			assert.True(t, IsUsage(err), "got %v", err)
		})
	}
}

func TestRun_Help(t *testing.T) {
	a, out := newTestApp(&fakeSvc{}, "")
	require.NoError(t, a.Run(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "upload <path>")
}

func TestUpload_FlagAfterOperands(t *testing.T) {
	stubPasswords(t, "secret123")
	f := &fakeSvc{}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"upload", "a.txt", "b.txt", "-p"}))
	assert.Equal(t, []string{"upload a.txt", "upload b.txt"}, f.calls)
	assert.Equal(t, "secret123", f.uploadPass)
	assert.Contains(t, out.String(), "http://drop.local/file/tok-a.txt/")
}

func TestUpload_PartialFailure(t *testing.T) {
	f := &fakeSvc{uploadErr: map[string]error{"b.txt": common.ErrSizeExceeded}}
	a, out := newTestApp(f, "")

	err := a.Run(context.Background(), []string{"upload", "a.txt", "b.txt"})
	require.Error(t, err)
	assert.False(t, IsUsage(err))
	assert.Equal(t, "", f.uploadPass)
	assert.Contains(t, out.String(), "b.txt: file size exceeds limit")
}

func TestDownload(t *testing.T) {
	stubPasswords(t, "secret123")
	f := &fakeSvc{}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"download", "-o", "/tmp", "tok", "-p"}))
	assert.Equal(t, "tok", f.downloadToken)
	assert.Equal(t, "secret123", f.downloadPass)
	assert.Equal(t, "/tmp", f.downloadOut)
	assert.Contains(t, out.String(), "saved /tmp/report.pdf")
}

func TestDownload_PasswordHint(t *testing.T) {
	f := &fakeSvc{downloadErr: &client.APIError{Status: 401, Message: "password required: unauthorized"}}
	a, _ := newTestApp(f, "")

	err := a.Run(context.Background(), []string{"download", "tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry with -p")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestTokenCommands(t *testing.T) {
	f := &fakeSvc{}
	a, _ := newTestApp(f, "")
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, []string{"bin", "t1"}))
	require.NoError(t, a.Run(ctx, []string{"restore", "t1"}))
	require.NoError(t, a.Run(ctx, []string{"delete", "t1"}))
	require.NoError(t, a.Run(ctx, []string{"share", "t1", "bob"}))

	assert.Equal(t, []string{"bin t1", "restore t1", "purge t1", "share t1 bob"}, f.calls)
}

func TestUnshare(t *testing.T) {
	f := &fakeSvc{}
	a, out := newTestApp(f, "")
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, []string{"unshare", "t1"}))
	assert.Equal(t, "", f.unshareUser)
	assert.Contains(t, out.String(), "removed 2 share(s)")

	require.NoError(t, a.Run(ctx, []string{"unshare", "t1", "bob"}))
	assert.Equal(t, "bob", f.unshareUser)
}

func TestList(t *testing.T) {
	binnedAt := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	f := &fakeSvc{files: []models.RemoteFile{
		{Token: "t1", Filename: "a.txt", Size: 5, Protected: true, DeletedAt: &binnedAt},
	}}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"ls"}))
	assert.False(t, f.binned)
	assert.Contains(t, out.String(), "PROTECTED")
	assert.Contains(t, out.String(), "yes")

	out.Reset()
	require.NoError(t, a.Run(context.Background(), []string{"ls", "-bin"}))
	assert.True(t, f.binned)
	assert.Contains(t, out.String(), "BINNED")
	assert.Contains(t, out.String(), "a.txt")
}

func TestHistory(t *testing.T) {
	f := &fakeSvc{history: []*models.Upload{{Token: "t1", Filename: "hello.txt", Size: 9}}}
	a, out := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"history"}))
	assert.Contains(t, out.String(), "hello.txt")
	assert.Contains(t, out.String(), "t1")
}

func TestLogin_PromptsForUser(t *testing.T) {
	stubPasswords(t, "password-1")
	f := &fakeSvc{}
	a, out := newTestApp(f, "alice\n")

	require.NoError(t, a.Run(context.Background(), []string{"login"}))
	assert.Equal(t, "alice", f.loginUser)
	assert.Equal(t, "password-1", f.loginPass)
	assert.Contains(t, out.String(), "Logged in as alice")
}

func TestLogin_Failure(t *testing.T) {
	stubPasswords(t, "bad")
	f := &fakeSvc{loginErr: &client.APIError{Status: 401, Message: "invalid username or password: unauthorized"}}
	a, _ := newTestApp(f, "")

	err := a.Run(context.Background(), []string{"login", "alice"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRegister(t *testing.T) {
	stubPasswords(t, "password-1")
	f := &fakeSvc{}
	a, _ := newTestApp(f, "")

	require.NoError(t, a.Run(context.Background(), []string{"register", "bob"}))
	assert.Equal(t, "bob", f.registerUser)
	assert.Equal(t, "password-1", f.registerPass)
}

func TestRegister_EmptyUserName(t *testing.T) {
	a, _ := newTestApp(&fakeSvc{}, "\n")
	err := a.Run(context.Background(), []string{"register"})
	assert.True(t, IsUsage(err))
}

func TestLogout(t *testing.T) {
	f := &fakeSvc{logoutErr: client.ErrUnavailable}
	a, out := newTestApp(f, "")
	require.NoError(t, a.Run(context.Background(), []string{"logout"}))
	assert.Contains(t, out.String(), "forgotten locally")

	f.logoutErr = errors.New("boom")
	assert.Error(t, a.Run(context.Background(), []string{"logout"}))
}

func TestWhoAmI(t *testing.T) {
	f := &fakeSvc{}
	a, out := newTestApp(f, "")
	require.NoError(t, a.Run(context.Background(), []string{"whoami"}))
	assert.Equal(t, "anonymous\n", out.String())

	out.Reset()
	f.session = &models.Session{UserName: "alice"}
	require.NoError(t, a.Run(context.Background(), []string{"whoami"}))
	assert.Equal(t, "alice\n", out.String())
}
