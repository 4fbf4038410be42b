package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/client/models"
)

// HTTPClient talks to the gophdrop HTTP API. It is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration

	mu        sync.Mutex
	tokens    Tokens
	onRefresh func(*Tokens)
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL. timeout bounds metadata calls;
// uploads and downloads run until ctx is done.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
}

func (c *HTTPClient) SetTokens(t *Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		c.tokens = Tokens{}
		return
	}
	c.tokens = *t
}

// OnRefresh registers fn to be called with the new pair after a refresh.
func (c *HTTPClient) OnRefresh(fn func(*Tokens)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = fn
}

func (c *HTTPClient) currentTokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// request describes one call. body, when set, is invoked per attempt so a
// retried request gets a fresh reader.
type request struct {
	method string
	path   string
	body   func() (io.Reader, string, error)
	header http.Header
	auth   bool
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(string(b)), "application/json", nil
	}
}

// do sends req and returns a 2xx response. An expired access token is
// refreshed once and the call repeated.
func (c *HTTPClient) do(ctx context.Context, req request) (*http.Response, error) {
	resp, err := c.send(ctx, req, c.currentTokens().Access)
	if err == nil {
		return resp, nil
	}

	var apiErr *APIError
	if !req.auth || !errors.As(err, &apiErr) || !apiErr.tokenExpired() {
		return nil, err
	}

	t, rerr := c.refresh(ctx)
	if rerr != nil {
		return nil, err
	}
	return c.send(ctx, req, t.Access)
}

func (c *HTTPClient) send(ctx context.Context, req request, accessToken string) (*http.Response, error) {
	var (
		body        io.Reader
		contentType string
	)
	if req.body != nil {
		var err error
		if body, contentType, err = req.body(); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			_ = rc.Close()
		}
		return nil, err
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.auth && accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// call runs a metadata request under the client timeout and decodes a JSON
// response into out when out is non-nil.
func (c *HTTPClient) call(ctx context.Context, req request, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) refresh(ctx context.Context) (*Tokens, error) {
	current := c.currentTokens()
	if current.Refresh == "" {
		return nil, ErrNotLoggedIn
	}

	var t Tokens
	req := request{method: http.MethodPost, path: "/token/refresh/", body: jsonBody(map[string]string{"refresh": current.Refresh})}
	if err := c.call(ctx, req, &t); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tokens = t
	fn := c.onRefresh
	c.mu.Unlock()

	if fn != nil {
		fn(&t)
	}
	return &t, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, request{method: http.MethodGet, path: "/healthz"}, nil)
}

func (c *HTTPClient) Register(ctx context.Context, userName, password string) error {
	return c.call(ctx, request{
		method: http.MethodPost,
		path:   "/register/",
		body:   jsonBody(map[string]string{"username": userName, "password": password}),
	}, nil)
}

func (c *HTTPClient) Login(ctx context.Context, userName, password string) (*Tokens, error) {
	var t Tokens
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/login/",
		body:   jsonBody(map[string]string{"username": userName, "password": password}),
	}, &t)
	if err != nil {
		return nil, err
	}
	c.SetTokens(&t)
	return &t, nil
}

// Logout revokes the refresh token and forgets both tokens.
func (c *HTTPClient) Logout(ctx context.Context) error {
	current := c.currentTokens()
	if current.Refresh == "" {
		return ErrNotLoggedIn
	}
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/logout/",
		body:   jsonBody(map[string]string{"refresh": current.Refresh}),
	}, nil)
	c.SetTokens(nil)
	return err
}

// Upload streams body as a multipart form. body is rewound if the call has
// to be repeated after a token refresh.
func (c *HTTPClient) Upload(ctx context.Context, name string, body io.ReadSeeker, password string) (*UploadResult, error) {
	// the writer of a previous attempt must be gone before body is rewound
	var writing chan struct{}
	defer func() {
		if writing != nil {
			<-writing
		}
	}()

	multipartBody := func() (io.Reader, string, error) {
		if writing != nil {
			<-writing
		}
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		done := make(chan struct{})
		writing = done
		go func() {
			defer close(done)
			pw.CloseWithError(writeUploadForm(mw, name, body, password))
		}()
		return pr, mw.FormDataContentType(), nil
	}

	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/file/", body: multipartBody, auth: true})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, name string, body io.Reader, password string) error {
	if password != "" {
		if err := mw.WriteField("password", password); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// Download opens the file behind token. The caller closes Body.
func (c *HTTPClient) Download(ctx context.Context, token, password string) (*DownloadResult, error) {
	header := http.Header{}
	if password != "" {
		header.Set("X-File-Password", password)
	}

	resp, err := c.do(ctx, request{method: http.MethodGet, path: filePath(token), header: header})
	if err != nil {
		return nil, err
	}

	name := token
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}

	return &DownloadResult{
		Filename: name,
		Sealed:   resp.Header.Get("Content-Type") == "application/zip",
		Body:     resp.Body,
	}, nil
}

func (c *HTTPClient) Bin(ctx context.Context, token string) error {
	return c.call(ctx, request{method: http.MethodPut, path: "/file/bin/" + url.PathEscape(token) + "/", auth: true}, nil)
}

func (c *HTTPClient) Restore(ctx context.Context, token string) error {
	return c.call(ctx, request{method: http.MethodPut, path: "/file/bin/restore/" + url.PathEscape(token) + "/", auth: true}, nil)
}

func (c *HTTPClient) Purge(ctx context.Context, token string) error {
	return c.call(ctx, request{method: http.MethodDelete, path: filePath(token), auth: true}, nil)
}

func (c *HTTPClient) ListFiles(ctx context.Context) ([]models.RemoteFile, error) {
	var out []models.RemoteFile
	err := c.call(ctx, request{method: http.MethodGet, path: "/user_filenames/", auth: true}, &out)
	return out, err
}

func (c *HTTPClient) ListBinned(ctx context.Context) ([]models.RemoteFile, error) {
	var out []models.RemoteFile
	err := c.call(ctx, request{method: http.MethodGet, path: "/file/bin/all/", auth: true}, &out)
	return out, err
}

// Bundle streams the gzip-compressed tar of the caller's unprotected files.
func (c *HTTPClient) Bundle(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/user_files/", auth: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) Share(ctx context.Context, token, userName string) error {
	return c.call(ctx, request{method: http.MethodPost, path: sharePath(token, userName), auth: true}, nil)
}

func (c *HTTPClient) Unshare(ctx context.Context, token, userName string) error {
	return c.call(ctx, request{method: http.MethodDelete, path: sharePath(token, userName), auth: true}, nil)
}

func (c *HTTPClient) UnshareAll(ctx context.Context, token string) (int64, error) {
	var out struct {
		Removed int64 `json:"removed"`
	}
	err := c.call(ctx, request{method: http.MethodDelete, path: "/share/" + url.PathEscape(token) + "/", auth: true}, &out)
	return out.Removed, err
}

func (c *HTTPClient) ListShared(ctx context.Context) ([]models.SharedFile, error) {
	var out []models.SharedFile
	err := c.call(ctx, request{method: http.MethodGet, path: "/share/", auth: true}, &out)
	return out, err
}

func (c *HTTPClient) ListRecipients(ctx context.Context, token string) ([]models.Recipient, error) {
	var out []models.Recipient
	err := c.call(ctx, request{method: http.MethodGet, path: "/share/" + url.PathEscape(token) + "/", auth: true}, &out)
	return out, err
}

func filePath(token string) string {
	return "/file/" + url.PathEscape(token) + "/"
}

func sharePath(token, userName string) string {
	return "/share/" + url.PathEscape(token) + "/" + url.PathEscape(userName) + "/"
}
