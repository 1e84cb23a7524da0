package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/netx"
)

const defaultTimeout = 30 * time.Second

type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refreshing   sync.Mutex
}

// NewHTTPClient returns a client for the server at baseURL, e.g.
// "http://localhost:8080". A nil hc gets a client with a 30s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/") + api.BasePath, http: hc}, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// SetTokens installs a token pair, e.g. one restored from a previous session.
func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, api.PathPing, nil, nil, false)
}

func (c *HTTPClient) Register(ctx context.Context, req api.RegisterRequest) error {
	return c.call(ctx, http.MethodPost, api.PathRegister, req, nil, false)
}

func (c *HTTPClient) GetSalt(ctx context.Context, username string) (api.SaltResponse, error) {
	var resp api.SaltResponse
	err := c.call(ctx, http.MethodPost, api.PathSalt, api.SaltRequest{Username: username}, &resp, false)
	return resp, err
}

func (c *HTTPClient) Login(ctx context.Context, username string, verifier []byte) (api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.call(ctx, http.MethodPost, api.PathLogin, api.LoginRequest{Username: username, Verifier: verifier}, &resp, false)
	if err != nil {
		return resp, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return resp, nil
}

// Recover redeems a one-time recovery code and signs in with the returned
// tokens.
func (c *HTTPClient) Recover(ctx context.Context, username, code string) (api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.call(ctx, http.MethodPost, api.PathRecover, api.RecoverRequest{Username: username, Code: code}, &resp, false)
	if err != nil {
		return resp, err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return resp, nil
}

func (c *HTTPClient) GetKeys(ctx context.Context) (api.KeyMaterial, error) {
	var resp api.KeyMaterial
	err := c.call(ctx, http.MethodGet, api.PathKeys, nil, &resp, true)
	return resp, err
}

func (c *HTTPClient) PutKeys(ctx context.Context, req api.UpdateKeysRequest) error {
	return c.call(ctx, http.MethodPut, api.PathKeys, req, nil, true)
}

func (c *HTTPClient) CreateEntry(ctx context.Context, e api.Entry) (api.Entry, error) {
	var resp api.Entry
	err := c.call(ctx, http.MethodPost, api.PathEntries, e, &resp, true)
	return resp, err
}

// UpdateEntry returns a *ConflictError (matching ErrConflict) when the server
// holds a newer copy.
func (c *HTTPClient) UpdateEntry(ctx context.Context, e api.Entry) (api.Entry, error) {
	var resp api.Entry
	err := c.call(ctx, http.MethodPut, api.PathEntries+"/"+url.PathEscape(e.ID), e, &resp, true)
	return resp, err
}

func (c *HTTPClient) DeleteEntry(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, api.PathEntries+"/"+url.PathEscape(id), nil, nil, true)
}

// RestoreEntry undeletes the server copy of entry id and returns it.
func (c *HTTPClient) RestoreEntry(ctx context.Context, id string) (api.Entry, error) {
	var resp api.Entry
	err := c.call(ctx, http.MethodPost, api.PathEntries+"/"+url.PathEscape(id)+"/restore", nil, &resp, true)
	return resp, err
}

func (c *HTTPClient) Sync(ctx context.Context, req api.SyncRequest) (api.SyncResponse, error) {
	var resp api.SyncResponse
	err := c.call(ctx, http.MethodPost, api.PathSync, req, &resp, true)
	return resp, err
}

func (c *HTTPClient) RegisterMedia(ctx context.Context, req api.MediaRegisterRequest) (api.MediaRegisterResponse, error) {
	var resp api.MediaRegisterResponse
	err := c.call(ctx, http.MethodPost, api.PathMedia, req, &resp, true)
	return resp, err
}

func (c *HTTPClient) CompleteMedia(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, api.PathMedia+"/"+url.PathEscape(id)+"/complete", nil, nil, true)
}

func (c *HTTPClient) MediaDownloadURL(ctx context.Context, id string) (string, error) {
	var resp api.URLResponse
	err := c.call(ctx, http.MethodGet, api.PathMedia+"/"+url.PathEscape(id)+"/download-url", nil, &resp, true)
	return resp.URL, err
}

func (c *HTTPClient) UploadBlob(ctx context.Context, u string, data []byte) error {
	return mapTransferError(netx.UploadToPresignedURL(ctx, c.http, u, data))
}

func (c *HTTPClient) DownloadBlob(ctx context.Context, u string) ([]byte, error) {
	b, err := netx.DownloadFromPresignedURL(ctx, c.http, u)
	return b, mapTransferError(err)
}

// call performs one JSON request. With auth set it sends the access token and,
// on a 401, refreshes the token pair once and repeats the request.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}

	access, _ := c.tokens()
	status, respBody, err := c.do(ctx, method, path, body, access, auth)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth {
		if rerr := c.refresh(ctx, access); rerr != nil {
			return rerr
		}
		access, _ = c.tokens()
		status, respBody, err = c.do(ctx, method, path, body, access, auth)
		if err != nil {
			return err
		}
	}

	if err := mapStatus(status, respBody); err != nil {
		return err
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, access string, auth bool) (int, []byte, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && access != "" {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, b, nil
}

// refresh rotates the token pair. Concurrent callers that saw the same stale
// access token share a single refresh.
func (c *HTTPClient) refresh(ctx context.Context, stale string) error {
	c.refreshing.Lock()
	defer c.refreshing.Unlock()

	access, refresh := c.tokens()
	if access != stale {
		return nil
	}
	if refresh == "" {
		return ErrUnauthorized
	}

	status, body, err := c.do(ctx, http.MethodPost, api.PathRefresh,
		mustJSON(api.RefreshRequest{RefreshToken: refresh}), "", false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		if status == http.StatusUnauthorized || status == http.StatusBadRequest {
			c.SetTokens("", "")
			return ErrUnauthorized
		}
		return mapStatus(status, body)
	}

	var tr api.TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	c.SetTokens(tr.AccessToken, tr.RefreshToken)
	return nil
}

func mapStatus(status int, body []byte) error {
	if status >= 200 && status <= 299 {
		return nil
	}

	msg := string(body)
	var er api.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case status == http.StatusConflict:
		var cr api.ConflictResponse
		if err := json.Unmarshal(body, &cr); err == nil && cr.Entry.ID != "" {
			return &ConflictError{Remote: cr.Entry}
		}
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, status, msg)
	}
}

func mapTransferError(err error) error {
	if err == nil {
		return nil
	}
	var se *netx.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
