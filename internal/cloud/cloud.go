// Package cloud is a thin client for the WeChat cloud base HTTP API: it
// issues access tokens and invokes named cloud functions.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/playperu/marslanding/internal/config"
)

// AccessToken as returned by the token endpoint. ExpiresIn is relative, in
// seconds from the moment it was issued.
type AccessToken struct {
	Value     string `json:"access_token"`
	ExpiresIn int    `json:"expires_in"`
}

// InvokeResponse is the raw envelope of a function invocation. RespData holds
// the function's own JSON result as a string; use Decode to unpack it.
type InvokeResponse struct {
	ErrCode  int    `json:"errcode"`
	ErrMsg   string `json:"errmsg"`
	RespData string `json:"resp_data"`
}

// APIError is an application-level failure reported either by the platform
// (errcode) or by a cloud function (code >= 400).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return "cloud error " + strconv.Itoa(e.Code) + ": " + e.Message
}

type Client struct {
	baseURL   string
	appID     string
	secret    string
	grantType string
	http      *http.Client
	logger    *slog.Logger
}

func New(cfg config.Cloud, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		appID:     cfg.AppID,
		secret:    cfg.Secret,
		grantType: cfg.GrantType,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		logger:    logger,
	}
}

func (c *Client) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	q := url.Values{}
	q.Set("grant_type", c.grantType)
	q.Set("appid", c.appID)
	q.Set("secret", c.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return AccessToken{}, fmt.Errorf("building token request: %w", err)
	}

	var body struct {
		AccessToken
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := c.do(req, &body); err != nil {
		return AccessToken{}, fmt.Errorf("fetching access token: %w", err)
	}
	if body.ErrCode != 0 {
		return AccessToken{}, fmt.Errorf("fetching access token: %w", &APIError{Code: body.ErrCode, Message: body.ErrMsg})
	}
	c.logger.Debug("access token fetched", "expires_in", body.ExpiresIn)
	return body.AccessToken, nil
}

// Invoke calls the cloud function name in env with body as its JSON input.
// The envelope is returned unchecked.
func (c *Client) Invoke(ctx context.Context, name, token, env string, body any) (InvokeResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("encoding %s body: %w", name, err)
	}

	q := url.Values{}
	q.Set("env", env)
	q.Set("access_token", token)
	q.Set("name", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/tcb/invokecloudfunction?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("building %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp InvokeResponse
	if err := c.do(req, &resp); err != nil {
		return InvokeResponse{}, fmt.Errorf("invoking %s: %w", name, err)
	}
	c.logger.Debug("cloud function invoked", "name", name, "errcode", resp.ErrCode)
	return resp, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
