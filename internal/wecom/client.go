package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
)

// DefaultAPIBase is the WeCom enterprise API root.
const DefaultAPIBase = "https://qyapi.weixin.qq.com/cgi-bin"

// Platform errcodes signalling an expired or invalidated access token.
const (
	errcodeTokenInvalid = 40014
	errcodeTokenExpired = 42001
)

// Client talks to the WeCom enterprise API: token fetch, message push and
// media upload. Every call is bounded by the configured timeout.
type Client struct {
	baseURL    string
	corpID     string
	corpSecret string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a platform client. baseURL falls back to
// DefaultAPIBase when empty.
func NewClient(baseURL, corpID, corpSecret string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &Client{
		baseURL:    baseURL,
		corpID:     corpID,
		corpSecret: corpSecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "wecom_client").Logger(),
	}
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	MediaID string `json:"media_id"`
}

// GetToken fetches a fresh access token and its TTL in seconds.
func (c *Client) GetToken(ctx context.Context) (string, int64, error) {
	endpoint := fmt.Sprintf("%s/gettoken?corpid=%s&corpsecret=%s",
		c.baseURL, url.QueryEscape(c.corpID), url.QueryEscape(c.corpSecret))

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, wrapUpstream("gettoken", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("token").Observe(time.Since(start).Seconds())

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("%w: gettoken: %v", ErrUpstream, err)
	}
	if tr.ErrCode != 0 {
		return "", 0, fmt.Errorf("%w: gettoken errcode %d: %s", ErrUpstream, tr.ErrCode, tr.ErrMsg)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: gettoken returned empty token", ErrUpstream)
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}

// Send pushes a message payload through the send API using the given
// token. An expired-token errcode maps to ErrTokenExpired so callers can
// invalidate the cache and retry.
func (c *Client) Send(ctx context.Context, token string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/message/send?access_token=%s", c.baseURL, url.QueryEscape(token))

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapUpstream("message/send", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("send").Observe(time.Since(start).Seconds())

	return parseAPIError("message/send", resp.Body)
}

// UploadMedia uploads a temporary image asset and returns its media id.
func (c *Client) UploadMedia(ctx context.Context, token, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/media/upload?access_token=%s&type=image", c.baseURL, url.QueryEscape(token))

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", wrapUpstream("media/upload", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("upload").Observe(time.Since(start).Seconds())

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("%w: media/upload: %v", ErrUpstream, err)
	}
	if err := checkErrCode("media/upload", ar.ErrCode, ar.ErrMsg); err != nil {
		return "", err
	}
	if ar.MediaID == "" {
		return "", fmt.Errorf("%w: media/upload returned no media_id", ErrUpstream)
	}
	return ar.MediaID, nil
}

// Download fetches an arbitrary asset, typically a generated image URL.
func (c *Client) Download(ctx context.Context, assetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapUpstream("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download status %d", ErrUpstream, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseAPIError(op string, body io.Reader) error {
	var ar apiResponse
	if err := json.NewDecoder(body).Decode(&ar); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
	}
	return checkErrCode(op, ar.ErrCode, ar.ErrMsg)
}

func checkErrCode(op string, code int, msg string) error {
	switch code {
	case 0:
		return nil
	case errcodeTokenInvalid, errcodeTokenExpired:
		return fmt.Errorf("%w: %s errcode %d: %s", ErrTokenExpired, op, code, msg)
	default:
		return fmt.Errorf("%w: %s errcode %d: %s", ErrUpstream, op, code, msg)
	}
}

// wrapUpstream maps transport errors into the upstream taxonomy, keeping
// timeouts distinct.
func wrapUpstream(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, op)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
