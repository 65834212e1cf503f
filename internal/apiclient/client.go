// Package apiclient implements a JSON HTTP client for the work-platform
// open APIs (DingTalk, WeChat). The platforms share one convention: every
// call carries a short-lived access token in the URL, and errors come back
// as an errcode/errmsg pair in the response body.
//
// The client caches the access token and refetches it transparently when
// the platform reports it invalid.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/workpass-app/workpass/internal/logging"
)

// TokenPlaceholder marks the spot in an endpoint URL where the cached
// access token is substituted before the request is sent.
const TokenPlaceholder = "ACCESS_TOKEN"

// expirySlack is subtracted from the advertised token lifetime so a token
// about to lapse is not used for a request that arrives just under the wire.
const expirySlack = 10 * time.Second

// defaultExpiresIn is assumed when the token endpoint omits expires_in.
// DingTalk always issues 7200-second tokens without advertising it.
const defaultExpiresIn = 7200 * time.Second

var (
	// ErrInvalidToken means the platform rejected the access token
	// (errcode 40001, 40014 or 41001). The client refetches and retries
	// before surfacing it.
	ErrInvalidToken = errors.New("apiclient: invalid access token")

	// ErrSystemBusy is the platform's transient errcode -1.
	ErrSystemBusy = errors.New("apiclient: system busy")
)

// APIError is a non-retryable platform error.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: errcode=%d errmsg=%q", e.Code, e.Msg)
}

// Client is a JSON client with a cached platform access token. It is safe
// for concurrent use.
type Client struct {
	httpClient *http.Client
	tokenURL   string
	log        logging.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewClient builds a client that obtains access tokens from tokenURL.
func NewClient(tokenURL string, log logging.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokenURL:   tokenURL,
		log:        log,
	}
}

// Get issues a GET to url, substituting the access token if the URL carries
// the placeholder, and decodes the JSON response into out. out may be nil
// when only the errcode check matters.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.request(ctx, http.MethodGet, url, nil, out)
}

// Post issues a POST with a JSON-encoded payload. See Get for token
// substitution and decoding.
func (c *Client) Post(ctx context.Context, url string, payload, out any) error {
	return c.request(ctx, http.MethodPost, url, payload, out)
}

// AccessToken returns the cached token, fetching a fresh one when the cache
// is empty or within expirySlack of lapsing.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, ok := c.token, c.valid()
	c.mu.RUnlock()
	if ok {
		return token, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another caller may have refetched while we waited for the lock
	if c.valid() {
		return c.token, nil
	}

	token, expiresIn, err := c.fetchAccessToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiresAt = time.Now().Add(expiresIn)
	return token, nil
}

// valid reports whether the cached token is still usable. Callers hold mu.
func (c *Client) valid() bool {
	return c.token != "" && c.expiresAt.After(time.Now().Add(expirySlack))
}

// resetAccessToken drops the cached token, but only if it still equals the
// one the failed request used. Otherwise another caller already replaced it
// and the replacement must not be discarded.
func (c *Client) resetAccessToken(old string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == old {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

func (c *Client) fetchAccessToken(ctx context.Context) (string, time.Duration, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   *int64 `json:"expires_in"`
	}
	if err := c.rawRequest(ctx, http.MethodGet, c.tokenURL, nil, &resp); err != nil {
		return "", 0, fmt.Errorf("access token fetch: %w", err)
	}

	expiresIn := defaultExpiresIn
	if resp.ExpiresIn != nil {
		expiresIn = time.Duration(*resp.ExpiresIn) * time.Second
	}
	c.log.Debug(ctx, "fetched platform access token", "expires_in", expiresIn)
	return resp.AccessToken, expiresIn, nil
}

// request drives the retry loop around rawRequest: a busy platform is
// retried as-is, a rejected token is reset and refetched, anything else is
// final. At most two retries.
func (c *Client) request(ctx context.Context, method, url string, payload, out any) error {
	for attempt := 1; ; attempt++ {
		tokenStr := ""
		if strings.Contains(url, TokenPlaceholder) {
			t, err := c.AccessToken(ctx)
			if err != nil {
				return err
			}
			tokenStr = t
		}

		err := c.rawRequest(ctx, method, strings.ReplaceAll(url, TokenPlaceholder, tokenStr), payload, out)
		if err == nil || attempt > 2 {
			return err
		}

		switch {
		case errors.Is(err, ErrInvalidToken):
			c.log.Warn(ctx, "platform rejected access token, refetching", "attempt", attempt)
			c.resetAccessToken(tokenStr)
		case errors.Is(err, ErrSystemBusy):
			c.log.Warn(ctx, "platform busy, retrying", "attempt", attempt)
		default:
			return err
		}
	}
}

func (c *Client) rawRequest(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkError(data); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkError maps the platform's errcode convention onto client errors.
// An absent or zero errcode is success.
func checkError(data []byte) error {
	var e struct {
		Errcode *int   `json:"errcode"`
		Errmsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	switch {
	case e.Errcode == nil, *e.Errcode == 0:
		return nil
	case *e.Errcode == -1:
		return ErrSystemBusy
	case *e.Errcode == 40001, *e.Errcode == 40014, *e.Errcode == 41001:
		return ErrInvalidToken
	default:
		return &APIError{Code: *e.Errcode, Msg: e.Errmsg}
	}
}
