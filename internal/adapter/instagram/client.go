package instagram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

const (
	defaultBaseURL   = "https://www.instagram.com"
	defaultDocID     = "9510064595728286"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	igAppID          = "936619743392459"
	maxResponseBytes = 8 << 20
)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	BaseURL             string
	UserAgent           string
	DocID               string
	Retries             int
	RetryDelay          time.Duration
	CSRFRefreshInterval time.Duration
}

// Client talks to Instagram's public web endpoints
type Client struct {
	baseURL    string
	userAgent  string
	docID      string
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	csrfMu        sync.Mutex
	csrfToken     string
	csrfFetchedAt time.Time
	csrfTTL       time.Duration
}

// NewClient creates a new Instagram client
func NewClient(cfg *ClientConfig, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		docID:      cfg.DocID,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		csrfTTL:    cfg.CSRFRefreshInterval,
		logger:     logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.docID == "" {
		c.docID = defaultDocID
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	if c.csrfTTL <= 0 {
		c.csrfTTL = 10 * time.Minute
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,

		// Response header timeout (not total request timeout)
		ResponseHeaderTimeout: 30 * time.Second,
	}

	// No client timeout: callers bound requests through the context
	c.httpClient = &http.Client{Transport: transport}

	return c
}

// csrf returns a cached CSRF token, fetching a new one when it is stale
func (c *Client) csrf(ctx context.Context) (string, error) {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()

	if c.csrfToken != "" && time.Since(c.csrfFetchedAt) < c.csrfTTL {
		return c.csrfToken, nil
	}

	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return "", err
	}

	c.csrfToken = token
	c.csrfFetchedAt = time.Now()
	return token, nil
}

// invalidateCSRF forces the next request to fetch a fresh token
func (c *Client) invalidateCSRF() {
	c.csrfMu.Lock()
	c.csrfToken = ""
	c.csrfMu.Unlock()
}

// fetchCSRFToken reads the csrftoken cookie set by the landing page
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrftoken" && cookie.Value != "" {
			c.logger.Debug("obtained csrf token")
			return cookie.Value, nil
		}
	}

	return "", errors.New("failed to obtain csrf token")
}

// queryShortcodeMedia runs the post GraphQL query, retrying rate-limited attempts
func (c *Client) queryShortcodeMedia(ctx context.Context, shortcode string) (*shortcodeMedia, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay * time.Duration(attempt)
			if after, ok := domain.GetRetryAfter(lastErr); ok && after > wait {
				wait = after
			}
			c.logger.Debug("retrying instagram request",
				zap.String("shortcode", shortcode),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		media, err := c.doQuery(ctx, shortcode)
		if err == nil {
			return media, nil
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) doQuery(ctx context.Context, shortcode string) (*shortcodeMedia, error) {
	token, err := c.csrf(ctx)
	if err != nil {
		return nil, err
	}

	variables, err := encodeVariables(shortcode)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("variables", variables)
	form.Set("doc_id", c.docID)

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/graphql/query", strings.NewReader(form.Encode()), token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, domain.NewRetryableError(domain.ErrRateLimited, retryAfter(resp))
	case http.StatusForbidden:
		// Usually a stale token
		c.invalidateCSRF()
		return nil, domain.NewRetryableError(fmt.Errorf("request forbidden: %s", resp.Status), 0)
	default:
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return decodeQueryResponse(io.LimitReader(resp.Body, maxResponseBytes))
}

// doRequest performs an HTTP request with the browser-like headers Instagram expects
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body io.Reader, csrfToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setCommonHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if csrfToken != "" {
		req.Header.Set("X-CSRFToken", csrfToken)
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrfToken})
	}
	req.Header.Set("X-IG-App-ID", igAppID)
	req.Header.Set("X-FB-Friendly-Name", "PolarisPostActionLoadPostQueryQuery")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// followShareLink resolves a /share/ link to the post it redirects to
func (c *Client) followShareLink(ctx context.Context, shareURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shareURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to follow share link: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return resp.Request.URL.String(), nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// retryAfter parses the Retry-After header in seconds
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
