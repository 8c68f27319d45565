package soundcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zester/pkg/auth"
	errs "zester/pkg/errors"
	"zester/pkg/logger"
)

// DefaultUserAgent identifies zester to the API
const DefaultUserAgent = "zester/1.0 (+https://github.com/zester/zester)"

// Client talks to the v2 API on behalf of one credential
type Client struct {
	httpClient *http.Client
	baseURL    string
	cred       auth.Credential
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a client. timeout bounds each individual request;
// there is no limit on a crawl as a whole.
func NewClient(cred auth.Credential, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: BaseURL,
		cred:    cred,
		headers: map[string]string{
			"User-Agent": DefaultUserAgent,
			"Accept":     "application/json; charset=utf-8",
		},
		logger: log,
	}
}

// SetBaseURL points the client at another host, such as a test server
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// FetchPage returns the raw body of one collection page. The first page is
// built from the endpoint; later pages request the cursor URL as given, with
// only the client id re-attached.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]byte, error) {
	target := req.Cursor
	if target == "" {
		u, err := firstPageURL(c.baseURL, req.Endpoint, req.PageSize)
		if err != nil {
			return nil, errs.NewAPIError(0, fmt.Sprintf("invalid endpoint %q: %v", req.Endpoint, err))
		}
		target = u
	} else if _, err := url.ParseRequestURI(target); err != nil {
		return nil, errs.NewDecodeError("next_href is not a URL", err)
	}

	return c.get(ctx, target)
}

// Me fetches the authenticated user's profile
func (c *Client) Me(ctx context.Context) (*Me, error) {
	body, err := c.get(ctx, c.baseURL+MeEndpoint)
	if err != nil {
		return nil, err
	}

	var me Me
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, errs.NewDecodeError("failed to parse /me response", err)
	}
	if me.ID == 0 {
		return nil, errs.NewDecodeError("/me response has no user id", nil)
	}

	c.logger.DebugWithFields("resolved authenticated user", map[string]interface{}{
		"user_id":  me.ID,
		"username": me.Username,
	})
	return &me, nil
}

// Playlist fetches the full representation of one playlist, including
// every track it holds
func (c *Client) Playlist(ctx context.Context, id int64) (*Playlist, error) {
	body, err := c.get(ctx, c.baseURL+fmt.Sprintf(PlaylistEndpoint, id))
	if err != nil {
		return nil, err
	}
	return DecodePlaylist(body)
}

// StreamURL resolves a transcoding URL to the location of the media file
func (c *Client) StreamURL(ctx context.Context, tc *Transcoding) (string, error) {
	if _, err := url.ParseRequestURI(tc.URL); err != nil {
		return "", errs.NewDecodeError("transcoding url is not a URL", err)
	}
	body, err := c.get(ctx, tc.URL)
	if err != nil {
		return "", err
	}

	var info struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", errs.NewDecodeError("failed to parse stream info", err)
	}
	if info.URL == "" {
		return "", errs.NewDecodeError("stream info has no media url", nil)
	}
	return info.URL, nil
}

// OpenMedia starts downloading a media file. The location is pre-signed,
// so no credential is attached. The caller closes the body.
func (c *Client) OpenMedia(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errs.NewAPIError(0, fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("User-Agent", c.headers["User-Agent"])

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// get performs an authenticated GET and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.NewAPIError(0, fmt.Sprintf("failed to build request: %v", err))
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.cred.Apply(req)

	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.NewNetworkError("failed to read response body", err)
	}
	return body, nil
}

// doRequest sends req and records its outcome
func (c *Client) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	// the URL carries the client id, log it without the query
	logURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    logURL,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	requestDuration.Observe(duration.Seconds())

	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		// the caller gave up, which is not a transport failure
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      logURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.NewNetworkError(fmt.Sprintf("%s %s", req.Method, logURL), err)
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	logger.LogRequest(c.logger, req.Method, logURL, resp.StatusCode, duration)
	return resp, nil
}

// checkResponseStatus maps a non-2xx response to a classified error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// drain a little of the body so the connection can be reused
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"path":   resp.Request.URL.Path,
	}
	if retryAfter > 0 {
		fields["retry_after"] = retryAfter.String()
	}
	if len(preview) > 0 {
		fields["body_preview"] = string(preview)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication rejected", fields)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limited by server", fields)
	case resp.StatusCode >= 500:
		c.logger.WarnWithFields("server error", fields)
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
	}

	return errs.FromStatus(resp.StatusCode, retryAfter, "")
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Unusable values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
