// Package devops is a small Azure DevOps REST client for work items and wiki pages.
package devops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ayudapo/internal/logging"
)

// ErrNotConfigured is returned when organization, project or PAT are missing.
var ErrNotConfigured = errors.New("azure devops is not configured")

const maxErrorBody = 512

type Config struct {
	Organization string
	Project      string
	PAT          string
	BaseURL      string
	APIVersion   string
	WikiID       string
	Timeout      time.Duration
	MaxRetries   int
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure devops %s %s: http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	cfg     Config
	baseURL string
	auth    string
	http    *http.Client
	log     *logging.Logger
}

func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	cfg.Organization = strings.TrimSpace(cfg.Organization)
	cfg.Project = strings.TrimSpace(cfg.Project)
	cfg.PAT = strings.TrimSpace(cfg.PAT)
	if cfg.Organization == "" || cfg.Project == "" || cfg.PAT == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://dev.azure.com"
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "7.1"
	}
	if strings.TrimSpace(cfg.WikiID) == "" {
		cfg.WikiID = cfg.Project + ".wiki"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	base := strings.TrimRight(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.Organization) + "/" + url.PathEscape(cfg.Project)
	return &Client{
		cfg:     cfg,
		baseURL: base,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.PAT)),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.Named("devops"),
	}, nil
}

func (c *Client) Project() string { return c.cfg.Project }

type request struct {
	method      string
	path        string
	query       url.Values
	body        any
	contentType string
	header      http.Header
	// readOnly marks a POST that only queries, so it can be resent safely.
	readOnly bool
}

func (r request) idempotent() bool {
	switch r.method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return r.readOnly
}

// do sends req and decodes a JSON response into out. 429 is always retried with exponential
// backoff; 5xx and network errors only for idempotent requests, since a create may already
// have been applied.
func (c *Client) do(ctx context.Context, req request, out any) (http.Header, error) {
	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.path, err)
		}
		payload = data
	}
	q := url.Values{}
	for k, v := range req.query {
		q[k] = v
	}
	q.Set("api-version", c.cfg.APIVersion)
	target := c.baseURL + req.path + "?" + q.Encode()

	backoff := 300 * time.Millisecond
	for attempt := 0; ; attempt++ {
		header, raw, err := c.doOnce(ctx, req, target, payload)
		if err == nil {
			if out != nil && len(raw) > 0 {
				if uErr := json.Unmarshal(raw, out); uErr != nil {
					return header, fmt.Errorf("decode %s: %w", req.path, uErr)
				}
			}
			return header, nil
		}
		if !retryable(req, err) || attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			return header, err
		}
		c.log.Warn("request retrying", "path", req.path, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Client) doOnce(ctx context.Context, req request, target string, payload []byte) (http.Header, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Authorization", c.auth)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		ct := req.contentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("azure devops %s %s: %w", req.method, req.path, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return resp.Header, raw, &APIError{Status: resp.StatusCode, Method: req.method, Path: req.path, Body: msg}
	}
	return resp.Header, raw, nil
}

func retryable(req request, err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return true
		}
		return apiErr.Status >= 500 && req.idempotent()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return req.idempotent()
}
