package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chemviz/chemviz/internal/logging"
)

const (
	// DefaultTimeout bounds every request end to end
	DefaultTimeout = 20 * time.Second

	apiPrefix         = "/api"
	authHeaderScheme  = "Token "
	requestIDHeader   = "X-Request-ID"
	formContentType   = "application/x-www-form-urlencoded"
	jsonAcceptHeader  = "application/json"
	maxLoggedBodySize = 512
)

// TokenSource yields the current session token, or "" when anonymous. It is
// called for every request at send time.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Options configures a Client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Response is a fully read success response
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// Client talks to the backend. The base address is fixed for its lifetime.
type Client struct {
	baseURL    string
	apiURL     string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// New creates a client for opts.BaseURL (without the /api suffix)
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		baseURL:    base,
		apiURL:     base + apiPrefix,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// BaseURL returns the configured backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a request to path under the API root. Absolute URLs are used as
// given. Non-2xx responses become *HTTPError, transport failures
// *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, headers http.Header) (*Response, error) {
	return c.do(ctx, method, resolve(c.apiURL, path), body, headers)
}

// GetRaw fetches ref relative to the base address rather than the API root,
// which is where uploaded CSV files are served from.
func (c *Client) GetRaw(ctx context.Context, ref string) (*Response, error) {
	return c.do(ctx, http.MethodGet, resolve(c.baseURL, ref), nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", jsonAcceptHeader)
	}

	// read the token now, not when the call was queued
	authenticated := false
	if req.Header.Get("Authorization") == "" {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", authHeaderScheme+token)
			authenticated = true
		}
	}

	requestID := uuid.New().String()
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "id", requestID, "method", method, "url", target, "error", err)
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("request done",
		"id", requestID,
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"auth", authenticated,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Status:  resp.StatusCode,
			Body:    data,
			Message: extractMessage(data),
		}
		c.logger.Debug("request rejected", "id", requestID, "status", resp.StatusCode, "body", truncateBody(data))
		return nil, httpErr
	}

	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		RequestID: requestID,
	}, nil
}

// PostForm sends values form-encoded
func (c *Client) PostForm(ctx context.Context, path string, values url.Values) (*Response, error) {
	headers := http.Header{}
	headers.Set("Content-Type", formContentType)
	return c.Do(ctx, http.MethodPost, path, strings.NewReader(values.Encode()), headers)
}

// PostMultipart sends one file part plus plain fields as multipart/form-data
func (c *Client) PostMultipart(ctx context.Context, path, fileField, fileName string, file io.Reader, fields map[string]string) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", w.FormDataContentType())
	return c.Do(ctx, http.MethodPost, path, &buf, headers)
}

// GetJSON decodes a success body into v
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// resolve joins ref onto root unless ref is already absolute
func resolve(root, ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return root + ref
}

func truncateBody(b []byte) string {
	if len(b) <= maxLoggedBodySize {
		return string(b)
	}
	return string(b[:maxLoggedBodySize]) + "..."
}
