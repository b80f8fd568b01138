package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/logger"
)

// Doer executes a named operation against the backend.
//
// A non-nil error means no response reached the client (a transport
// failure). Every response, successful or not, is reported through Result.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Result, error)
}

// Request is an operation against the backend.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
}

// NewRequest creates a request for method and path with an optional JSON body.
func NewRequest(method, path string, body any) *Request {
	return &Request{
		Method: strings.ToUpper(method),
		Path:   path,
		Body:   body,
		Header: make(http.Header),
	}
}

// Clone returns a copy of the request with its own header map.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	return &out
}

// Authorization returns the Authorization header value.
func (r *Request) Authorization() string {
	return r.Header.Get("Authorization")
}

// Result is the outcome of a request that received a response.
type Result struct {
	OK          bool
	AuthExpired bool
	Message     string
	Data        json.RawMessage
	StatusCode  int
}

// Err classifies an unsuccessful result. It returns nil when OK.
func (r *Result) Err() error {
	switch {
	case r == nil:
		return core.Transport(nil)
	case r.OK:
		return nil
	case r.AuthExpired:
		return core.Authorization(r.Message)
	default:
		return core.ServerLogic(r.Message)
	}
}

// Decode unmarshals the result data into out.
func (r *Result) Decode(out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return core.ServerLogic(fmt.Sprintf("invalid response data: %v", err))
	}
	return nil
}

// envelope is the backend response body shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Detail  string          `json:"detail"`
}

// Client implements Doer over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

// Option is a function that configures the Client.
type Option func(*Client)

// NewClient creates a new client for the API rooted at baseURL. Cookies set
// by the backend are kept for the lifetime of the client.
func NewClient(baseURL string, opts ...Option) *Client {
	// cookiejar.New only fails on invalid options.
	jar, _ := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})

	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	for _, opt := range opts {
		opt(client)
	}
	if client.log == nil {
		client.log = logger.WithModule("remote")
	}

	return client
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithTransport sets a custom HTTP transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = transport
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes req and classifies the response.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	startTime := time.Now()

	httpReq, err := c.toHTTPRequest(ctx, req)
	if err != nil {
		return nil, core.Transport(err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, core.Transport(err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, core.Transport(err)
	}

	result := fromHTTPResponse(httpResp.StatusCode, bodyBytes)

	c.log.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", httpReq.Header.Get("X-Request-ID")),
		zap.Int("status", result.StatusCode),
		zap.Bool("ok", result.OK),
		zap.Duration("elapsed", time.Since(startTime)))

	return result, nil
}

// toHTTPRequest converts a Request to an http.Request.
func (c *Client) toHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}

	return httpReq, nil
}

// fromHTTPResponse maps a status code and body to a Result.
func fromHTTPResponse(status int, body []byte) *Result {
	result := &Result{StatusCode: status}

	var env envelope
	decoded := len(body) > 0 && json.Unmarshal(body, &env) == nil

	switch {
	case status == http.StatusUnauthorized:
		result.AuthExpired = true
		result.Message = firstNonEmpty(env.Message, env.Detail, "please sign in again")
	case status >= 200 && status < 300:
		switch {
		case !decoded:
			result.Message = "invalid response body"
		case env.Success:
			result.OK = true
			result.Message = env.Message
			result.Data = env.Data
		default:
			result.Message = firstNonEmpty(env.Message, "request failed")
		}
	default:
		result.Message = firstNonEmpty(env.Message, env.Detail, http.StatusText(status))
	}

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
