// Package lichess is a minimal bot-API client: JSON/form actions over
// fasthttp plus NDJSON event streams.
package lichess

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type Client struct {
	baseURL string
	token   string

	http   *fasthttp.Client
	stream *fasthttp.Client

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) {
		c.http.MaxConnsPerHost = n
		c.stream.MaxConnsPerHost = n
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 64,
		},
		// Streams stay open for the lifetime of a game; no read timeout.
		stream: &fasthttp.Client{
			StreamResponseBody: true,
			WriteTimeout:       10 * time.Second,
			MaxConnsPerHost:    16,
		},
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lichess: status %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 from the API.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == fasthttp.StatusTooManyRequests
}

func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.post(ctx, "/api/challenge/"+challengeID+"/accept", nil)
}

func (c *Client) DeclineChallenge(ctx context.Context, challengeID string) error {
	return c.post(ctx, "/api/challenge/"+challengeID+"/decline", nil)
}

func (c *Client) MakeMove(ctx context.Context, gameID, move string) error {
	return c.post(ctx, "/api/bot/game/"+gameID+"/move/"+move, nil)
}

func (c *Client) PostChat(ctx context.Context, gameID, text string) error {
	form := url.Values{}
	form.Set("room", "player")
	form.Set("text", text)
	return c.post(ctx, "/api/bot/game/"+gameID+"/chat", form)
}

func (c *Client) CreateOpenChallenge(ctx context.Context, terms ChallengeTerms) error {
	return c.post(ctx, "/api/challenge/open", termsForm(terms))
}

func (c *Client) CreateChallenge(ctx context.Context, target string, terms ChallengeTerms) error {
	return c.post(ctx, "/api/challenge/"+target, termsForm(terms))
}

func termsForm(terms ChallengeTerms) url.Values {
	form := url.Values{}
	form.Set("rated", strconv.FormatBool(terms.Rated))
	form.Set("clock.limit", strconv.Itoa(terms.ClockLimit))
	form.Set("clock.increment", strconv.Itoa(terms.ClockIncrement))
	if terms.Variant != "" {
		form.Set("variant", terms.Variant)
	}
	return form
}

func (c *Client) post(ctx context.Context, path string, form url.Values) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	timeout := c.defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if code := resp.StatusCode(); code >= fasthttp.StatusBadRequest {
		return &StatusError{Code: code, Body: truncate(string(resp.Body()), 200)}
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
