package lichess

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
)

// ndjson holds one long-lived streaming response. The request and response
// stay acquired until Close so the body stream remains readable.
type ndjson struct {
	req  *fasthttp.Request
	resp *fasthttp.Response
	br   *bufio.Reader
}

func (c *Client) openStream(ctx context.Context, path string) (*ndjson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	req.Header.Set(fasthttp.HeaderAccept, "application/x-ndjson")

	if err := c.stream.Do(req, resp); err != nil {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if code := resp.StatusCode(); code >= fasthttp.StatusBadRequest {
		body := truncate(string(resp.Body()), 200)
		resp.CloseBodyStream()
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return nil, &StatusError{Code: code, Body: body}
	}
	return &ndjson{req: req, resp: resp, br: bufio.NewReader(resp.BodyStream())}, nil
}

// next decodes the next non-empty line into v. Blank keepalive lines are
// skipped. Returns io.EOF when the server ends the stream.
func (s *ndjson) next(v any) error {
	for {
		line, err := s.br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if derr := json.Unmarshal([]byte(trimmed), v); derr != nil {
				return fmt.Errorf("decode stream line: %w", derr)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *ndjson) close() error {
	err := s.resp.CloseBodyStream()
	fasthttp.ReleaseRequest(s.req)
	fasthttp.ReleaseResponse(s.resp)
	return err
}

// EventStream is the global incoming-event stream.
type EventStream struct {
	s *ndjson
}

// StreamEvents opens /api/stream/event.
func (c *Client) StreamEvents(ctx context.Context) (*EventStream, error) {
	s, err := c.openStream(ctx, "/api/stream/event")
	if err != nil {
		return nil, err
	}
	return &EventStream{s: s}, nil
}

func (s *EventStream) Next() (Event, error) {
	var ev Event
	if err := s.s.next(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *EventStream) Close() error { return s.s.close() }

// GameStream is the per-game state stream.
type GameStream struct {
	s *ndjson
}

// StreamGame opens /api/bot/game/stream/{id}.
func (c *Client) StreamGame(ctx context.Context, gameID string) (*GameStream, error) {
	s, err := c.openStream(ctx, "/api/bot/game/stream/"+gameID)
	if err != nil {
		return nil, err
	}
	return &GameStream{s: s}, nil
}

func (s *GameStream) Next() (GameEvent, error) {
	var ev GameEvent
	if err := s.s.next(&ev); err != nil {
		return GameEvent{}, err
	}
	return ev, nil
}

func (s *GameStream) Close() error { return s.s.close() }
