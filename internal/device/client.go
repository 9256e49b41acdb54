package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// API defines the request/response surface of the printer backend. It is
// implemented by *Client and can be replaced with a fake for testing.
type API interface {
	FetchStatus(ctx context.Context) (RawStatus, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
	FetchThumbnail(ctx context.Context, query ThumbnailQuery) ([]byte, error)
}

// StreamDialer opens the server-push status channel. Backends without
// streaming support never get dialed; that capability is static
// configuration, not probed at runtime.
type StreamDialer interface {
	DialStream(ctx context.Context) (StreamConn, error)
}

// StreamConn is one live status subscription. Next blocks until the next
// event or a transport error; Close tears the subscription down.
type StreamConn interface {
	Next() (RawStatus, error)
	Close() error
}

// Ensure Client implements both surfaces at compile time.
var (
	_ API          = (*Client)(nil)
	_ StreamDialer = (*Client)(nil)
)

// Client talks to the printer's HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	log       zerolog.Logger
}

const (
	defaultAPIBind   = "127.0.0.1:8080"
	defaultUserAgent = "facet/0.1"
	requestTimeout   = 5 * time.Second
	streamDialWait   = 5 * time.Second
)

// NewClient builds a Client using the provided apiBind host:port value.
func NewClient(apiBind string, log zerolog.Logger) (*Client, error) {
	base, err := parseBaseURL(apiBind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		log:       log.With().Str("component", "device").Logger(),
	}, nil
}

// FetchStatus retrieves one raw status payload.
func (c *Client) FetchStatus(ctx context.Context) (RawStatus, error) {
	if c == nil {
		return RawStatus{}, fmt.Errorf("client is nil")
	}
	var payload RawStatus
	if err := c.do(ctx, http.MethodGet, "/status", &payload); err != nil {
		return RawStatus{}, err
	}
	return payload, nil
}

// Pause asks the printer to pause the active job.
func (c *Client) Pause(ctx context.Context) error {
	return c.command(ctx, "/pause")
}

// Resume asks the printer to resume a paused job.
func (c *Client) Resume(ctx context.Context) error {
	return c.command(ctx, "/resume")
}

// Cancel asks the printer to abort the active job.
func (c *Client) Cancel(ctx context.Context) error {
	return c.command(ctx, "/cancel")
}

func (c *Client) command(ctx context.Context, path string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodPost, path, nil)
}

// FetchThumbnail retrieves the preview image for a job file. The returned
// bytes are the raw image payload; an empty body is not an error.
func (c *Client) FetchThumbnail(ctx context.Context, query ThumbnailQuery) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(query.Path) == "" {
		return nil, fmt.Errorf("thumbnail path required")
	}
	values := url.Values{}
	values.Set("location", query.Location)
	values.Set("path", query.Path)
	if query.Size > 0 {
		values.Set("size", strconv.Itoa(query.Size))
	}
	rel := &url.URL{Path: "/thumbnail", RawQuery: values.Encode()}
	reqURL := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail body: %w", err)
	}
	return body, nil
}

// DialStream opens the /status/stream websocket. Events arrive as RawStatus
// JSON documents, one per message.
func (c *Client) DialStream(ctx context.Context) (StreamConn, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/status/stream"

	dialer := websocket.Dialer{HandshakeTimeout: streamDialWait}
	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	c.log.Debug().Str("url", wsURL.String()).Msg("status stream connected")
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

// Next returns the next event. Transport failures come back as plain
// errors; a frame that is not valid status JSON yields a *ParseError so
// the caller can skip the event without dropping the subscription.
func (s *wsStream) Next() (RawStatus, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return RawStatus{}, fmt.Errorf("read stream event: %w", err)
	}
	var payload RawStatus
	if err := json.Unmarshal(data, &payload); err != nil {
		return RawStatus{}, &ParseError{Field: "event", Reason: err.Error()}
	}
	return payload, nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	rel := &url.URL{Path: path}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api %s returned status %d", rel.String(), resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiBind string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBind)
	if trimmed == "" {
		trimmed = defaultAPIBind
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_bind %q: %w", apiBind, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
