package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/id"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithFormat requests a wire format in the hello frame ("json" or
// "msgpack"). Default: json.
func WithFormat(format string) ClientOption {
	return func(c *Client) { c.format = format }
}

// WithRequestTimeout bounds each request waiting for its response.
// Default: 10s.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Client connects to a relay server and triggers playbook runs
// remotely. It is safe for concurrent use; requests are correlated to
// responses by frame ID.
type Client struct {
	url    string
	token  string
	format string
	logger *slog.Logger

	timeout time.Duration

	conn    net.Conn
	wire    codec.Codec
	op      ws.OpCode
	writeMu sync.Mutex
	closed  atomic.Bool

	pending sync.Map // frame ID -> chan *Frame
}

// Dial connects to a relay server and authenticates.
func Dial(ctx context.Context, url, token string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:     url,
		token:   token,
		format:  codec.NameJSON,
		logger:  slog.Default(),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("relay: dial: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// connect opens the WebSocket, sends the hello frame and waits for the
// auth-ok. The hello exchange is always JSON; the negotiated codec
// applies afterwards.
func (c *Client) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	hello := &Frame{
		Type:      FrameHello,
		ID:        id.NewRunID().String(),
		Token:     c.token,
		Format:    c.format,
		Timestamp: time.Now().UTC(),
	}
	raw, err := json.Marshal(hello)
	if err != nil {
		conn.Close()
		return fmt.Errorf("encoding hello: %w", err)
	}
	if err := wsutil.WriteClientText(conn, raw); err != nil {
		conn.Close()
		return fmt.Errorf("writing hello: %w", err)
	}

	// Read the auth response directly; the read loop has not started
	// yet.
	type readResult struct {
		frame *Frame
		err   error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, readErr := wsutil.ReadServerText(conn)
		if readErr != nil {
			resultCh <- readResult{err: fmt.Errorf("reading auth response: %w", readErr)}
			return
		}
		var frame Frame
		if decErr := json.Unmarshal(data, &frame); decErr != nil {
			resultCh <- readResult{err: fmt.Errorf("decoding auth response: %w", decErr)}
			return
		}
		resultCh <- readResult{frame: &frame}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			conn.Close()
			return result.err
		}
		resp := result.frame
		if resp.Type == FrameError {
			conn.Close()
			return errors.New(resp.Error)
		}
		if resp.Type != FrameAuthOK {
			conn.Close()
			return fmt.Errorf("unexpected frame %q before auth-ok", resp.Type)
		}
		c.wire = codec.Get(resp.Format)
		c.op = ws.OpBinary
		if c.wire.Name() == codec.NameJSON {
			c.op = ws.OpText
		}
		c.conn = conn
		c.logger.Debug("relay client connected",
			slog.String("url", c.url),
			slog.String("format", c.wire.Name()))
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-time.After(c.timeout):
		conn.Close()
		return errors.New("auth timeout")
	}
}

// Trigger starts a playbook run on the remote steward and returns the
// run ID.
func (c *Client) Trigger(ctx context.Context, playbook string, params map[string]string) (string, error) {
	resp, err := c.request(ctx, NewTriggerFrame(playbook, params))
	if err != nil {
		return "", fmt.Errorf("relay: trigger %q: %w", playbook, err)
	}
	return resp.RunID, nil
}

// Ping checks the connection round-trip.
func (c *Client) Ping(ctx context.Context) error {
	frame := &Frame{
		Type:      FramePing,
		ID:        id.NewRunID().String(),
		Timestamp: time.Now().UTC(),
	}
	if _, err := c.request(ctx, frame); err != nil {
		return fmt.Errorf("relay: ping: %w", err)
	}
	return nil
}

// Close terminates the connection. In-flight requests fail with a read
// error.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// request writes a frame and waits for the response carrying the same
// frame ID.
func (c *Client) request(ctx context.Context, frame *Frame) (*Frame, error) {
	if c.closed.Load() {
		return nil, errors.New("client is closed")
	}

	respCh := make(chan *Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == FrameError {
			return nil, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.timeout):
		return nil, errors.New("request timeout")
	}
}

func (c *Client) writeFrame(frame *Frame) error {
	raw, err := c.wire.Encode(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, c.op, raw)
}

// readLoop reads frames and hands each to the request waiting on its
// ID. Unsolicited frames are dropped.
func (c *Client) readLoop() {
	for {
		data, _, err := wsutil.ReadServerData(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("relay client read error", slog.String("error", err.Error()))
			}
			return
		}

		var frame Frame
		if err := c.wire.Decode(data, &frame); err != nil {
			c.logger.Warn("relay client: invalid frame", slog.String("error", err.Error()))
			continue
		}

		if val, ok := c.pending.Load(frame.ID); ok {
			ch := val.(chan *Frame) //nolint:errcheck // pending always stores chan *Frame
			select {
			case ch <- &frame:
			default:
			}
		}
	}
}
