package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/id"
)

// TriggerFunc starts a playbook run and returns its ID. The server
// wires this to the runner pool.
type TriggerFunc func(ctx context.Context, playbook string, params map[string]string) (runID string, err error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDefaultCodec sets the wire format used when the hello frame does
// not request one. Default: JSON.
func WithDefaultCodec(c codec.Codec) Option {
	return func(s *Server) { s.defaultCodec = c }
}

// Server accepts relay connections over WebSocket. Each connection
// gets one reader goroutine; writes share a per-connection mutex. The
// first frame must be a hello carrying the bearer token; connections
// that fail authentication are closed after that single frame.
type Server struct {
	token        []byte
	trigger      TriggerFunc
	defaultCodec codec.Codec
	logger       *slog.Logger

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewServer creates a relay server. The token must be non-empty; the
// trigger func is called for every accepted trigger frame.
func NewServer(token string, trigger TriggerFunc, opts ...Option) *Server {
	s := &Server{
		token:        []byte(token),
		trigger:      trigger,
		defaultCodec: &codec.JSON{},
		logger:       slog.Default(),
		conns:        make(map[string]net.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnCount returns the number of authenticated connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close terminates all active connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = make(map[string]net.Conn)
	return nil
}

// ServeHTTP upgrades the request and serves the connection until it
// closes. It implements http.Handler so the server mounts directly on
// a mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("relay upgrade failed", slog.String("error", err.Error()))
		return
	}
	go s.serveConn(conn)
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close() //nolint:errcheck

	connID := id.NewWorkerID().String()

	// The hello frame is always JSON, before format negotiation.
	data, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return
	}
	var hello Frame
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != FrameHello {
		s.writeJSON(conn, NewErrorFrame(hello.ID, "first frame must be hello"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(hello.Token), s.token) != 1 {
		s.logger.Warn("relay auth failed", slog.String("conn_id", connID))
		s.writeJSON(conn, NewErrorFrame(hello.ID, "unauthorized"))
		return
	}

	wire := s.defaultCodec
	if hello.Format != "" {
		wire = codec.Get(hello.Format)
	}

	s.mu.Lock()
	s.conns[connID] = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, connID)
		s.mu.Unlock()
		s.logger.Info("relay disconnected", slog.String("conn_id", connID))
	}()

	op := ws.OpBinary
	if wire.Name() == codec.NameJSON {
		op = ws.OpText
	}

	var writeMu sync.Mutex
	write := func(f *Frame) {
		raw, encErr := wire.Encode(f)
		if encErr != nil {
			s.logger.Error("relay encode error", slog.String("error", encErr.Error()))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if wErr := wsutil.WriteServerMessage(conn, op, raw); wErr != nil {
			s.logger.Warn("relay write error", slog.String("error", wErr.Error()))
		}
	}

	// Auth-ok is still JSON so the client can confirm the format
	// before switching codecs.
	s.writeJSON(conn, &Frame{
		Type:      FrameAuthOK,
		ID:        hello.ID,
		Format:    wire.Name(),
		Timestamp: time.Now().UTC(),
	})

	s.logger.Info("relay authenticated",
		slog.String("conn_id", connID),
		slog.String("format", wire.Name()),
	)

	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}

		var frame Frame
		if err := wire.Decode(data, &frame); err != nil {
			write(NewErrorFrame("", "invalid frame: "+err.Error()))
			continue
		}

		switch frame.Type {
		case FramePing:
			write(&Frame{Type: FramePong, ID: frame.ID, Timestamp: time.Now().UTC()})

		case FrameTrigger:
			s.handleTrigger(conn, &frame, write)

		default:
			write(NewErrorFrame(frame.ID, "unsupported frame type: "+string(frame.Type)))
		}
	}
}

func (s *Server) handleTrigger(_ net.Conn, frame *Frame, write func(*Frame)) {
	if frame.Playbook == "" {
		write(NewErrorFrame(frame.ID, "trigger requires a playbook"))
		return
	}

	runID, err := s.trigger(context.Background(), frame.Playbook, frame.Params)
	if err != nil {
		s.logger.Warn("relay trigger failed",
			slog.String("playbook", frame.Playbook),
			slog.String("error", err.Error()),
		)
		write(NewErrorFrame(frame.ID, err.Error()))
		return
	}

	s.logger.Info("relay trigger accepted",
		slog.String("playbook", frame.Playbook),
		slog.String("run_id", runID),
	)
	write(NewAckFrame(frame.ID, runID))
}

func (s *Server) writeJSON(conn net.Conn, f *Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := wsutil.WriteServerText(conn, raw); err != nil {
		s.logger.Warn("relay write error", slog.String("error", err.Error()))
	}
}
