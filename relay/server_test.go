package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/relay"
)

const testToken = "relay-secret"

func startServer(t *testing.T, trigger relay.TriggerFunc) (*relay.Server, string) {
	t.Helper()
	if trigger == nil {
		trigger = func(_ context.Context, _ string, _ map[string]string) (string, error) {
			return "run_01h2xcejqtf2nbrexx3vqjhp41", nil
		}
	}
	srv := relay.NewServer(testToken, trigger)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *wsConn {
	t.Helper()
	conn, _, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

type wsConn struct {
	t    *testing.T
	conn interface {
		Read(p []byte) (int, error)
		Write(p []byte) (int, error)
		Close() error
		SetReadDeadline(time.Time) error
	}
}

func (c *wsConn) sendJSON(f *relay.Frame) {
	c.t.Helper()
	raw, err := json.Marshal(f)
	if err != nil {
		c.t.Fatalf("marshal frame: %v", err)
	}
	if err := wsutil.WriteClientText(c.conn, raw); err != nil {
		c.t.Fatalf("write frame: %v", err)
	}
}

func (c *wsConn) recvJSON() *relay.Frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := wsutil.ReadServerText(c.conn)
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	var f relay.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.t.Fatalf("unmarshal frame: %v", err)
	}
	return &f
}

func (c *wsConn) authenticate(format string) {
	c.t.Helper()
	c.sendJSON(&relay.Frame{Type: relay.FrameHello, ID: "h1", Token: testToken, Format: format})
	resp := c.recvJSON()
	if resp.Type != relay.FrameAuthOK {
		c.t.Fatalf("expected auth-ok, got %s (%s)", resp.Type, resp.Error)
	}
}

func TestAuthAndTrigger(t *testing.T) {
	var gotPlaybook string
	var gotParams map[string]string
	_, url := startServer(t, func(_ context.Context, pb string, params map[string]string) (string, error) {
		gotPlaybook, gotParams = pb, params
		return "run_01h2xcejqtf2nbrexx3vqjhp41", nil
	})

	c := dial(t, url)
	c.authenticate("")

	c.sendJSON(&relay.Frame{
		Type:     relay.FrameTrigger,
		ID:       "t1",
		Playbook: "probe-disk",
		Params:   map[string]string{"target": "node-1"},
	})
	ack := c.recvJSON()
	if ack.Type != relay.FrameAck {
		t.Fatalf("expected ack, got %s (%s)", ack.Type, ack.Error)
	}
	if ack.ID != "t1" {
		t.Errorf("ack.ID = %q, want t1", ack.ID)
	}
	if ack.RunID == "" {
		t.Error("ack carries no run id")
	}
	if gotPlaybook != "probe-disk" || gotParams["target"] != "node-1" {
		t.Errorf("trigger passed %q %v", gotPlaybook, gotParams)
	}
}

func TestAuthBadToken(t *testing.T) {
	_, url := startServer(t, nil)
	c := dial(t, url)

	c.sendJSON(&relay.Frame{Type: relay.FrameHello, ID: "h1", Token: "wrong"})
	resp := c.recvJSON()
	if resp.Type != relay.FrameError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}

	// The server closes unauthenticated connections after one frame.
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := wsutil.ReadServerText(c.conn); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestFirstFrameMustBeHello(t *testing.T) {
	_, url := startServer(t, nil)
	c := dial(t, url)

	c.sendJSON(&relay.Frame{Type: relay.FrameTrigger, ID: "t1", Playbook: "probe-disk"})
	resp := c.recvJSON()
	if resp.Type != relay.FrameError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}
}

func TestPingPong(t *testing.T) {
	_, url := startServer(t, nil)
	c := dial(t, url)
	c.authenticate("")

	c.sendJSON(&relay.Frame{Type: relay.FramePing, ID: "p1"})
	pong := c.recvJSON()
	if pong.Type != relay.FramePong || pong.ID != "p1" {
		t.Fatalf("expected pong p1, got %s %s", pong.Type, pong.ID)
	}
}

func TestTriggerError(t *testing.T) {
	_, url := startServer(t, func(_ context.Context, _ string, _ map[string]string) (string, error) {
		return "", errors.New("playbook not registered")
	})
	c := dial(t, url)
	c.authenticate("")

	c.sendJSON(&relay.Frame{Type: relay.FrameTrigger, ID: "t1", Playbook: "missing"})
	resp := c.recvJSON()
	if resp.Type != relay.FrameError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}
	if resp.ID != "t1" {
		t.Errorf("error.ID = %q, want t1", resp.ID)
	}
	if !strings.Contains(resp.Error, "not registered") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestTriggerRequiresPlaybook(t *testing.T) {
	_, url := startServer(t, nil)
	c := dial(t, url)
	c.authenticate("")

	c.sendJSON(&relay.Frame{Type: relay.FrameTrigger, ID: "t1"})
	resp := c.recvJSON()
	if resp.Type != relay.FrameError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}
}

func TestMsgpackNegotiation(t *testing.T) {
	_, url := startServer(t, nil)
	c := dial(t, url)

	c.sendJSON(&relay.Frame{Type: relay.FrameHello, ID: "h1", Token: testToken, Format: codec.NameMsgpack})
	resp := c.recvJSON() // auth-ok stays JSON
	if resp.Type != relay.FrameAuthOK {
		t.Fatalf("expected auth-ok, got %s", resp.Type)
	}
	if resp.Format != codec.NameMsgpack {
		t.Fatalf("negotiated format = %q, want msgpack", resp.Format)
	}

	// Subsequent frames use msgpack in both directions.
	mp := &codec.Msgpack{}
	raw, err := mp.Encode(&relay.Frame{Type: relay.FramePing, ID: "p1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := wsutil.WriteClientBinary(c.conn, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := wsutil.ReadServerBinary(c.conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var pong relay.Frame
	if err := mp.Decode(data, &pong); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pong.Type != relay.FramePong || pong.ID != "p1" {
		t.Fatalf("expected pong p1, got %s %s", pong.Type, pong.ID)
	}
}
