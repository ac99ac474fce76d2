package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

type testBridge struct {
	server  *Server
	http    *httptest.Server
	reader  *nfc.Reader
	manager *nfc.MockManager
}

func newTestBridge(t *testing.T, config Config, tags ...nfc.Tag) *testBridge {
	t.Helper()

	manager := nfc.NewMockManager()
	manager.MockDevice.SetTags(tags)
	reader, err := nfc.NewReader(manager, nfc.ReaderConfig{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	config.Reader = reader
	s, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		ts.Close()
		reader.Close()
	})
	return &testBridge{server: s, http: ts, reader: reader, manager: manager}
}

// waitForTag keeps the field empty so sessions stay open until cancelled.
func (b *testBridge) waitForTag() {
	b.manager.MockDevice.TagsAfterPolls = 1 << 30
}

func (b *testBridge) wsURL() string {
	return "ws" + strings.TrimPrefix(b.http.URL, "http") + PathWebSocket
}

func (b *testBridge) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := b.wsURL()
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, req protocol.WebSocketRequest) {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

// expect reads messages until one of the given type arrives.
func expect(t *testing.T, conn *websocket.Conn, msgType string) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func expectSessionState(t *testing.T, conn *websocket.Conn, state string) protocol.SessionStatusPayload {
	t.Helper()
	for {
		msg := expect(t, conn, protocol.WSTypeSessionStatus)
		var status protocol.SessionStatusPayload
		if err := json.Unmarshal(msg.Payload, &status); err != nil {
			t.Fatalf("bad status payload: %v", err)
		}
		if status.State == state {
			return status
		}
	}
}

func TestWebSocket_ReadID(t *testing.T) {
	b := newTestBridge(t, Config{}, nfc.NewMockFeliCaTag("0114b3a1c2d3e4f5"))
	conn := b.dial(t, "")

	send(t, conn, protocol.WebSocketRequest{ID: "1", Type: protocol.WSTypeReadID})

	msg := expect(t, conn, protocol.WSTypeReadIDResponse)
	if msg.ID != "1" || !msg.Success || msg.Error != "" {
		t.Fatalf("response = %+v", msg)
	}
	var result protocol.ReadResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		t.Fatal(err)
	}
	if result.ID != "0114b3a1c2d3e4f5" || result.Type != protocol.TagTypeF || result.Cancelled {
		t.Errorf("result = %+v", result)
	}
}

func TestWebSocket_ReadBlockData(t *testing.T) {
	tag := nfc.NewMockFeliCaTag("0114b3a1c2d3e4f5")
	tag.Blocks = [][]byte{make([]byte, 16), {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}
	b := newTestBridge(t, Config{}, tag)
	conn := b.dial(t, "")

	send(t, conn, protocol.WebSocketRequest{ID: "7", Type: protocol.WSTypeReadBlockData, Payload: map[string]any{
		"service_code": []int{0x09, 0x0f},
		"start":        1,
		"count":        1,
	}})

	msg := expect(t, conn, protocol.WSTypeReadBlockDataResponse)
	if !msg.Success {
		t.Fatalf("response = %+v", msg)
	}
	var result protocol.ReadResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Data) != 1 || result.Data[0][0] != 1 {
		t.Errorf("data = %v", result.Data)
	}
}

func TestWebSocket_ReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		tag     nfc.Tag
		reqType string
		payload map[string]any
		resp    string
		want    protocol.ErrorCode
	}{
		{
			name:    "count over limit",
			tag:     nfc.NewMockFeliCaTag("0114b3a1c2d3e4f5"),
			reqType: protocol.WSTypeReadBlockData,
			payload: map[string]any{"service_code": []int{9, 15}, "start": 0, "count": 13},
			resp:    protocol.WSTypeReadBlockDataResponse,
			want:    protocol.ErrInvalidArguments,
		},
		{
			name:    "undecodable options",
			tag:     nfc.NewMockFeliCaTag("0114b3a1c2d3e4f5"),
			reqType: protocol.WSTypeReadBlockData,
			payload: map[string]any{"start": "first"},
			resp:    protocol.WSTypeReadBlockDataResponse,
			want:    protocol.ErrInvalidArguments,
		},
		{
			name:    "block read on mifare",
			tag:     nfc.NewMockMiFareTag("04a1b2c3d4e5f6"),
			reqType: protocol.WSTypeReadBlockData,
			payload: map[string]any{"service_code": []int{9, 15}, "start": 0, "count": 1},
			resp:    protocol.WSTypeReadBlockDataResponse,
			want:    protocol.ErrFeatureNotSupported,
		},
		{
			name:    "unsupported tag",
			tag:     nfc.NewMockUnsupportedTag("08112233"),
			reqType: protocol.WSTypeReadID,
			resp:    protocol.WSTypeReadIDResponse,
			want:    protocol.ErrTagNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBridge(t, Config{}, tt.tag)
			conn := b.dial(t, "")

			send(t, conn, protocol.WebSocketRequest{ID: "x", Type: tt.reqType, Payload: tt.payload})
			msg := expect(t, conn, tt.resp)
			if msg.Success || msg.ID != "x" {
				t.Fatalf("response = %+v", msg)
			}
			if msg.Error != string(tt.want) {
				t.Errorf("error = %q, want %q", msg.Error, tt.want)
			}
		})
	}
}

func TestWebSocket_CancelAndBusy(t *testing.T) {
	b := newTestBridge(t, Config{})
	b.waitForTag()
	conn := b.dial(t, "")

	send(t, conn, protocol.WebSocketRequest{ID: "1", Type: protocol.WSTypeReadID, Payload: map[string]any{"message": "Hold your card"}})
	status := expectSessionState(t, conn, protocol.SessionStateActive)
	if status.Message != "Hold your card" {
		t.Errorf("active message = %q", status.Message)
	}

	send(t, conn, protocol.WebSocketRequest{ID: "2", Type: protocol.WSTypeReadID})
	busy := expect(t, conn, protocol.WSTypeError)
	var payload protocol.ErrorPayload
	json.Unmarshal(busy.Payload, &payload)
	if busy.ID != "2" || payload.Code != protocol.WSErrSessionBusy {
		t.Fatalf("busy response = %+v", busy)
	}

	send(t, conn, protocol.WebSocketRequest{ID: "3", Type: protocol.WSTypeCancel})

	var gotCancel, gotRead bool
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !gotCancel || !gotRead {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		switch msg.Type {
		case protocol.WSTypeCancelResponse:
			gotCancel = true
			if msg.ID != "3" || !strings.Contains(string(msg.Payload), `"cancelled":true`) {
				t.Errorf("cancel response = %+v", msg)
			}
		case protocol.WSTypeReadIDResponse:
			gotRead = true
			var result protocol.ReadResult
			json.Unmarshal(msg.Payload, &result)
			if !msg.Success || !result.Cancelled || result.ID != "" || result.Type != "" {
				t.Errorf("cancelled read = %+v payload %s", msg, msg.Payload)
			}
		}
	}
}

func TestWebSocket_CancelWithoutSession(t *testing.T) {
	b := newTestBridge(t, Config{})
	conn := b.dial(t, "")

	send(t, conn, protocol.WebSocketRequest{ID: "c", Type: protocol.WSTypeCancel})
	msg := expect(t, conn, protocol.WSTypeCancelResponse)
	if !strings.Contains(string(msg.Payload), `"cancelled":false`) {
		t.Errorf("payload = %s", msg.Payload)
	}
}

func TestWebSocket_TransportErrors(t *testing.T) {
	b := newTestBridge(t, Config{})
	conn := b.dial(t, "")

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	msg := expect(t, conn, protocol.WSTypeError)
	if !strings.Contains(string(msg.Payload), protocol.WSErrParse) {
		t.Errorf("parse error payload = %s", msg.Payload)
	}

	send(t, conn, protocol.WebSocketRequest{ID: "9", Type: "writeNdef"})
	msg = expect(t, conn, protocol.WSTypeError)
	if msg.ID != "9" || !strings.Contains(string(msg.Payload), protocol.WSErrUnknownType) {
		t.Errorf("unknown type response = %+v", msg)
	}
}

func TestWebSocket_DisconnectCancelsRead(t *testing.T) {
	b := newTestBridge(t, Config{})
	b.waitForTag()
	conn := b.dial(t, "")

	send(t, conn, protocol.WebSocketRequest{ID: "1", Type: protocol.WSTypeReadID})
	expectSessionState(t, conn, protocol.SessionStateActive)
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for b.reader.SessionActive() || b.server.sessions.Active() {
		if time.Now().After(deadline) {
			t.Fatal("reader session or bridge claim still held after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The bridge can be claimed again.
	b.dial(t, "")
}

func TestWebSocket_Claim(t *testing.T) {
	b := newTestBridge(t, Config{APISecret: "s3cret"})

	_, resp, err := websocket.DefaultDialer.Dial(b.wsURL(), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without secret: err=%v resp=%v", err, resp)
	}

	b.dial(t, "secret=s3cret")

	_, resp, err = websocket.DefaultDialer.Dial(b.wsURL()+"?secret=s3cret", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second client: err=%v resp=%v", err, resp)
	}
}

func TestNew_RequiresReader(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without a reader")
	}
}

func TestMDNSTXTRecords(t *testing.T) {
	b := newTestBridge(t, Config{})
	records := strings.Join(b.server.mdnsTXTRecords(), ";")
	for _, want := range []string{"protocol=websocket", "path=/ws", "scheme=ws"} {
		if !strings.Contains(records, want) {
			t.Errorf("TXT records %q missing %q", records, want)
		}
	}
}

func TestSessionStatusPayload(t *testing.T) {
	ev := sessionStatusPayload(nfc.SessionStatus{
		SessionID: "abc",
		State:     nfc.SessionInvalidated,
		Reason:    nfc.ReasonSessionTimeout,
	})
	if ev.Type != protocol.WSTypeSessionStatus || ev.ID != "abc" {
		t.Errorf("event = %+v", ev)
	}
	p := ev.Payload.(protocol.SessionStatusPayload)
	if p.State != protocol.SessionStateInvalidated || p.Reason != string(nfc.ReasonSessionTimeout) {
		t.Errorf("payload = %+v", p)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	b := newTestBridge(t, Config{}, nfc.NewMockMiFareTag("04a1b2c3"))

	resp, err := http.Post(b.http.URL+PathAPIPrefix+"/readId", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(b.http.URL + PathMetrics)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.Contains(body, `nfc_bridge_read_results_total{op="readId",type="typeA"} 1`) {
		t.Errorf("metrics missing read result:\n%s", body)
	}
}
