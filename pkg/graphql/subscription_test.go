package graphql

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func newTestSubscriptionServer(t *testing.T, mocks MockMap, opts SubscriptionOptions) (*SubscriptionHandler, *httptest.Server) {
	t.Helper()
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Millisecond
	}
	e := newTestExecutor(t, mocks)
	sh := NewSubscriptionHandler(e, opts, nil)
	ts := httptest.NewServer(NewHandler(e, WithSubscriptions(sh)))
	t.Cleanup(ts.Close)
	return sh, ts
}

func connectWS(t *testing.T, url string, subprotocol string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(url, "http")

	var opts *websocket.DialOptions
	if subprotocol != "" {
		opts = &websocket.DialOptions{
			Subprotocols: []string{subprotocol},
		}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		t.Fatalf("websocket.Dial() error = %v", err)
	}

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "test cleanup")
	})

	return conn
}

func sendWSMessage(t *testing.T, conn *websocket.Conn, msg *wsMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("conn.Write() error = %v", err)
	}
}

func readWSMessage(t *testing.T, conn *websocket.Conn) *wsMessage {
	t.Helper()
	msg, err := readWSMessageWithTimeout(t, conn, 5*time.Second)
	if err != nil {
		t.Fatalf("conn.Read() error = %v", err)
	}
	return msg
}

func readWSMessageWithTimeout(t *testing.T, conn *websocket.Conn, timeout time.Duration) (*wsMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	msgType, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	if msgType != websocket.MessageText {
		t.Fatalf("expected text message, got %v", msgType)
	}

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	return &msg, nil
}

func subscribePayload(t *testing.T, query string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(GraphQLRequest{Query: query})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return b
}

func initConnection(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendWSMessage(t, conn, &wsMessage{Type: msgTypeConnectionInit})
	if ack := readWSMessage(t, conn); ack.Type != msgTypeConnectionAck {
		t.Fatalf("expected connection_ack, got %s", ack.Type)
	}
}

func TestSubscriptionHandler_ConnectionInit(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)

	initConnection(t, conn)
}

func TestSubscriptionHandler_LegacyProtocol_ConnectionInit(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolGraphQLWS)

	initConnection(t, conn)
	if ka := readWSMessage(t, conn); ka.Type != msgTypeConnectionKeepAlive {
		t.Errorf("expected ka, got %s", ka.Type)
	}
}

func TestSubscriptionHandler_InitRequired(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, conn *websocket.Conn)
		send   *wsMessage
		status websocket.StatusCode
	}{
		{
			name:   "subscribe before connection_init",
			setup:  func(*testing.T, *websocket.Conn) {},
			send:   &wsMessage{ID: "1", Type: msgTypeSubscribe},
			status: closeUnauthorized,
		},
		{
			name:   "second connection_init",
			setup:  initConnection,
			send:   &wsMessage{Type: msgTypeConnectionInit},
			status: closeTooManyInitialise,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
			conn := connectWS(t, ts.URL, ProtocolTransportWS)
			tt.setup(t, conn)

			if tt.send.Type == msgTypeSubscribe {
				tt.send.Payload = subscribePayload(t, `subscription { groupChanged { id } }`)
			}
			sendWSMessage(t, conn, tt.send)

			_, err := readWSMessageWithTimeout(t, conn, 5*time.Second)
			if got := websocket.CloseStatus(err); got != tt.status {
				t.Fatalf("close status = %d (err %v), want %d", got, err, tt.status)
			}
		})
	}
}

func TestSubscriptionHandler_PingPong(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)

	sendWSMessage(t, conn, &wsMessage{Type: msgTypePing, Payload: json.RawMessage(`{"n":1}`)})
	pong := readWSMessage(t, conn)
	if pong.Type != msgTypePong {
		t.Fatalf("expected pong, got %s", pong.Type)
	}
	if string(pong.Payload) != `{"n":1}` {
		t.Errorf("pong payload = %s", pong.Payload)
	}
}

func TestSubscriptionHandler_StreamsMockedEvents(t *testing.T) {
	sh, ts := newTestSubscriptionServer(t, MockMap{
		"Group.isSystem": Static(true),
		"String":         Static("Example Data"),
	}, SubscriptionOptions{Events: 3})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	sendWSMessage(t, conn, &wsMessage{
		ID:      "1",
		Type:    msgTypeSubscribe,
		Payload: subscribePayload(t, `subscription { groupChanged { name isSystem } }`),
	})

	for i := 0; i < 3; i++ {
		msg := readWSMessage(t, conn)
		if msg.Type != msgTypeNext || msg.ID != "1" {
			t.Fatalf("event %d: got %s/%s, want next/1", i, msg.Type, msg.ID)
		}
		if got := string(msg.Payload); got != `{"data":{"groupChanged":{"isSystem":true,"name":"Example Data"}}}` {
			t.Errorf("event %d payload = %s", i, got)
		}
	}

	if msg := readWSMessage(t, conn); msg.Type != msgTypeComplete || msg.ID != "1" {
		t.Errorf("got %s/%s, want complete/1", msg.Type, msg.ID)
	}

	deadline := time.Now().Add(time.Second)
	for sh.SubscriptionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := sh.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d after completion", n)
	}
}

func TestSubscriptionHandler_LegacyProtocol_Subscription(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{Events: 1})
	conn := connectWS(t, ts.URL, ProtocolGraphQLWS)
	initConnection(t, conn)
	_ = readWSMessage(t, conn) // ka

	sendWSMessage(t, conn, &wsMessage{
		ID:      "a",
		Type:    msgTypeStart,
		Payload: subscribePayload(t, `subscription { groupChanged { __typename } }`),
	})

	msg := readWSMessage(t, conn)
	if msg.Type != msgTypeData {
		t.Fatalf("expected data, got %s", msg.Type)
	}
	if got := string(msg.Payload); got != `{"data":{"groupChanged":{"__typename":"Group"}}}` {
		t.Errorf("payload = %s", got)
	}
	if msg := readWSMessage(t, conn); msg.Type != msgTypeComplete {
		t.Errorf("expected complete, got %s", msg.Type)
	}
}

func TestSubscriptionHandler_Unsubscribe(t *testing.T) {
	sh, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	sendWSMessage(t, conn, &wsMessage{
		ID:      "1",
		Type:    msgTypeSubscribe,
		Payload: subscribePayload(t, `subscription { groupChanged { id } }`),
	})
	if msg := readWSMessage(t, conn); msg.Type != msgTypeNext {
		t.Fatalf("expected next, got %s", msg.Type)
	}

	sendWSMessage(t, conn, &wsMessage{ID: "1", Type: msgTypeComplete})

	deadline := time.Now().Add(time.Second)
	for sh.SubscriptionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := sh.SubscriptionCount(); n != 0 {
		t.Fatalf("SubscriptionCount() = %d after complete", n)
	}

	// Drain anything in flight, then expect silence and no server complete.
	for {
		msg, err := readWSMessageWithTimeout(t, conn, 100*time.Millisecond)
		if err != nil {
			break
		}
		if msg.Type == msgTypeComplete {
			t.Fatal("server must not echo complete for a client-stopped subscription")
		}
	}
}

func TestSubscriptionHandler_ValidationError(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	sendWSMessage(t, conn, &wsMessage{
		ID:      "1",
		Type:    msgTypeSubscribe,
		Payload: subscribePayload(t, `subscription { nope }`),
	})

	msg := readWSMessage(t, conn)
	if msg.Type != msgTypeError || msg.ID != "1" {
		t.Fatalf("got %s/%s, want error/1", msg.Type, msg.ID)
	}
	var errs []GraphQLError
	if err := json.Unmarshal(msg.Payload, &errs); err != nil {
		t.Fatalf("error payload is not a list: %v", err)
	}
	if len(errs) == 0 || !strings.Contains(errs[0].Message, "nope") {
		t.Errorf("errors = %+v", errs)
	}
}

func TestSubscriptionHandler_QueryOverSocket(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, MockMap{"Boolean": Static(true)}, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	sendWSMessage(t, conn, &wsMessage{ID: "q", Type: msgTypeSubscribe, Payload: subscribePayload(t, `{ flag }`)})

	if msg := readWSMessage(t, conn); msg.Type != msgTypeNext || string(msg.Payload) != `{"data":{"flag":true}}` {
		t.Errorf("got %s %s", msg.Type, msg.Payload)
	}
	if msg := readWSMessage(t, conn); msg.Type != msgTypeComplete {
		t.Errorf("expected complete, got %s", msg.Type)
	}
}

func TestSubscriptionHandler_MissingSubscriptionID(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	sendWSMessage(t, conn, &wsMessage{Type: msgTypeSubscribe, Payload: subscribePayload(t, `subscription { groupChanged { id } }`)})

	if msg := readWSMessage(t, conn); msg.Type != msgTypeError {
		t.Errorf("expected error, got %s", msg.Type)
	}
}

func TestSubscriptionHandler_DuplicateSubscriptionID(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{Interval: time.Hour})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	payload := subscribePayload(t, `subscription { groupChanged { id } }`)
	sendWSMessage(t, conn, &wsMessage{ID: "dup", Type: msgTypeSubscribe, Payload: payload})
	sendWSMessage(t, conn, &wsMessage{ID: "dup", Type: msgTypeSubscribe, Payload: payload})

	msg := readWSMessage(t, conn)
	if msg.Type != msgTypeError || !strings.Contains(string(msg.Payload), "already exists") {
		t.Errorf("got %s %s, want duplicate error", msg.Type, msg.Payload)
	}
}

func TestSubscriptionHandler_ConnectionCountAndCloseAll(t *testing.T) {
	sh, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	if n := sh.ConnectionCount(); n != 1 {
		t.Errorf("ConnectionCount() = %d, want 1", n)
	}

	sh.CloseAll("shutting down")

	if _, err := readWSMessageWithTimeout(t, conn, 2*time.Second); err == nil {
		t.Fatal("expected the connection to be closed")
	} else if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want StatusGoingAway", status)
	}
}

func TestSubscriptionHandler_ConcurrentSubscriptions(t *testing.T) {
	_, ts := newTestSubscriptionServer(t, nil, SubscriptionOptions{Events: 2})
	conn := connectWS(t, ts.URL, ProtocolTransportWS)
	initConnection(t, conn)

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		sendWSMessage(t, conn, &wsMessage{ID: id, Type: msgTypeSubscribe, Payload: subscribePayload(t, `subscription { groupChanged { id } }`)})
	}

	next := map[string]int{}
	completed := map[string]bool{}
	for len(completed) < len(ids) {
		msg := readWSMessage(t, conn)
		switch msg.Type {
		case msgTypeNext:
			next[msg.ID]++
		case msgTypeComplete:
			completed[msg.ID] = true
		default:
			t.Fatalf("unexpected message %s", msg.Type)
		}
	}
	for _, id := range ids {
		if next[id] != 2 {
			t.Errorf("subscription %s got %d events, want 2", id, next[id])
		}
	}
}
