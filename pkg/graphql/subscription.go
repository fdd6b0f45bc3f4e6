package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/getmockd/mockgql/pkg/logging"
	"github.com/getmockd/mockgql/pkg/metrics"
	"github.com/vektah/gqlparser/v2/ast"
)

// DefaultSubscriptionInterval is the pause between two mocked events.
const DefaultSubscriptionInterval = time.Second

// WebSocket subprotocols.
const (
	ProtocolTransportWS = "graphql-transport-ws"
	ProtocolGraphQLWS   = "graphql-ws"
)

// WebSocket message types for graphql-transport-ws (modern) and
// subscriptions-transport-ws, negotiated as graphql-ws (legacy).
const (
	msgTypeConnectionInit = "connection_init"
	msgTypeConnectionAck  = "connection_ack"

	// graphql-transport-ws
	msgTypePing      = "ping"
	msgTypePong      = "pong"
	msgTypeSubscribe = "subscribe"
	msgTypeNext      = "next"
	msgTypeError     = "error"
	msgTypeComplete  = "complete"

	// graphql-ws (legacy)
	msgTypeConnectionKeepAlive = "ka"
	msgTypeStart               = "start"
	msgTypeData                = "data"
	msgTypeStop                = "stop"
	msgTypeConnectionTerminate = "connection_terminate"
)

// graphql-transport-ws close codes.
const (
	closeUnauthorized      websocket.StatusCode = 4401
	closeTooManyInitialise websocket.StatusCode = 4429
)

// wsMessage represents a WebSocket message for GraphQL subscriptions.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscriptionOptions configures how mocked subscription events are produced.
type SubscriptionOptions struct {
	// Interval is the pause before each event. Defaults to DefaultSubscriptionInterval.
	Interval time.Duration
	// Events is the number of events sent before the server completes the
	// subscription. Zero streams until the client stops it.
	Events int
	// VerifyOrigin enforces same-origin WebSocket upgrades. Off by default
	// so browser tooling on any origin can connect.
	VerifyOrigin bool
}

// SubscriptionHandler serves GraphQL subscriptions over WebSocket. Every
// event is a fresh execution of the subscription's selection set.
type SubscriptionHandler struct {
	executor *Executor
	opts     SubscriptionOptions
	accept   websocket.AcceptOptions
	log      *slog.Logger

	conns  map[string]*subscriptionConn
	mu     sync.RWMutex
	connID atomic.Uint64
}

// subscriptionConn represents an active WebSocket connection.
type subscriptionConn struct {
	id       string
	conn     *websocket.Conn
	subs     map[string]context.CancelFunc
	protocol string
	mu       sync.Mutex

	// initialized is only touched by the read loop.
	initialized bool
}

// NewSubscriptionHandler creates a subscription handler backed by executor.
func NewSubscriptionHandler(executor *Executor, opts SubscriptionOptions, log *slog.Logger) *SubscriptionHandler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSubscriptionInterval
	}
	if log == nil {
		log = logging.Nop()
	}
	return &SubscriptionHandler{
		executor: executor,
		opts:     opts,
		accept: websocket.AcceptOptions{
			Subprotocols:       []string{ProtocolTransportWS, ProtocolGraphQLWS},
			InsecureSkipVerify: !opts.VerifyOrigin,
		},
		log:   log,
		conns: make(map[string]*subscriptionConn),
	}
}

// ServeHTTP upgrades HTTP to WebSocket and handles subscriptions.
func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		// Accept has already written the HTTP error response.
		h.log.Debug("websocket upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return
	}

	h.handleConnection(r.Context(), conn)
}

func (h *SubscriptionHandler) handleConnection(ctx context.Context, conn *websocket.Conn) {
	id := fmt.Sprintf("conn-%d", h.connID.Add(1))

	protocol := conn.Subprotocol()
	if protocol == "" {
		protocol = ProtocolTransportWS
	}

	sc := &subscriptionConn{
		id:       id,
		conn:     conn,
		subs:     make(map[string]context.CancelFunc),
		protocol: protocol,
	}

	h.mu.Lock()
	h.conns[id] = sc
	h.mu.Unlock()
	h.log.Debug("subscription connection opened", "conn", id, "protocol", protocol)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		h.cancelAll(sc)

		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
		h.log.Debug("subscription connection closed", "conn", id)
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(sc, "", []GraphQLError{{Message: "invalid message format"}})
			continue
		}

		h.handleMessage(ctx, sc, &msg)
	}
}

func (h *SubscriptionHandler) handleMessage(ctx context.Context, sc *subscriptionConn, msg *wsMessage) {
	switch msg.Type {
	case msgTypeConnectionInit:
		if sc.initialized && sc.protocol == ProtocolTransportWS {
			_ = sc.conn.Close(closeTooManyInitialise, "Too many initialisation requests")
			return
		}
		sc.initialized = true
		_ = h.send(sc, &wsMessage{Type: msgTypeConnectionAck})
		if sc.protocol == ProtocolGraphQLWS {
			_ = h.send(sc, &wsMessage{Type: msgTypeConnectionKeepAlive})
		}

	case msgTypePing:
		_ = h.send(sc, &wsMessage{Type: msgTypePong, Payload: msg.Payload})

	case msgTypeSubscribe, msgTypeStart:
		if !sc.initialized && sc.protocol == ProtocolTransportWS {
			_ = sc.conn.Close(closeUnauthorized, "Unauthorized")
			return
		}
		h.handleSubscribe(ctx, sc, msg.ID, msg.Payload)

	case msgTypeComplete, msgTypeStop:
		h.stop(sc, msg.ID)

	case msgTypeConnectionTerminate:
		h.cancelAll(sc)
		_ = sc.conn.Close(websocket.StatusNormalClosure, "connection terminated")
	}
}

func (h *SubscriptionHandler) handleSubscribe(ctx context.Context, sc *subscriptionConn, id string, payload json.RawMessage) {
	if id == "" {
		h.sendError(sc, "", []GraphQLError{{Message: "subscription id is required"}})
		return
	}

	var req GraphQLRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(sc, id, []GraphQLError{{Message: "invalid subscription payload"}})
		return
	}

	op, errs := h.executor.Prepare(&req)
	if errs != nil {
		h.sendError(sc, id, errs)
		return
	}

	// Queries and mutations sent over the socket get one result.
	if op.Type() != ast.Subscription {
		h.sendNext(sc, id, h.executor.Run(ctx, op))
		h.sendComplete(sc, id)
		return
	}

	subCtx, cancel := context.WithCancel(ctx)

	sc.mu.Lock()
	if _, exists := sc.subs[id]; exists {
		sc.mu.Unlock()
		cancel()
		h.sendError(sc, id, []GraphQLError{{Message: fmt.Sprintf("Subscriber for %s already exists", id)}})
		return
	}
	sc.subs[id] = cancel
	sc.mu.Unlock()

	go h.stream(subCtx, sc, id, op)
}

// stream sends one freshly mocked event per interval until the client stops
// the subscription, the connection closes, or the event limit is reached.
func (h *SubscriptionHandler) stream(ctx context.Context, sc *subscriptionConn, id string, op *Operation) {
	if gauge := activeSubscriptions(sc.protocol); gauge != nil {
		gauge.Inc()
		defer gauge.Dec()
	}

	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	for sent := 0; h.opts.Events == 0 || sent < h.opts.Events; sent++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.sendNext(sc, id, h.executor.Run(ctx, op))
		if metrics.SubscriptionEventsTotal != nil {
			if vec, err := metrics.SubscriptionEventsTotal.WithLabels(sc.protocol); err == nil {
				_ = vec.Inc()
			}
		}
	}

	// The server ended the stream, so it owes the client a complete.
	if h.release(sc, id) {
		h.sendComplete(sc, id)
	}
}

func activeSubscriptions(protocol string) *metrics.GaugeVec {
	if metrics.ActiveSubscriptions == nil {
		return nil
	}
	vec, err := metrics.ActiveSubscriptions.WithLabels(protocol)
	if err != nil {
		return nil
	}
	return vec
}

// release removes a subscription, reporting whether it was still registered.
func (h *SubscriptionHandler) release(sc *subscriptionConn, id string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	cancel, ok := sc.subs[id]
	if ok {
		delete(sc.subs, id)
		cancel()
	}
	return ok
}

// stop handles a client-initiated complete/stop.
func (h *SubscriptionHandler) stop(sc *subscriptionConn, id string) {
	h.release(sc, id)
}

func (h *SubscriptionHandler) cancelAll(sc *subscriptionConn) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, cancel := range sc.subs {
		cancel()
	}
	sc.subs = make(map[string]context.CancelFunc)
}

// send writes a message. coder/websocket allows concurrent writers.
func (h *SubscriptionHandler) send(sc *subscriptionConn, msg *wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sc.conn.Write(ctx, websocket.MessageText, data)
}

// sendNext sends an execution result as "next" (modern) or "data" (legacy).
func (h *SubscriptionHandler) sendNext(sc *subscriptionConn, id string, resp *GraphQLResponse) {
	msgType := msgTypeNext
	if sc.protocol == ProtocolGraphQLWS {
		msgType = msgTypeData
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		h.log.Error("failed to encode subscription event", "conn", sc.id, "id", id, "error", err)
		return
	}
	_ = h.send(sc, &wsMessage{ID: id, Type: msgType, Payload: payload})
}

// sendError sends an "error" message. graphql-transport-ws carries the
// error list; the legacy protocol carries a single error object.
func (h *SubscriptionHandler) sendError(sc *subscriptionConn, id string, errs []GraphQLError) {
	var payload []byte
	if sc.protocol == ProtocolGraphQLWS && len(errs) > 0 {
		payload, _ = json.Marshal(errs[0])
	} else {
		payload, _ = json.Marshal(errs)
	}
	_ = h.send(sc, &wsMessage{ID: id, Type: msgTypeError, Payload: payload})
}

func (h *SubscriptionHandler) sendComplete(sc *subscriptionConn, id string) {
	_ = h.send(sc, &wsMessage{ID: id, Type: msgTypeComplete})
}

// ConnectionCount returns the number of active connections.
func (h *SubscriptionHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SubscriptionCount returns the number of active subscriptions across all connections.
func (h *SubscriptionHandler) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, sc := range h.conns {
		sc.mu.Lock()
		count += len(sc.subs)
		sc.mu.Unlock()
	}
	return count
}

// CloseAll closes all active connections, e.g. on server shutdown.
func (h *SubscriptionHandler) CloseAll(reason string) {
	h.mu.RLock()
	conns := make([]*subscriptionConn, 0, len(h.conns))
	for _, sc := range h.conns {
		conns = append(conns, sc)
	}
	h.mu.RUnlock()

	for _, sc := range conns {
		h.cancelAll(sc)
		_ = sc.conn.Close(websocket.StatusGoingAway, reason)
	}
}
