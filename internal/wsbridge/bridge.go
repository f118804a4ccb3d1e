// Package wsbridge fans every bus topic out to WebSocket clients, modeled on
// tarsy's pkg/events.ConnectionManager but simplified: there is one fixed
// set of topics every client receives, no per-channel subscribe/unsubscribe
// protocol, and no database-backed catchup (spec's persistence Non-goal
// means there is nothing to replay a late subscriber from).
package wsbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/bookinterview/coordinator/internal/bus"
)

// DefaultWriteTimeout bounds how long one client's send may block the
// broadcaster before being abandoned.
const DefaultWriteTimeout = 5 * time.Second

// envelope is the wire shape sent to every client: the originating bus
// topic plus its payload, so a browser client can dispatch on Type without
// the coordinator needing a bespoke message schema per topic.
type envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// connection is a single WebSocket client. Mirrors tarsy's Connection: ID,
// underlying conn, and a context cancelled on disconnect.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Bridge broadcasts every message published on the watched bus topics to
// every currently connected WebSocket client.
type Bridge struct {
	b            *bus.Bus
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*connection
}

// New creates a Bridge and subscribes it to the topics a UI needs to render
// live interview state: lifecycle events, ticks, responses, questions,
// topic completion, agent observations, and coordinator directives.
func New(b *bus.Bus, writeTimeout time.Duration) *Bridge {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	br := &Bridge{b: b, writeTimeout: writeTimeout, connections: make(map[string]*connection)}
	br.subscribe()
	return br
}

func (br *Bridge) subscribe() {
	watched := []bus.Topic{
		bus.TopicEvents,
		bus.TopicTick,
		bus.TopicStudentResponse,
		bus.TopicQuestionAsked,
		bus.TopicTopicCompleted,
		bus.TopicAgentObservation,
		bus.TopicCoordinatorDirective,
	}
	for _, topic := range watched {
		topic := topic
		br.b.Subscribe(topic, func(msg bus.Message) {
			br.broadcast(envelope{Type: string(topic), Timestamp: msg.Timestamp, Payload: msg.Payload})
		})
	}
}

// HandleConnection manages one WebSocket client's lifecycle. Blocks until
// the connection closes; call from the WebSocket HTTP handler after upgrade.
func (br *Bridge) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}

	br.register(c)
	defer br.unregister(c)

	br.sendJSON(c, envelope{Type: "connection.established", Timestamp: time.Now(), Payload: map[string]string{"connection_id": c.id}})

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		// Clients have nothing to send in this simplified fan-out model;
		// any inbound frame is read and discarded purely to detect close.
	}
}

// ActiveConnections reports how many WebSocket clients are currently
// attached.
func (br *Bridge) ActiveConnections() int {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return len(br.connections)
}

func (br *Bridge) broadcast(e envelope) {
	br.mu.RLock()
	conns := make([]*connection, 0, len(br.connections))
	for _, c := range br.connections {
		conns = append(conns, c)
	}
	br.mu.RUnlock()

	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("wsbridge: failed to marshal broadcast envelope", "type", e.Type, "error", err)
		return
	}

	for _, c := range conns {
		if err := br.sendRaw(c, data); err != nil {
			slog.Warn("wsbridge: failed to send to client", "connection_id", c.id, "error", err)
		}
	}
}

func (br *Bridge) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("wsbridge: failed to marshal message", "connection_id", c.id, "error", err)
		return
	}
	if err := br.sendRaw(c, data); err != nil {
		slog.Warn("wsbridge: failed to send message", "connection_id", c.id, "error", err)
	}
}

func (br *Bridge) sendRaw(c *connection, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, br.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (br *Bridge) register(c *connection) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.connections[c.id] = c
}

func (br *Bridge) unregister(c *connection) {
	br.mu.Lock()
	delete(br.connections, c.id)
	br.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
