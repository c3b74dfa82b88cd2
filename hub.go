package vigil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HubConfig configures the verdict hub.
type HubConfig struct {
	// BufferSize is the channel buffer size per subscription
	BufferSize int
	// WriteTimeout for WebSocket writes
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:   1000,
		WriteTimeout: 10 * time.Second,
	}
}

// VerdictEvent is one published verdict with its stream key.
type VerdictEvent struct {
	Stream  string   `json:"stream"`
	Verdict *Verdict `json:"verdict"`
}

// HubSubscription represents an active verdict subscription.
type HubSubscription struct {
	ID     string
	Stream string
	// AnomaliesOnly filters out normal verdicts.
	AnomaliesOnly bool

	ch      chan VerdictEvent
	done    chan struct{}
	closed  bool
	mu      sync.Mutex
	created time.Time
}

// C returns the channel for receiving verdict events.
func (s *HubSubscription) C() <-chan VerdictEvent {
	return s.ch
}

// Close closes the subscription.
func (s *HubSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// Hub fans verdicts out to live subscribers. It implements Sink, so it
// plugs directly into an Engine's normal or anomaly channel.
type Hub struct {
	config HubConfig
	mu     sync.RWMutex
	subs   map[string]*HubSubscription
	nextID uint64
}

// NewHub creates a verdict hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		config: cfg,
		subs:   make(map[string]*HubSubscription),
	}
}

// Subscribe creates a subscription. An empty stream matches every
// stream.
func (h *Hub) Subscribe(stream string, anomaliesOnly bool) *HubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := fmt.Sprintf("sub-%d", h.nextID)

	sub := &HubSubscription{
		ID:            id,
		Stream:        stream,
		AnomaliesOnly: anomaliesOnly,
		ch:            make(chan VerdictEvent, h.config.BufferSize),
		done:          make(chan struct{}),
		created:       time.Now(),
	}

	h.subs[id] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Emit implements Sink: the verdict is delivered to every matching
// subscription. A full subscriber buffer drops the event rather than
// blocking the ingest path.
func (h *Hub) Emit(stream string, v *Verdict) {
	ev := VerdictEvent{Stream: stream, Verdict: v}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !h.matches(sub, ev) {
			continue
		}

		select {
		case sub.ch <- ev:
		default:
			// Buffer full, drop the event
		}
	}
}

func (h *Hub) matches(sub *HubSubscription, ev VerdictEvent) bool {
	if sub.Stream != "" && sub.Stream != ev.Stream {
		return false
	}
	if sub.AnomaliesOnly && !ev.Verdict.IsAnomaly {
		return false
	}
	return true
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// List returns all active subscription IDs.
func (h *Hub) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*HubSubscription, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HubMessage is the JSON format for WebSocket messages.
type HubMessage struct {
	Type          string   `json:"type"`
	Stream        string   `json:"stream,omitempty"`
	AnomaliesOnly bool     `json:"anomalies_only,omitempty"`
	Verdict       *Verdict `json:"verdict,omitempty"`
	SubID         string   `json:"sub_id,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// WebSocketHandler returns an HTTP handler for live verdict
// subscriptions. Clients send {"type":"subscribe","stream":...} and
// receive {"type":"verdict",...} messages.
func (h *Hub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Map of active subscriptions for this connection
		connSubs := make(map[string]*HubSubscription)
		var connMu sync.Mutex

		// Read commands from client
		go func() {
			defer cancel()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}

				var cmd HubMessage
				if err := json.Unmarshal(msg, &cmd); err != nil {
					h.sendError(conn, "invalid message format")
					continue
				}

				switch cmd.Type {
				case "subscribe":
					sub := h.Subscribe(cmd.Stream, cmd.AnomaliesOnly)
					connMu.Lock()
					connSubs[sub.ID] = sub
					connMu.Unlock()

					resp, _ := json.Marshal(HubMessage{
						Type:  "subscribed",
						SubID: sub.ID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

					// Start forwarding verdicts for this subscription
					go h.forwardVerdicts(ctx, conn, sub)

				case "unsubscribe":
					connMu.Lock()
					if sub, ok := connSubs[cmd.SubID]; ok {
						delete(connSubs, cmd.SubID)
						h.Unsubscribe(sub.ID)
					}
					connMu.Unlock()

					resp, _ := json.Marshal(HubMessage{
						Type:  "unsubscribed",
						SubID: cmd.SubID,
					})
					_ = conn.WriteMessage(websocket.TextMessage, resp)

				default:
					h.sendError(conn, "unknown command: "+cmd.Type)
				}
			}
		}()

		// Wait for context cancellation
		<-ctx.Done()

		// Cleanup subscriptions
		connMu.Lock()
		for _, sub := range connSubs {
			h.Unsubscribe(sub.ID)
		}
		connMu.Unlock()
	}
}

func (h *Hub) forwardVerdicts(ctx context.Context, conn *websocket.Conn, sub *HubSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			msg, _ := json.Marshal(HubMessage{
				Type:    "verdict",
				Stream:  ev.Stream,
				SubID:   sub.ID,
				Verdict: ev.Verdict,
			})
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendError(conn *websocket.Conn, msg string) {
	resp, _ := json.Marshal(HubMessage{
		Type:  "error",
		Error: msg,
	})
	_ = conn.WriteMessage(websocket.TextMessage, resp)
}
