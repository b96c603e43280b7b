// Package stream pushes committed protocol events to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"rwalend/core/events"
	"rwalend/core/types"
)

const (
	wsWriteTimeout    = 10 * time.Second
	subscriberBuffer  = 64
	defaultBacklogLen = 128
)

// Message is the JSON frame written for each event.
type Message struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch     chan Message
	filter map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

// Hub fans events out to websocket clients. It implements events.Emitter and
// never blocks the emitting call: slow subscribers lose messages.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	nextID  int
	subs    map[int]*subscriber
	backlog []Message
	limit   int
}

func NewHub(logger *slog.Logger, backlog int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if backlog <= 0 {
		backlog = defaultBacklogLen
	}
	return &Hub{logger: logger, subs: make(map[int]*subscriber), limit: backlog}
}

func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		payload = &types.Event{Type: evt.EventType()}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	msg := Message{Seq: h.seq, Type: payload.Type, Attributes: payload.Attributes}
	h.backlog = append(h.backlog, msg)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	for id, sub := range h.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("event stream subscriber lagging", slog.Int("subscriber", id), slog.Uint64("seq", msg.Seq))
		}
	}
}

// Subscribe registers a subscriber and returns the backlog after cursor.
func (h *Hub) Subscribe(cursor uint64, eventTypes []string) (<-chan Message, []Message, func()) {
	sub := &subscriber{ch: make(chan Message, subscriberBuffer)}
	if len(eventTypes) > 0 {
		sub.filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	var backlog []Message
	for _, msg := range h.backlog {
		if msg.Seq > cursor && sub.wants(msg.Type) {
			backlog = append(backlog, msg)
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return sub.ch, backlog, cancel
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. ?types=a,b filters by event type; ?cursor=n replays the backlog after n.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter = append(filter, t)
		}
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, cursor, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, cursor uint64, filter []string) error {
	updates, backlog, cancel := h.Subscribe(cursor, filter)
	defer cancel()
	for _, msg := range backlog {
		if err := writeMessage(ctx, conn, msg); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-updates:
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseCursor(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
