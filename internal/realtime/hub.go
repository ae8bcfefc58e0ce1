// Package realtime streams panel snapshots to browsers over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"promptbatch/internal/batch"
	"promptbatch/internal/i18n"
	"promptbatch/internal/infra"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientQueueLen = 16
)

// Message is the envelope written to clients. Clients should ignore
// snapshots with a version lower than the last one applied.
type Message struct {
	Type string         `json:"type"`
	Data batch.Snapshot `json:"data"`
}

// Options configures a Hub.
type Options struct {
	// Current returns the snapshot sent to a client right after it connects.
	Current        func() batch.Snapshot
	Catalog        *i18n.Catalog
	Logger         *infra.Logger
	AllowedOrigins []string
}

type client struct {
	conn   *websocket.Conn
	locale string
	send   chan []byte
}

// Hub fans snapshots out to every connected client. Publish never blocks:
// only the most recent unsent snapshot is kept.
type Hub struct {
	current  func() batch.Snapshot
	catalog  *i18n.Catalog
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	notify     chan struct{}
	done       chan struct{}

	mu      sync.Mutex
	latest  *batch.Snapshot
	clients map[*client]struct{}
}

// NewHub builds a hub. Call Run to start delivering.
func NewHub(opts Options) *Hub {
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = i18n.Default()
	}
	current := opts.Current
	if current == nil {
		current = func() batch.Snapshot { return batch.Snapshot{} }
	}
	h := &Hub{
		current:    current,
		catalog:    catalog,
		logger:     logger.With().Str("component", "realtime").Logger(),
		register:   make(chan *client),
		unregister: make(chan *client),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Publish records s as the latest snapshot and wakes the delivery loop.
func (h *Hub) Publish(s batch.Snapshot) {
	h.mu.Lock()
	h.latest = &s
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

var _ batch.Publisher = (*Hub)(nil)

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run delivers snapshots until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", total).Msg("realtime: client connected")
			if msg, err := h.encode(h.current(), c.locale); err == nil {
				h.enqueue(c, msg)
			}
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", total).Msg("realtime: client disconnected")
		case <-h.notify:
			h.mu.Lock()
			s := h.latest
			h.latest = nil
			h.mu.Unlock()
			if s != nil {
				h.broadcast(*s)
			}
		}
	}
}

func (h *Hub) broadcast(s batch.Snapshot) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	encoded := make(map[string][]byte)
	for _, c := range targets {
		msg, ok := encoded[c.locale]
		if !ok {
			var err error
			msg, err = h.encode(s, c.locale)
			if err != nil {
				h.logger.Error().Err(err).Msg("realtime: encode snapshot")
				return
			}
			encoded[c.locale] = msg
		}
		h.enqueue(c, msg)
	}
}

// enqueue drops the client when its queue is full.
func (h *Hub) enqueue(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
		h.logger.Warn().Msg("realtime: dropping slow client")
	}
}

func (h *Hub) encode(s batch.Snapshot, locale string) ([]byte, error) {
	s.Notice = h.catalog.Localize(s.Notice, locale)
	return json.Marshal(Message{Type: "snapshot", Data: s})
}

// ServeWS upgrades the request and streams snapshots rendered for locale.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, locale string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("realtime: upgrade failed")
		return
	}
	c := &client{conn: conn, locale: locale, send: make(chan []byte, clientQueueLen)}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
