package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/atlas/internal/logging"
	"github.com/conneroisu/atlas/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Buffered messages per client before it is dropped as too slow.
	clientSendBuffer = 256
)

// Message types sent to browsers.
const (
	MessageFullReload = "full_reload"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks live reload clients and fans broadcasts out to them.
type Hub struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}
	pumps        sync.WaitGroup
	logger       logging.Logger
}

// NewHub creates a hub. Run must be called for it to accept clients.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run serves register, unregister and broadcast requests until ctx is
// cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			clientCount := len(h.clients)
			h.clientsMutex.Unlock()
			metrics.RecordWebsocketClients(clientCount)
			h.logger.Debug(ctx, "Client connected", "clients", clientCount)

		case conn := <-h.unregister:
			h.remove(ctx, conn)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, mark for removal
					failedClients = append(failedClients, conn)
				}
			}
			h.clientsMutex.RUnlock()

			for _, conn := range failedClients {
				h.logger.Warn(ctx, nil, "Dropping slow websocket client")
				h.remove(ctx, conn)
			}
		}
	}
}

func (h *Hub) remove(ctx context.Context, conn *websocket.Conn) {
	h.clientsMutex.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(client.send)
	}
	clientCount := len(h.clients)
	h.clientsMutex.Unlock()

	if ok {
		metrics.RecordWebsocketClients(clientCount)
		h.logger.Debug(ctx, "Client disconnected", "clients", clientCount)
	}
}

// closeAll closes every send channel; each writePump then closes its
// connection.
func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	for conn, client := range h.clients {
		close(client.send)
		delete(h.clients, conn)
	}
	h.clientsMutex.Unlock()
	metrics.RecordWebsocketClients(0)
}

// Broadcast sends msg to every connected client. It returns without sending
// once the hub has stopped.
func (h *Hub) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		// Fallback to simple reload message
		data = []byte(`{"type":"full_reload"}`)
	}

	select {
	case h.broadcast <- data:
		metrics.IncBroadcast(msg.Type)
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Wait blocks until every client pump has returned or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	s.hub.serve(w, r)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	// Origin was checked by the caller against the configured listen
	// address, which the library's same-host check does not know about.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade error")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	h.pumps.Add(2)
	select {
	case h.register <- client:
	case <-h.done:
		h.pumps.Done()
		h.pumps.Done()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkOrigin validates the request origin for security
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject connections without origin header for security
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	port := s.Port()
	allowedOrigins := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
	for _, allowed := range allowedOrigins {
		if originURL.Host == allowed {
			return true
		}
	}

	// A wildcard bind serves browsers on other machines, which send the
	// address they dialled as Origin.
	if isUnspecifiedHost(s.config.Server.Host) && originURL.Host == r.Host {
		_, reqPort, err := net.SplitHostPort(r.Host)
		return err == nil && reqPort == strconv.Itoa(port)
	}
	return false
}

func isUnspecifiedHost(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}

// readPump drains the connection so that pongs and close frames are
// processed. Browsers never send data on this socket.
func (c *Client) readPump() {
	defer c.hub.pumps.Done()
	defer func() {
		select {
		case c.hub.unregister <- c.conn:
		case <-c.hub.done:
		}
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.Debug(context.Background(), "WebSocket read error", "error", err.Error())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	defer c.hub.pumps.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}
