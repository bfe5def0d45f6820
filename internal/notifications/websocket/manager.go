package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"esign-portal/esign-backend/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Manager streams document lifecycle events to WebSocket subscribers.
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu     sync.RWMutex
	counts map[uuid.UUID]int
}

// Connection is one subscriber of a document's events.
type Connection struct {
	ID          string
	DocumentID  uuid.UUID
	Conn        *websocket.Conn
	Send        chan notifications.WebSocketMessage
	ConnectedAt time.Time
	UserAgent   string
	IPAddress   string
}

// Hub owns the connection set; all mutations happen on its goroutine.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.WebSocketMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.WebSocketMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	m := &Manager{
		hub:    hub,
		logger: logger,
		counts: make(map[uuid.UUID]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go m.run()
	return m
}

// ServeDocumentEvents upgrades GET /documents/:id/events.
func (m *Manager) ServeDocumentEvents(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}
	if _, err := m.HandleConnection(c.Writer, c.Request, documentID); err != nil {
		m.logger.Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

// HandleConnection subscribes a new connection to a document's events.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, documentID uuid.UUID) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		DocumentID:  documentID,
		Conn:        conn,
		Send:        make(chan notifications.WebSocketMessage, 32),
		ConnectedAt: time.Now(),
		UserAgent:   r.Header.Get("User-Agent"),
		IPAddress:   r.RemoteAddr,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, fmt.Errorf("event hub is closed")
	}

	go m.readPump(connection)
	go m.writePump(connection)
	return connection, nil
}

// readPump only keeps the connection alive; clients do not send commands.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read error", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) run() {
	h := m.hub
	defer close(h.done)

	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			m.track(conn.DocumentID, 1)

		case conn := <-h.unregister:
			m.drop(conn)

		case message := <-h.broadcast:
			for conn := range h.connections {
				if message.Event == nil || conn.DocumentID != message.Event.DocumentID {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					m.drop(conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				m.drop(conn)
			}
			return
		}
	}
}

func (m *Manager) drop(conn *Connection) {
	if _, ok := m.hub.connections[conn]; !ok {
		return
	}
	delete(m.hub.connections, conn)
	close(conn.Send)
	m.track(conn.DocumentID, -1)
}

func (m *Manager) track(documentID uuid.UUID, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[documentID] += delta
	if m.counts[documentID] <= 0 {
		delete(m.counts, documentID)
	}
}

// PublishEvent forwards an event to the document's subscribers.
func (m *Manager) PublishEvent(_ context.Context, ev notifications.Event) error {
	select {
	case <-m.hub.done:
		return fmt.Errorf("event hub is closed")
	default:
	}

	msg := notifications.WebSocketMessage{
		Type:      string(ev.Type),
		Event:     &ev,
		Timestamp: time.Now(),
	}
	select {
	case m.hub.broadcast <- msg:
		return nil
	case <-m.hub.done:
		return fmt.Errorf("event hub is closed")
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectionCount returns the number of subscribers of a document.
func (m *Manager) ConnectionCount(documentID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[documentID]
}

// Close disconnects every subscriber and stops the hub.
func (m *Manager) Close() {
	select {
	case <-m.hub.stop:
	default:
		close(m.hub.stop)
	}
	<-m.hub.done
}
