package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/storage/redis"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	viewTimeout    = 15 * time.Second
)

type PortfolioViewer interface {
	ViewPortfolio(ctx context.Context, userID uuid.UUID) (*models.PortfolioView, error)
}

type Client struct {
	Manager *Manager
	Conn    *websocket.Conn
	UserID  uuid.UUID
	Send    chan []byte
}

// Manager keeps one live connection per user and pushes a fresh portfolio
// view to it whenever a trade event for that user arrives.
type Manager struct {
	clients    map[uuid.UUID]*Client
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *slog.Logger
	subscriber *redis.Subscriber
	channel    string
	viewer     PortfolioViewer
}

func NewManager(log *slog.Logger, subscriber *redis.Subscriber, channel string, viewer PortfolioViewer) *Manager {
	return &Manager{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		subscriber: subscriber,
		channel:    channel,
		viewer:     viewer,
	}
}

func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	if m.subscriber != nil {
		if err := m.subscriber.Subscribe(ctx, m.channel); err != nil {
			m.log.Error("manager: could not subscribe to trade channel", "channel", m.channel, "error", err)
		} else {
			go m.listenToRedis(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Manager run loop stopping...")
			m.closeAll()
			return
		case client := <-m.register:
			m.registerClient(client)
			go m.push(ctx, client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		}
	}
}

func (m *Manager) listenToRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Redis listener stopping...")
			return
		case msg, ok := <-m.subscriber.Messages:
			if !ok {
				m.log.Warn("manager redis subscriber channel closed")
				return
			}
			m.processRedisMessage(ctx, msg)
		}
	}
}

func (m *Manager) Register(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		client.Conn.Close()
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if oldClient, exists := m.clients[client.UserID]; exists {
		m.log.Warn("client re-registering, closing old connection", "userID", client.UserID)
		close(oldClient.Send)
		oldClient.Conn.Close()
	}

	m.clients[client.UserID] = client
	m.log.Info("new client registered", "userID", client.UserID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.clients[client.UserID]; ok && current == client {
		delete(m.clients, client.UserID)
		close(client.Send)
		m.log.Info("client unregistered", "userID", client.UserID)
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, client := range m.clients {
		close(client.Send)
		delete(m.clients, userID)
	}
}

func (m *Manager) processRedisMessage(ctx context.Context, msg redis.Message) {
	var event events.TradeEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		m.log.Error("failed to parse trade event from redis", "error", err, "payload", msg.Payload)
		return
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		m.log.Warn("trade event with malformed user id", "userID", event.UserID)
		return
	}

	m.mu.RLock()
	client, ok := m.clients[userID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	go m.push(ctx, client)
}

// push renders the client's portfolio and queues it. The send happens under
// the read lock so it cannot race with the channel being closed.
func (m *Manager) push(ctx context.Context, client *Client) {
	viewCtx, cancel := context.WithTimeout(ctx, viewTimeout)
	defer cancel()

	view, err := m.viewer.ViewPortfolio(viewCtx, client.UserID)
	if err != nil {
		m.log.Error("failed to build portfolio view", "error", err, "userID", client.UserID)
		return
	}

	jsonData, err := json.Marshal(view)
	if err != nil {
		m.log.Error("failed to marshal portfolio view", "error", err, "userID", client.UserID)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if current, ok := m.clients[client.UserID]; !ok || current != client {
		return
	}

	select {
	case client.Send <- jsonData:
	default:
		m.log.Warn("client send channel is full, dropping message", "userID", client.UserID)
	}
}

func (c *Client) Writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Manager.log.Warn("failed to write message to client", "userID", c.UserID)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Reader() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.log.Warn("unexpected close error", "userID", c.UserID, "error", err)
			}
			break
		}
	}
}
