package websocket

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// Hub WebSocket 연결 관리 및 토픽 브로드캐스트
// Clients subscribe to topics ("match:<id>", "subject:<id>") and receive
// every delta published to them. Delivery is best-effort per connection;
// a slow client is dropped rather than allowed to stall the hub.
type Hub struct {
	// 사용자별 연결 저장 (userID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan *Message

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	// presence is told when a subject's connection comes and goes
	presence PresenceListener

	logger *zap.Logger
}

// PresenceListener observes subjects connecting and disconnecting.
type PresenceListener interface {
	SetActivity(subjectID string, status models.ActivityStatus)
}

// Message WebSocket 메시지
type Message struct {
	Topic   string      `json:"topic"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// subscribeRequest is the only message clients send: topic management.
type subscribeRequest struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Topic  string `json:"topic"`
}

// NewHub Hub 생성
func NewHub() *Hub {
	logger, _ := zap.NewProduction()
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetPresenceListener wires a presence consumer. Must be called before
// Run starts.
func (h *Hub) SetPresenceListener(l PresenceListener) {
	h.presence = l
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Publish sends a delta to every client subscribed to the topic. It is
// the hub's side of the broadcaster collaborator used by the services.
func (h *Hub) Publish(topic, msgType string, payload interface{}) {
	h.broadcast <- &Message{
		Topic:   topic,
		Type:    msgType,
		Payload: payload,
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if oldClient, exists := h.clients[client.userID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))

	if h.presence != nil {
		// off the hub goroutine: the listener may publish back through it
		go h.presence.SetActivity(client.userID, models.ActivityActive)
	}
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))

		if h.presence != nil {
			go h.presence.SetActivity(client.userID, models.ActivityDisconnected)
		}
	}
}

// broadcastMessage 구독자에게 메시지 전달
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.subscribed(message.Topic) {
			continue
		}
		select {
		case client.send <- message:
		default:
			// 채널이 가득 찬 경우 연결 해제
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("userId", client.userID))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// allowTopic decides what a user may subscribe to. Match topics are open
// so finished scoreboards can be spectated; a subject topic belongs to its
// subject alone.
func allowTopic(userID, topic string) bool {
	if strings.HasPrefix(topic, "match:") {
		return true
	}
	if strings.HasPrefix(topic, "subject:") {
		return topic == "subject:"+userID
	}
	return false
}
