package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
)

// hubClient подписчик ленты: менеджер видит только свой филиал
type hubClient struct {
	actor services.Actor
}

type hubMessage struct {
	companyID string
	payload   []byte
}

// Hub управляет WebSocket подключениями админки и рассылает события заказов
type Hub struct {
	clients   map[*websocket.Conn]hubClient
	broadcast chan hubMessage
	done      chan struct{}
	stopOnce  sync.Once
	mutex     sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]hubClient),
		broadcast: make(chan hubMessage, 256),
		done:      make(chan struct{}),
	}
}

// Run запускает цикл рассылки. Пишет в соединения только эта горутина
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg hubMessage) {
	var failed []*websocket.Conn

	h.mutex.RLock()
	for conn, client := range h.clients {
		if !client.actor.CanAccessCompany(msg.companyID) {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
			log.Printf("⚠️ Ошибка отправки WebSocket сообщения: %v", err)
			failed = append(failed, conn)
		}
	}
	h.mutex.RUnlock()

	for _, conn := range failed {
		h.RemoveClient(conn)
	}
}

// Stop закрывает все подключения и останавливает Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) AddClient(conn *websocket.Conn, actor services.Actor) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = hubClient{actor: actor}
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// BroadcastEvent ставит сообщение в очередь рассылки, не блокируя вызывающего
func (h *Hub) BroadcastEvent(companyID string, payload []byte) {
	select {
	case h.broadcast <- hubMessage{companyID: companyID, payload: payload}:
	default:
		log.Printf("⚠️ Канал WebSocket рассылки переполнен, событие пропущено")
	}
}

func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Name реализует services.EventSink
func (h *Hub) Name() string {
	return "websocket"
}

// PublishOrderEvent реализует services.EventSink (используется, когда Kafka не настроена)
func (h *Hub) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.BroadcastEvent(event.CompanyID, payload)
	return nil
}
