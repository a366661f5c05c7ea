package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Авторизация проверяется по JWT до апгрейда
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeAdminWS живая лента событий заказов для админки
// GET /api/admin/ws?token=...
func (h *Hub) ServeAdminWS(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ Ошибка обновления WebSocket соединения: %v", err)
		return
	}

	h.AddClient(conn, actor)
	log.Printf("📱 Админка подключена (%s). Всего подключений: %d", actor.Email, h.GetClientsCount())

	defer func() {
		h.RemoveClient(conn)
		log.Printf("📱 Админка отключена (%s). Осталось подключений: %d", actor.Email, h.GetClientsCount())
	}()

	// Читаем до ошибки, чтобы обрабатывать ping/pong и закрытие
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket ошибка: %v", err)
			}
			break
		}
	}
}
