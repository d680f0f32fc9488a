package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/iff-guardian/hostguard/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wireMessage is the JSON envelope written to a WebSocket client.
type wireMessage struct {
	Stream     StreamType  `json:"stream"`
	ProducedAt time.Time   `json:"produced_at"`
	Payload    interface{} `json:"payload"`
}

// GinHandler upgrades the request to a WebSocket and streams every message
// the subscriber receives until the connection drops, mirroring the
// teacher's register/writer-pump/reader-pump client lifecycle.
func GinHandler(b *Broadcaster, log logger.Logger, streams ...StreamType) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		clientID := uuid.NewString()
		ch, unsubscribe := b.Subscribe(clientID, streams...)
		defer unsubscribe()

		go readPump(conn, log)
		writePump(conn, ch, log)
	}
}

// readPump only drains control frames (ping/close); subscribers are
// read-only over this protocol.
func readPump(conn *websocket.Conn, log logger.Logger) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, ch <-chan Message, log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(wireMessage{Stream: msg.Stream, ProducedAt: msg.ProducedAt, Payload: msg.Payload})
			if err != nil {
				log.Warn("failed to marshal broadcast message", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
