package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Both gateways are same-origin deployments behind the lobby client.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const watchWriteWait = 10 * time.Second

// watchRoom upgrades to a websocket and pushes room snapshots until the
// session reaches a terminal state or the client goes away. The first
// frame is always the current state.
func (a *PlayerAPI) watchRoom(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	events, cancel, err := a.broker.Watch(id, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		log.Warn().Str("module", "adapters.http").Str("room", string(id)).
			Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer cancel()

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
