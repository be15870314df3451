package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ocilxc/lxc-deployer/internal/executor"
	"github.com/ocilxc/lxc-deployer/internal/validation"
)

// StreamHandler pushes execution messages over a websocket. Clients merge
// the pushed messages with poll results by index; the backlog is replayed
// on connect so a late subscriber starts complete.
type StreamHandler struct {
	executor *executor.Executor
	upgrader websocket.Upgrader
}

func NewStreamHandler(ex *executor.Executor) *StreamHandler {
	return &StreamHandler{
		executor: ex,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is token-authenticated; cross-origin browser clients
			// are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Stream upgrades to a websocket and forwards the group's messages.
func (h *StreamHandler) Stream(c *gin.Context) {
	app := c.Param("id")
	task := c.Param("task")
	if err := validation.ValidateTask(task); err != nil {
		respondError(c, err)
		return
	}

	backlog, err := h.executor.Log().Messages(app, task, -1)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := h.executor.Subscribe(app, task)
	defer h.executor.Unsubscribe(app, task, ch)

	for _, m := range backlog {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			return
		}
	}

	// Discard client reads, but notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				return
			}
			if m.Finished {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
