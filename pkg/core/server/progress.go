package server

import (
	"time"

	"FaceRecDev/pkg/core/jobs"
	"FaceRecDev/pkg/training"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ProgressMessage websocket 推送的消息，Type 为 "epoch" 或 "done"
type ProgressMessage struct {
	Type   string                `json:"type"`
	Report *training.EpochReport `json:"report,omitempty"`
	Job    *jobs.Snapshot        `json:"job,omitempty"`
}

// progressHandler 把训练任务每轮的进度推送给 websocket 客户端，任务结束后发送 done 并关闭连接
func (hs *HTTPServer) progressHandler(c *gin.Context) {
	id := c.Param("id")
	reports, unsubscribe, err := hs.jobs.Subscribe(id, 64)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := hs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hs.logger.Warn("websocket 升级失败", "job", id, "err", err)
		return
	}
	defer conn.Close()

	// 客户端断开时读循环退出
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case r, ok := <-reports:
			if !ok {
				hs.sendDone(conn, id)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ProgressMessage{Type: "epoch", Report: &r}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (hs *HTTPServer) sendDone(conn *websocket.Conn, id string) {
	msg := ProgressMessage{Type: "done"}
	if snap, err := hs.jobs.Get(id); err == nil {
		msg.Job = &snap
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
