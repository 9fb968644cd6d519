package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleSessionStream serves server-sent events for one session: a
// session-change event after every committed command and periodic heartbeats.
func (h *httpHandler) handleSessionStream(c *gin.Context) {
	sessionID := c.Param(sessionIDParam)
	if _, err := h.billing.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, sessionID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	h.logger.Debug("realtime stream opened", zap.String("session_id", sessionID))
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, toRealtimeEventPayload(message))
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, toRealtimeEventPayload(RealtimeMessage{
				SessionID: sessionID,
				Timestamp: tick,
			}))
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.String("session_id", sessionID))
}
