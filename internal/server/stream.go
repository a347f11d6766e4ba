package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/emberlabs/ember/backend/internal/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleNotificationStream holds one SSE connection open per user. The
// connection is registered as the user's single delivery target; a newer
// connection for the same user replaces it and the guarded unregister keeps
// this handler's teardown from evicting the replacement.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	stream := notify.NewStream()
	h.registry.Register(userID, stream)
	defer h.registry.Unregister(userID, stream)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("push stream opened", zap.String("user_id", userID))
	h.broker.Notify(userID, notify.EventConnectionSuccess, notify.ConnectionPayload{
		Title: "Notifications Enabled",
		Body:  "You will now receive habit reminders here.",
	})

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Info("push stream closed", zap.String("user_id", userID))
			return
		case event := <-stream:
			if err := writeServerSentEvent(c.Writer, event); err != nil {
				h.logger.Warn("push stream write failed",
					zap.String("user_id", userID),
					zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeServerSentEvent(w http.ResponseWriter, event notify.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
