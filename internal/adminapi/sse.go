package adminapi

import (
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/pkg/logger"
)

// sseHandler streams every bus event to the admin UI, giving it a live
// feed of agent/scan/deletion activity without polling the REST routes.
func (s *Server) sseHandler(c *gin.Context) {
	clientID := fmt.Sprintf("sse-%d", time.Now().UnixNano())
	sub := s.bus.Subscribe(clientID, eventbus.TopicAll)
	defer func() {
		s.bus.Unsubscribe(clientID)
		logger.Info("adminapi: SSE client disconnected", "client_id", clientID)
	}()

	logger.Info("adminapi: SSE client connected", "client_id", clientID)

	c.Stream(func(w io.Writer) bool {
		keepalive := time.NewTimer(30 * time.Second)
		defer keepalive.Stop()

		select {
		case evt, ok := <-sub.Ch:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-keepalive.C:
			c.SSEvent("ping", "keepalive")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
