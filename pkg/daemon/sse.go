package daemon

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const sseKeepAlive = 15 * time.Second

// streamEvents relays hub events to the client as server-sent events until the
// client goes away.
func streamEvents(c *gin.Context) {
	if sseHub == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, "event stream not available")
		return
	}

	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	logrus.Debug("event stream client connected")
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case t := <-keepAlive.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
	logrus.Debug("event stream client disconnected")
}
