package controllers

import (
	"io"
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
)

// EventsController streams status-changed events as server-sent events so open
// screens know to re-query their status.
type EventsController struct {
	broadcaster *services.Broadcaster
	keepAlive   time.Duration
}

func NewEventsController(broadcaster *services.Broadcaster, keepAlive time.Duration) *EventsController {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &EventsController{broadcaster: broadcaster, keepAlive: keepAlive}
}

// Stream sends every event, or only those of ?screen=CODE.
func (e *EventsController) Stream(c *gin.Context) {
	screen := config.NormalizeScreenCode(c.Query("screen"))
	events, cancel := e.broadcaster.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(e.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			if screen == "" || event.ScreenCode == screen {
				c.SSEvent("status_changed", event)
			}
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
