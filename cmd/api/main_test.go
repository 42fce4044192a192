package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"statistics-workflow-api/controllers"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownEndsEventStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broadcaster := services.NewBroadcaster(4)
	router := gin.New()
	router.GET("/events", controllers.NewEventsController(broadcaster, time.Hour).Stream)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := newServer(listener.Addr().String(), router, broadcaster)
	go func() { _ = server.Serve(listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	broadcaster.Publish(services.StatusChangedEvent{EventID: "before-shutdown", ScreenCode: "CENSUS_POPULATION"})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "event:"), line)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, server.Shutdown(ctx))
	assert.Less(t, time.Since(started), 3*time.Second)
	assert.Zero(t, broadcaster.SubscriberCount())
}
