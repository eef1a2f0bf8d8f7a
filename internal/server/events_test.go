package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/mjs-registry/internal/artifact"
	"github.com/acheong08/mjs-registry/pkg/models"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, TypeHello, hello.Type)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

var feedVersion = models.PackageVersion{
	PackageID: models.PackageID{Scope: "@std", Name: "hello"},
	Version:   "1.0.0",
}

func TestHubBroadcastsBuilds(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	conn := dialHub(t, hub)

	hub.Observe(artifact.BuildResult{Package: feedVersion, Size: 512, Duration: 1500 * time.Microsecond})

	msg := readMessage(t, conn)
	require.Equal(t, TypeArtifact, msg.Type)
	var payload ArtifactPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "@std/hello@1.0.0", payload.PackageID)
	assert.Equal(t, "@std/hello", payload.Name)
	assert.Equal(t, int64(512), payload.Size)
	assert.Equal(t, int64(2), payload.DurationMS)

	hub.Observe(artifact.BuildResult{Package: feedVersion, Err: errors.New("1:14: syntax error")})

	msg = readMessage(t, conn)
	require.Equal(t, TypeBuildFailed, msg.Type)
	var failed BuildFailedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &failed))
	assert.Equal(t, "1:14: syntax error", failed.Message)
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	msg := readMessage(t, conn)
	require.Equal(t, TypeError, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "subscribe")
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub(log.New(io.Discard))
	conn := dialHub(t, hub)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// broadcasting with no clients is a no-op
	hub.Observe(artifact.BuildResult{Package: feedVersion})
}
