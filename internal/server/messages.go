package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/acheong08/mjs-registry/internal/artifact"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypePing MessageType = "ping" // Keep-alive

	// Server -> Client
	TypePong        MessageType = "pong"
	TypeHello       MessageType = "hello"        // Sent once after the upgrade
	TypeArtifact    MessageType = "artifact"     // An archive was built
	TypeBuildFailed MessageType = "build_failed" // An archive build failed
	TypeError       MessageType = "error"        // Error message
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload greets a new event feed subscriber
type HelloPayload struct {
	Server string `json:"server"`
}

// ArtifactPayload describes a freshly built archive
type ArtifactPayload struct {
	PackageID  string `json:"package_id"` // "@scope/name@version"
	Name       string `json:"name"`
	Version    string `json:"version"`
	Size       int64  `json:"size"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildFailedPayload describes an archive build that did not produce a cache entry
type BuildFailedPayload struct {
	PackageID string `json:"package_id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Message   string `json:"message"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessage(t MessageType, payload any) Message {
	if payload == nil {
		return Message{Type: t}
	}
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: t, Payload: payloadBytes}
}

func NewHelloMessage(server string) Message {
	return newMessage(TypeHello, HelloPayload{Server: server})
}

// NewBuildMessage converts an archive build result into a feed message
func NewBuildMessage(res artifact.BuildResult) Message {
	if res.Err != nil {
		return newMessage(TypeBuildFailed, BuildFailedPayload{
			PackageID: res.Package.ID(),
			Name:      res.Package.FullName(),
			Version:   res.Package.Version,
			Message:   res.Err.Error(),
		})
	}
	return newMessage(TypeArtifact, ArtifactPayload{
		PackageID:  res.Package.ID(),
		Name:       res.Package.FullName(),
		Version:    res.Package.Version,
		Size:       res.Size,
		DurationMS: res.Duration.Round(time.Millisecond).Milliseconds(),
	})
}

func NewErrorMessage(message string, err error) Message {
	errMsg := message
	if err != nil {
		errMsg = fmt.Sprintf("%s: %v", message, err)
	}
	return newMessage(TypeError, ErrorPayload{Message: errMsg})
}
