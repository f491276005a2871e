package websocket

import (
	"time"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// EventType represents the type of WebSocket event.
type EventType string

const (
	// EventTypeVerdict is emitted for every analyzed record.
	EventTypeVerdict EventType = "verdict"
	// EventTypeSystemStatus carries periodic system status.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection tracks client connect/disconnect.
	EventTypeConnection EventType = "connection"
)

// Event is a WebSocket event sent to clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// VerdictEvent describes one analyzed record.
type VerdictEvent struct {
	RequestID    string         `json:"request_id"`
	RecordID     string         `json:"record_id,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	HasPII       bool           `json:"is_pii"`
	Categories   []pii.Category `json:"categories,omitempty"`
	Findings     []pii.Finding  `json:"findings,omitempty"`
	FieldCount   int            `json:"field_count"`
	Redacted     *pii.Record    `json:"redacted,omitempty"`
	ProcessingMS float64        `json:"processing_ms"`
}

// SystemStatusEvent carries coarse service health.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalFlagged     int64  `json:"total_flagged"`
	ActiveDetectors  int    `json:"active_detectors"`
	ConnectedClients int    `json:"connected_clients"`
	MemoryUsage      string `json:"memory_usage"`
}

// ConnectionEvent tracks WebSocket client lifecycle.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage is a message sent from a client to the server.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
