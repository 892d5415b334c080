// Package queue defines message payloads exchanged over the message broker.
package queue

// ScanQueueName is the durable queue carrying scan notifications.
const ScanQueueName = "scan.recorded"

// ScanRecordedEvent is published after a scan has been committed.  It
// carries enough context for consumers to log or aggregate without going
// back to the primary database.
type ScanRecordedEvent struct {
	ScanID      uint64 `json:"scan_id"`
	ClientID    uint64 `json:"client_id"`
	MachineID   uint64 `json:"machine_id"`
	MachineName string `json:"machine_name"`
	GymID       uint64 `json:"gym_id"`
	GymName     string `json:"gym_name"`
	ScannedAt   string `json:"scanned_at"` // RFC 3339, UTC
}
