package model

import "time"

// ScanEvent is one append-only row of `scan_history`.  Rows are removed
// only when the client or the machine is deleted.
type ScanEvent struct {
	ID        uint64    `json:"id"`             // scan_history.id
	ClientID  uint64    `json:"client_id"`      // scan_history.client_id
	MachineID uint64    `json:"machine_id"`     // scan_history.machine_id
	ScannedAt time.Time `json:"scan_timestamp"` // scan_history.scan_timestamp
}

// BookmarkEvent is a row of `bookmarked_machines`.  The pair
// (ClientID, MachineID) is unique.
type BookmarkEvent struct {
	ID           uint64    `json:"id"`                 // bookmarked_machines.id
	ClientID     uint64    `json:"client_id"`          // bookmarked_machines.client_id
	MachineID    uint64    `json:"machine_id"`         // bookmarked_machines.machine_id
	BookmarkedAt time.Time `json:"bookmark_timestamp"` // bookmarked_machines.bookmark_timestamp
}

// MachineActivity pairs an event with the machine and gym it refers to.
// It backs the client's scan history and bookmark listings.
type MachineActivity struct {
	Machine Machine `json:"machine"`
	Gym     Gym     `json:"gym"`
}
