package model

import "time"

// Dispute is a data-validity dispute raised through the oracle contract. The
// lifecycle is owned by the oracle; this service only reads and resolves.
type Dispute struct {
	DeviceHash  string    `json:"deviceHash"`
	RecordIndex uint64    `json:"recordIndex"`
	Disputer    string    `json:"disputer"`
	Timestamp   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}
