package model

import "time"

// DataRecord is one sensor-data submission. Records are append-only.
type DataRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceHash string    `gorm:"index;size:66;not null" json:"deviceHash"`
	DataType   string    `gorm:"size:66;not null" json:"dataType"`
	DataHash   string    `gorm:"size:66;not null" json:"dataHash"`
	TxHash     string    `gorm:"size:66" json:"txHash"`
	RecordedAt time.Time `gorm:"not null" json:"recordedAt"`
}

// LedgerRecord is a data record as returned by the ledger's getRecords call.
type LedgerRecord struct {
	DataType  string    `json:"dataType"`
	DataHash  string    `json:"dataHash"`
	Timestamp time.Time `json:"timestamp"`
	Validated bool      `json:"validated"`
}
