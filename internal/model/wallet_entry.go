package model

import "time"

// WalletEntry is connection bookkeeping for an account. It is cleared on
// disconnect and never treated as authoritative.
type WalletEntry struct {
	Account   string    `gorm:"primaryKey;size:42"`
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"size:256;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
