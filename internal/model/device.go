package model

import (
	"fmt"
	"time"
)

// DeviceStatus mirrors the on-chain status enum of the device registry.
type DeviceStatus uint8

const (
	StatusOnline DeviceStatus = iota
	StatusOffline
	StatusMaintenance
)

var statusNames = [...]string{"online", "offline", "maintenance"}

func (s DeviceStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	return int(s) < len(statusNames)
}

// ParseDeviceStatus converts a status name into its enum value.
func ParseDeviceStatus(name string) (DeviceStatus, error) {
	for i, n := range statusNames {
		if n == name {
			return DeviceStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown device status %q", name)
}

// MarshalText renders the status by name in JSON responses.
func (s DeviceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts a status name.
func (s *DeviceStatus) UnmarshalText(b []byte) error {
	v, err := ParseDeviceStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DeviceRecord is a registered device as seen by this service. It mirrors the
// registry entry on the ledger, or a simulated one when the write fell back.
type DeviceRecord struct {
	DeviceHash    string       `gorm:"primaryKey;size:66" json:"deviceHash"`
	Owner         string       `gorm:"index;size:42;not null" json:"owner"`
	Status        DeviceStatus `gorm:"not null" json:"status"`
	RegisteredAt  time.Time    `gorm:"not null" json:"registrationTimestamp"`
	LastUpdatedAt time.Time    `gorm:"not null" json:"lastUpdatedTimestamp"`
	MetadataCID   string       `gorm:"size:128;not null" json:"metadataCid"`
	TxHash        string       `gorm:"size:66" json:"txHash,omitempty"`
	Simulated     bool         `gorm:"not null;default:false" json:"simulated"`
}

// Registered reports whether the record points at published metadata.
func (d DeviceRecord) Registered() bool {
	return d.MetadataCID != ""
}

// DeviceMetadata is the document published to content-addressed storage.
// Field order is significant: the fallback CID hashes the serialized form.
type DeviceMetadata struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Location        string `json:"location"`
	Description     string `json:"description"`
	MACAddress      string `json:"macAddress"`
	FirmwareVersion string `json:"firmwareVersion"`
	CreatedAt       int64  `json:"createdAt"` // unix millis
}
