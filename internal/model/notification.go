package model

import "time"

// Level classifies a notification the way the dashboard styles its toasts.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a human-readable message for one session's account.
type Notification struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
