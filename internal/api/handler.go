package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/session"
	"iot-ledger-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	sessions *session.Manager
	devices  *device.Service
	writer   *ledger.Writer
	reader   *ledger.Reader
	store    store.Store
	webpush  *webpush.Options
}

// Deps lists what the handlers are built from.
type Deps struct {
	Sessions *session.Manager
	Devices  *device.Service
	Writer   *ledger.Writer
	Reader   *ledger.Reader
	Store    store.Store
	WebPush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		sessions: d.Sessions,
		devices:  d.Devices,
		writer:   d.Writer,
		reader:   d.Reader,
		store:    d.Store,
		webpush:  d.WebPush,
	}
}
