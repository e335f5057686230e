package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"iot-ledger-backend/internal/model"
)

// Dispatcher delivers toasts outside the process, e.g. as web push.
type Dispatcher interface {
	Dispatch(n model.Notification)
}

// UploadState tracks the metadata upload of the registration in flight.
type UploadState struct {
	IsUploading bool   `json:"isUploading"`
	CID         string `json:"ipfsCid"`
}

// Controller is the mutable state of one session. All access is
// serialized; getters return copies.
type Controller struct {
	mu            sync.Mutex
	session       Session
	devices       []model.DeviceRecord
	notifications []model.Notification
	upload        UploadState
	toasts        Dispatcher
}

// NewController creates the state for a freshly resolved session. toasts
// may be nil.
func NewController(s Session, toasts Dispatcher) *Controller {
	return &Controller{session: s, toasts: toasts}
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Account is the checksummed address of the session.
func (c *Controller) Account() string {
	return c.Session().Account
}

func (c *Controller) SetSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Controller) Devices() []model.DeviceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.DeviceRecord(nil), c.devices...)
}

// PrependDevice puts a newly registered device at the head of the list.
func (c *Controller) PrependDevice(rec model.DeviceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = append([]model.DeviceRecord{rec}, c.devices...)
}

// ReplaceDevices swaps in a freshly listed set of devices.
func (c *Controller) ReplaceDevices(recs []model.DeviceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = append([]model.DeviceRecord(nil), recs...)
}

// UpdateDevice applies fn to the listed device with the given hash. It
// reports whether the device was found.
func (c *Controller) UpdateDevice(deviceHash string, fn func(*model.DeviceRecord)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.devices {
		if c.devices[i].DeviceHash == deviceHash {
			fn(&c.devices[i])
			return true
		}
	}
	return false
}

// RemoveDevice drops a device from the list, e.g. after a transfer.
func (c *Controller) RemoveDevice(deviceHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.devices[:0]
	for _, d := range c.devices {
		if d.DeviceHash != deviceHash {
			kept = append(kept, d)
		}
	}
	c.devices = kept
}

func (c *Controller) newNotification(level model.Level, message string) model.Notification {
	return model.Notification{
		ID:        uuid.NewString(),
		Account:   c.session.Account,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// Notify queues a notification and shows it as a toast.
func (c *Controller) Notify(level model.Level, message string) {
	c.mu.Lock()
	n := c.newNotification(level, message)
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()

	c.dispatch(n)
}

// Toast shows a transient message without queueing it.
func (c *Controller) Toast(level model.Level, message string) {
	c.mu.Lock()
	n := c.newNotification(level, message)
	c.mu.Unlock()

	c.dispatch(n)
}

func (c *Controller) dispatch(n model.Notification) {
	if c.toasts != nil {
		c.toasts.Dispatch(n)
	}
}

// Notifications returns the queue in arrival order.
func (c *Controller) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification(nil), c.notifications...)
}

// ClearNotifications empties the queue.
func (c *Controller) ClearNotifications() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nil
}

// BeginUpload marks an upload as running and forgets the previous CID.
func (c *Controller) BeginUpload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upload = UploadState{IsUploading: true}
}

// EndUpload records the CID the upload settled on, remote or fallback.
func (c *Controller) EndUpload(cid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upload = UploadState{CID: cid}
}

func (c *Controller) Upload() UploadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upload
}
