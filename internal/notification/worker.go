package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/store"
)

// jobsPerWorker sizes the dispatch buffer.
const jobsPerWorker = 32

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body a subscribed browser receives.
type Payload struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Level   model.Level `json:"level"`
	Message string      `json:"body"`
}

// WorkerPool delivers toasts to the push subscriptions of their account.
type WorkerPool struct {
	size    int
	jobs    chan model.Notification
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool. Without VAPID keys toasts are
// accepted and dropped.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.Notification, size*jobsPerWorker),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case n := <-wp.jobs:
			wp.sendNotificationsForAccount(ctx, n)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a toast for delivery. It never blocks: when the buffer
// is full the toast is dropped.
func (wp *WorkerPool) Dispatch(n model.Notification) {
	select {
	case wp.jobs <- n:
	default:
		log.Printf("Notification queue full, dropping toast %s for %s", n.ID, n.Account)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.Notification {
	return wp.jobs
}

func (wp *WorkerPool) enabled() bool {
	return wp.webpush != nil && wp.webpush.VAPIDPrivateKey != ""
}

// sendNotificationsForAccount sends n to every subscription of its account.
func (wp *WorkerPool) sendNotificationsForAccount(ctx context.Context, n model.Notification) {
	if !wp.enabled() || n.Account == "" {
		return
	}

	subscriptions, err := wp.store.PushSubscriptionsByAccount(ctx, n.Account)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", n.Account, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(Payload{ID: n.ID, Title: "IoT Device Ledger", Level: n.Level, Message: n.Message})
	if err != nil {
		log.Printf("Error encoding notification %s: %v", n.ID, err)
		return
	}

	log.Printf("Sending %d notifications for %s", len(subscriptions), n.Account)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
