// Package notification delivers device-event alerts as web push
// notifications through a small worker pool. Delivery is best-effort;
// controllers never wait on it.
package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/joltersapp/homecontrol/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// event is one queued device alert.
type event struct {
	Device  string
	Message string
}

// WorkerPool fans device events out to all push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan event
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan event, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// Event queues a device alert for delivery. When the queue is full the
// event is dropped rather than blocking the controller that raised it.
func (wp *WorkerPool) Event(device, message string) {
	select {
	case wp.jobs <- event{Device: device, Message: message}:
	default:
		log.Printf("[Notify] Queue full, dropping event for %s", device)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("[Notify] Worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.broadcast(ctx, ev)
		case <-ctx.Done():
			log.Printf("[Notify] Worker %d shutting down", id)
			return
		}
	}
}

// broadcast sends an event to every stored subscription.
func (wp *WorkerPool) broadcast(ctx context.Context, ev event) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("[Notify] Error fetching subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload := []byte(fmt.Sprintf("%s: %s", ev.Device, ev.Message))
	log.Printf("[Notify] Sending %d notifications for %s", len(subscriptions), ev.Device)
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
		log.Printf("[Notify] Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("[Notify] Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("[Notify] Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
