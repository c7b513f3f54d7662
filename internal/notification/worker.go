package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"reservation-backend/internal/metrics"
	"reservation-backend/internal/model"
)

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

// EventKind names what happened to a reservation.
type EventKind string

const (
	EventCreated EventKind = "reservation_created"
	EventUpdated EventKind = "reservation_updated"
)

// ReservationEvent is one job for the pool.
type ReservationEvent struct {
	Kind        EventKind `json:"kind"`
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	TimeSlot    string    `json:"time_slot"`
	PartySize   int       `json:"party_size"`
}

// NewReservationEvent snapshots a stored reservation.
func NewReservationEvent(kind EventKind, r *model.Reservation) ReservationEvent {
	return ReservationEvent{
		Kind:        kind,
		ID:          r.ID,
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		TimeSlot:    r.TimeSlot,
		PartySize:   r.PartySize,
	}
}

// Dispatcher accepts reservation events for delivery.
type Dispatcher interface {
	Dispatch(event ReservationEvent) bool
}

// WorkerPool fans reservation events out to every staff push subscription.
type WorkerPool struct {
	size    int
	jobs    chan ReservationEvent
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool with a queue of queueSize events.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan ReservationEvent, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logger := log.With().Int("worker", id).Logger()
	logger.Debug().Msg("notification worker started")
	for {
		select {
		case event := <-wp.jobs:
			wp.notifyStaff(logger.WithContext(ctx), event)
		case <-ctx.Done():
			logger.Debug().Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues an event without blocking. It reports false, and drops
// the event, when the queue is full.
func (wp *WorkerPool) Dispatch(event ReservationEvent) bool {
	select {
	case wp.jobs <- event:
		return true
	default:
		metrics.IncPush("dropped")
		log.Warn().Int64("reservation_id", event.ID).Str("kind", string(event.Kind)).Msg("notification queue full; event dropped")
		return false
	}
}

// notifyStaff sends event to every registered subscription.
func (wp *WorkerPool) notifyStaff(ctx context.Context, event ReservationEvent) {
	logger := log.Ctx(ctx)

	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		logger.Error().Err(err).Int64("reservation_id", event.ID).Msg("failed to fetch push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode notification payload")
		return
	}

	logger.Debug().Int("subscriptions", len(subscriptions)).Int64("reservation_id", event.ID).Msg("sending reservation notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	logger := log.Ctx(ctx)
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.IncPush("failed")
		logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// The push service reports unsubscribed devices as gone.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		metrics.IncPush("expired")
		logger.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
		return
	}
	metrics.IncPush("sent")
}
