package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DefaultQueueSize bounds how many unread booking ids are buffered.
const DefaultQueueSize = 1024

// BookingCreated is published by the booking service whenever a booking is made.
type BookingCreated struct {
	BookingID       *int64          `json:"bookingId"`
	TenantID        *int64          `json:"tenantId"`
	OwnerID         *int64          `json:"ownerId"`
	PropertyID      json.RawMessage `json:"propertyId"`
	FinalRentAmount decimal.Decimal `json:"finalRentAmount"`
	DepositAmount   decimal.Decimal `json:"depositAmount"`
	Status          string          `json:"status"`
}

// PropertyRef renders the property id whether it was sent as a number or a string.
func (e *BookingCreated) PropertyRef() string {
	if len(e.PropertyID) == 0 {
		return ""
	}
	return gjson.ParseBytes(e.PropertyID).String()
}

// LastIDStore persists the most recent booking id outside the process.
type LastIDStore interface {
	SaveLastBookingID(ctx context.Context, bookingID int64) error
	LastBookingID(ctx context.Context) (int64, bool, error)
}

// BookingQueue remembers the last booking id seen on the booking-created feed
// and buffers ids for callers that wait for the next one.
type BookingQueue struct {
	mu      sync.RWMutex
	last    int64
	hasLast bool

	ids   chan int64
	store LastIDStore
}

// NewBookingQueue builds a queue; store may be nil.
func NewBookingQueue(size int, store LastIDStore) *BookingQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &BookingQueue{ids: make(chan int64, size), store: store}
}

// HandleMessage decodes a booking-created payload and offers its id.
// Payloads without a booking id are ignored.
func (q *BookingQueue) HandleMessage(ctx context.Context, payload []byte) error {
	var event BookingCreated
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode booking-created event: %w", err)
	}
	if event.BookingID == nil {
		return nil
	}
	q.Offer(ctx, *event.BookingID)
	return nil
}

// Offer records bookingID as the latest one. When the buffer is full the id is
// still remembered as last but not queued.
func (q *BookingQueue) Offer(ctx context.Context, bookingID int64) {
	q.mu.Lock()
	q.last, q.hasLast = bookingID, true
	q.mu.Unlock()

	select {
	case q.ids <- bookingID:
	default:
		log.Printf("[BookingQueue] buffer full, booking %d kept as last id only", bookingID)
	}

	if q.store != nil {
		if err := q.store.SaveLastBookingID(ctx, bookingID); err != nil {
			log.Printf("[BookingQueue] failed to mirror booking %d: %v", bookingID, err)
		}
	}
}

// Last returns the most recent booking id, falling back to the mirror when
// this process has not seen one yet.
func (q *BookingQueue) Last(ctx context.Context) (int64, bool) {
	q.mu.RLock()
	last, ok := q.last, q.hasLast
	q.mu.RUnlock()
	if ok || q.store == nil {
		return last, ok
	}

	id, found, err := q.store.LastBookingID(ctx)
	if err != nil {
		log.Printf("[BookingQueue] failed to read mirrored booking id: %v", err)
		return 0, false
	}
	return id, found
}

// Poll takes the next buffered id, waiting up to timeout.
func (q *BookingQueue) Poll(ctx context.Context, timeout time.Duration) (int64, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-q.ids:
		return id, true
	case <-timer.C:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

// WaitForBookingID returns the last known id, or the next one to arrive within timeout.
func (q *BookingQueue) WaitForBookingID(ctx context.Context, timeout time.Duration) (int64, bool) {
	if id, ok := q.Last(ctx); ok {
		return id, true
	}
	return q.Poll(ctx, timeout)
}

// Len reports how many ids are buffered.
func (q *BookingQueue) Len() int {
	return len(q.ids)
}
