package models

import (
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending            BookingStatus = "PENDING"
	BookingStatusPendingPayment     BookingStatus = "PENDING_PAYMENT"
	BookingStatusPendingNegotiation BookingStatus = "PENDING_NEGOTIATION"
	BookingStatusConfirmed          BookingStatus = "CONFIRMED"
	BookingStatusCompleted          BookingStatus = "COMPLETED"
	BookingStatusCancelled          BookingStatus = "CANCELLED"
)

// AwaitingPayment reports whether the booking is still an unconfirmed hold.
func (s BookingStatus) AwaitingPayment() bool {
	switch s {
	case BookingStatusPending, BookingStatusPendingPayment, BookingStatusPendingNegotiation:
		return true
	case BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return false
	default:
		return false
	}
}

// Purgeable reports whether an overlapping booking in this state may be removed
// once a competing booking is confirmed.
func (s BookingStatus) Purgeable() bool {
	switch s {
	case BookingStatusPending, BookingStatusPendingPayment, BookingStatusPendingNegotiation,
		BookingStatusConfirmed, BookingStatusCancelled:
		return true
	case BookingStatusCompleted:
		return false
	default:
		return false
	}
}

// Booking mirrors the booking-service row this service settles.
type Booking struct {
	ID                          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                      int64         `gorm:"column:user_id;not null;index" json:"user_id"`
	PropertyID                  *string       `gorm:"column:property_id;index" json:"property_id"`
	CheckInDate                 time.Time     `gorm:"column:check_in_date;type:date;not null" json:"check_in_date"`
	CheckOutDate                time.Time     `gorm:"column:check_out_date;type:date;not null" json:"check_out_date"`
	OnChainTxHash               *string       `gorm:"column:on_chain_tx_hash;type:text" json:"on_chain_tx_hash"`
	Status                      BookingStatus `gorm:"column:status;size:50;not null" json:"status"`
	TotalPrice                  *float64      `gorm:"column:total_price" json:"total_price"`
	LongStayDiscountPercent     *int          `gorm:"column:long_stay_discount_percent" json:"long_stay_discount_percent"`
	RequestedNegotiationPercent *int          `gorm:"column:requested_negotiation_percent" json:"requested_negotiation_percent"`
	NegotiationExpiresAt        *time.Time    `gorm:"column:negotiation_expires_at" json:"negotiation_expires_at"`
	CreatedAt                   time.Time     `json:"created_at"`
	UpdatedAt                   time.Time     `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// PropertyRef returns the trimmed property id, or "" when the booking has none.
func (b *Booking) PropertyRef() string {
	if b == nil || b.PropertyID == nil {
		return ""
	}
	return strings.TrimSpace(*b.PropertyID)
}
