package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tracks a payment record from intent to settlement.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

func (s TransactionStatus) rank() int {
	switch s {
	case TransactionStatusPending:
		return 0
	case TransactionStatusFailed:
		return 1
	case TransactionStatusSuccess:
		return 2
	default:
		return -1
	}
}

// CanBecome reports whether moving to next keeps the record moving forward.
func (s TransactionStatus) CanBecome(next TransactionStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= from
}

// PendingHashPrefix marks a transaction whose on-chain hash is not known yet.
const PendingHashPrefix = "pending-"

// TransactionRecord is the local anchor for one payment intent.
type TransactionRecord struct {
	ID        int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID *int64            `gorm:"column:booking_id;index" json:"booking_id"`
	UserID    int64             `gorm:"column:user_id;not null" json:"user_id"`
	TxHash    string            `gorm:"column:tx_hash;type:text;index" json:"tx_hash"`
	Amount    decimal.Decimal   `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Status    TransactionStatus `gorm:"column:status;size:20;not null" json:"status"`
	CreatedAt time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

func (TransactionRecord) TableName() string { return "transactions" }
