package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/example/stayescrow/internal/models"
	"github.com/example/stayescrow/internal/utils"
)

// Ledger is the transactional gateway over bookings, users and payment records.
// Lookups return gorm.ErrRecordNotFound untouched so callers can pick the
// business code; every other storage failure becomes a DATABASE_ERROR.
type Ledger struct {
	db *gorm.DB
}

// NewLedger builds a Ledger over db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithinTransaction runs fn against a Ledger bound to one database transaction.
func (l *Ledger) WithinTransaction(ctx context.Context, fn func(tx *Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Ledger{db: tx})
	})
}

func (l *Ledger) FindBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	if err := l.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, storageError(err, "load booking %d", id)
	}
	return &booking, nil
}

func (l *Ledger) FindBookingsByProperty(ctx context.Context, propertyID string) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := l.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("check_in_date asc").
		Find(&bookings).Error; err != nil {
		return nil, storageError(err, "list bookings for property %s", propertyID)
	}
	return bookings, nil
}

// FindOverlappingBookings returns bookings on propertyID, other than excludeID,
// whose stay intersects [checkIn, checkOut] inclusively and which are neither
// completed nor cancelled.
func (l *Ledger) FindOverlappingBookings(ctx context.Context, propertyID string, excludeID int64, checkIn, checkOut time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := l.db.WithContext(ctx).
		Where("property_id = ? AND id <> ?", propertyID, excludeID).
		Where("check_in_date <= ? AND check_out_date >= ?", checkOut, checkIn).
		Where("status NOT IN ?", []models.BookingStatus{models.BookingStatusCompleted, models.BookingStatusCancelled}).
		Order("id asc").
		Find(&bookings).Error; err != nil {
		return nil, storageError(err, "find bookings overlapping %s for property %s", formatRange(checkIn, checkOut), propertyID)
	}
	return bookings, nil
}

// DeleteBookingUnlessCompleted hard-deletes a booking. A row that is already
// gone, or that completed in the meantime, is left alone without error.
func (l *Ledger) DeleteBookingUnlessCompleted(ctx context.Context, id int64) (bool, error) {
	res := l.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.BookingStatusCompleted).
		Delete(&models.Booking{})
	if res.Error != nil {
		return false, storageError(res.Error, "delete booking %d", id)
	}
	return res.RowsAffected > 0, nil
}

func (l *Ledger) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	res := l.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return storageError(res.Error, "update status of booking %d", id)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (l *Ledger) FindUser(ctx context.Context, id int64) (*models.UserAccount, error) {
	var user models.UserAccount
	if err := l.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, storageError(err, "load user %d", id)
	}
	return &user, nil
}

func (l *Ledger) SaveUser(ctx context.Context, user *models.UserAccount) error {
	if err := l.db.WithContext(ctx).Save(user).Error; err != nil {
		return storageError(err, "save user %d", user.ID)
	}
	return nil
}

func (l *Ledger) CreateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return storageError(err, "insert transaction %s", record.TxHash)
	}
	return nil
}

// LatestTransactionForBooking returns the authoritative (most recently created)
// record for a booking. Equal timestamps fall back to insertion order.
func (l *Ledger) LatestTransactionForBooking(ctx context.Context, bookingID int64) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	if err := l.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at desc").
		Order("id desc").
		First(&record).Error; err != nil {
		return nil, storageError(err, "load latest transaction for booking %d", bookingID)
	}
	return &record, nil
}

func (l *Ledger) FindTransactionByHash(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	if err := l.db.WithContext(ctx).
		Where("tx_hash = ?", hash).
		Order("created_at desc").
		Order("id desc").
		First(&record).Error; err != nil {
		return nil, storageError(err, "load transaction %s", hash)
	}
	return &record, nil
}

// SettleTransaction attaches the real hash and a final status to a record in place.
func (l *Ledger) SettleTransaction(ctx context.Context, record *models.TransactionRecord, hash string, status models.TransactionStatus) error {
	if !record.Status.CanBecome(status) {
		return businessError(CodeInvalidRequest, "transaction %d cannot move from %s to %s", record.ID, record.Status, status)
	}
	if err := l.db.WithContext(ctx).
		Model(&models.TransactionRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{"tx_hash": hash, "status": status}).Error; err != nil {
		return storageError(err, "update transaction %d", record.ID)
	}
	record.TxHash = hash
	record.Status = status
	return nil
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	BookingID *int64
	UserID    *int64
	Status    models.TransactionStatus
}

func (l *Ledger) ListTransactions(ctx context.Context, filter TransactionFilter, pg utils.Pagination) ([]models.TransactionRecord, int64, error) {
	query := l.db.WithContext(ctx).Model(&models.TransactionRecord{})
	if filter.BookingID != nil {
		query = query.Where("booking_id = ?", *filter.BookingID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storageError(err, "count transactions")
	}

	var records []models.TransactionRecord
	if err := query.
		Order("created_at desc").
		Order("id desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&records).Error; err != nil {
		return nil, 0, storageError(err, "list transactions")
	}
	return records, total, nil
}

func storageError(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gorm.ErrRecordNotFound
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	action := fmt.Sprintf(format, args...)
	return wrapBusinessError(CodeDatabaseError, err, "failed to %s: %v", action, err)
}

func formatRange(from, to time.Time) string {
	return strings.Join([]string{from.Format(time.DateOnly), to.Format(time.DateOnly)}, "..")
}
