package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/stayescrow/internal/blockchain"
	"github.com/example/stayescrow/internal/database"
	"github.com/example/stayescrow/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func seedUser(t *testing.T, db *gorm.DB, id int64, wallet *string) *models.UserAccount {
	t.Helper()
	user := &models.UserAccount{ID: id, FirstName: "User", LastName: fmt.Sprint(id), Email: fmt.Sprintf("user%d@example.com", id), WalletAddress: wallet}
	require.NoError(t, db.Create(user).Error)
	return user
}

type bookingSeed struct {
	ID         int64
	UserID     int64
	PropertyID *string
	CheckIn    time.Time
	CheckOut   time.Time
	Status     models.BookingStatus
	TotalPrice *float64
}

func seedBooking(t *testing.T, db *gorm.DB, s bookingSeed) *models.Booking {
	t.Helper()
	if s.CheckIn.IsZero() {
		s.CheckIn = day(2024, 1, 10)
	}
	if s.CheckOut.IsZero() {
		s.CheckOut = day(2024, 1, 15)
	}
	if s.Status == "" {
		s.Status = models.BookingStatusPendingPayment
	}
	booking := &models.Booking{
		ID:           s.ID,
		UserID:       s.UserID,
		PropertyID:   s.PropertyID,
		CheckInDate:  s.CheckIn,
		CheckOutDate: s.CheckOut,
		Status:       s.Status,
		TotalPrice:   s.TotalPrice,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.TransactionRecord{}).Count(&n).Error)
	return n
}

func bookingExists(t *testing.T, db *gorm.DB, id int64) bool {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", id).Count(&n).Error)
	return n == 1
}

// fakeProperties serves property views from memory. When failAfter is set,
// every lookup after that many calls fails with a transport error.
type fakeProperties struct {
	mu        sync.Mutex
	views     map[string]*PropertyView
	err       error
	failAfter int
	calls     int
}

func newFakeProperties(views ...*PropertyView) *fakeProperties {
	f := &fakeProperties{views: map[string]*PropertyView{}}
	for _, v := range views {
		f.views[v.ID] = v
	}
	return f
}

func (f *fakeProperties) Property(_ context.Context, id string) (*PropertyView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("property-service unreachable")
	}
	view, ok := f.views[id]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	copied := *view
	return &copied, nil
}

type paymentDataCall struct {
	BookingID  int64
	Host       string
	Tenant     string
	RentWei    string
	DepositWei string
}

// fakeContract records calls made by the settlement service.
type fakeContract struct {
	mu sync.Mutex

	configured bool
	address    string

	dataErr      error
	dataCalls    []paymentDataCall
	existsErr    error
	exists       bool
	existsCalls  int
	completeHash string
	completeErr  error
	completed    []int64

	onChain    *blockchain.OnChainBooking
	onChainErr error
	refund     *blockchain.ReclamationRefund
	txHash     string
	txErr      error
	txCalls    []string
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		configured:   true,
		address:      "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		exists:       true,
		completeHash: "0xabc123",
		txHash:       "0xfeed",
	}
}

func (f *fakeContract) Configured() bool        { return f.configured }
func (f *fakeContract) ContractAddress() string { return f.address }

func (f *fakeContract) CreateBookingPaymentData(bookingID int64, host, tenant string, rentWei, depositWei *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataCalls = append(f.dataCalls, paymentDataCall{bookingID, host, tenant, rentWei.String(), depositWei.String()})
	if f.dataErr != nil {
		return nil, f.dataErr
	}
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

func (f *fakeContract) BookingExists(context.Context, int64, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.exists, f.existsErr
}

func (f *fakeContract) CompleteBooking(_ context.Context, bookingID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, bookingID)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completeHash, nil
}

func (f *fakeContract) GetBookingWithReclamation(context.Context, int64, string) (*blockchain.OnChainBooking, error) {
	return f.onChain, f.onChainErr
}

func (f *fakeContract) GetReclamationRefund(context.Context, int64) (*blockchain.ReclamationRefund, error) {
	if f.refund == nil {
		return nil, errors.New("no refund recorded")
	}
	return f.refund, nil
}

func (f *fakeContract) record(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls = append(f.txCalls, name)
	return f.txHash, f.txErr
}

func (f *fakeContract) ProcessReclamationRefund(context.Context, int64, string, *big.Int, *big.Int, bool) (string, error) {
	return f.record("processReclamationRefund")
}

func (f *fakeContract) ProcessPartialRefund(context.Context, int64, string, *big.Int, bool) (string, error) {
	return f.record("processPartialRefund")
}

func (f *fakeContract) SetActiveReclamation(context.Context, int64, bool) (string, error) {
	return f.record("setActiveReclamation")
}

type statusCall struct {
	BookingID int64
	Status    models.BookingStatus
}

type fakeStatusNotifier struct {
	mu    sync.Mutex
	calls []statusCall
	err   error
}

func (f *fakeStatusNotifier) NotifyBookingStatus(_ context.Context, bookingID int64, status models.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{bookingID, status})
	return f.err
}
