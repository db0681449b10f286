package services

import (
	"context"
	"errors"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/stayescrow/internal/blockchain"
	"github.com/example/stayescrow/internal/models"
	"github.com/example/stayescrow/internal/utils"
)

// EscrowContract is the part of the escrow client the settlement flow needs.
type EscrowContract interface {
	Configured() bool
	ContractAddress() string
	CreateBookingPaymentData(bookingID int64, host, tenant string, rentWei, depositWei *big.Int) ([]byte, error)
	BookingExists(ctx context.Context, bookingID int64, from string) (bool, error)
	CompleteBooking(ctx context.Context, bookingID int64) (string, error)
	GetBookingWithReclamation(ctx context.Context, bookingID int64, from string) (*blockchain.OnChainBooking, error)
	GetReclamationRefund(ctx context.Context, bookingID int64) (*blockchain.ReclamationRefund, error)
	ProcessReclamationRefund(ctx context.Context, bookingID int64, recipient string, refundWei, penaltyWei *big.Int, refundFromRent bool) (string, error)
	ProcessPartialRefund(ctx context.Context, bookingID int64, recipient string, refundWei *big.Int, refundFromRent bool) (string, error)
	SetActiveReclamation(ctx context.Context, bookingID int64, active bool) (string, error)
}

// BookingStatusNotifier tells the booking service about status changes made here.
type BookingStatusNotifier interface {
	NotifyBookingStatus(ctx context.Context, bookingID int64, status models.BookingStatus) error
}

// SettlementAlerter receives a message whenever a payment settles.
type SettlementAlerter interface {
	NotifySettlement(n SettlementNotification) error
}

// SettlementOptions carries the optional collaborators of a SettlementService.
type SettlementOptions struct {
	IntentChainID  int64
	StatusNotifier BookingStatusNotifier
	Alerter        SettlementAlerter
}

// SettlementService builds payment intents, settles bookings on-chain and
// resolves double bookings once a payment is confirmed.
type SettlementService struct {
	ledger         *Ledger
	properties     PropertyReader
	contract       EscrowContract
	intentChainID  int64
	statusNotifier BookingStatusNotifier
	alerter        SettlementAlerter
}

func NewSettlementService(ledger *Ledger, properties PropertyReader, contract EscrowContract, opts SettlementOptions) *SettlementService {
	return &SettlementService{
		ledger:         ledger,
		properties:     properties,
		contract:       contract,
		intentChainID:  opts.IntentChainID,
		statusNotifier: opts.StatusNotifier,
		alerter:        opts.Alerter,
	}
}

// PaymentIntent is the transaction a guest's wallet must submit to pay for a booking.
type PaymentIntent struct {
	ReferenceID    uuid.UUID `json:"referenceId"`
	To             string    `json:"to"`
	Value          string    `json:"value"`
	Data           *string   `json:"data"`
	ChainID        int64     `json:"chainId"`
	TotalAmountWei string    `json:"totalAmountWei"`
}

// CreatePaymentIntent validates a booking and its parties, records a PENDING
// transaction and describes the payment the guest has to send. Nothing is
// written unless every check passes.
func (s *SettlementService) CreatePaymentIntent(ctx context.Context, bookingID int64) (*PaymentIntent, error) {
	if bookingID <= 0 {
		return nil, businessError(CodeInvalidRequest, "bookingId is required")
	}

	var intent *PaymentIntent
	err := s.ledger.WithinTransaction(ctx, func(tx *Ledger) error {
		booking, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return notFoundAs(err, CodeBookingNotFound, "booking not found: %d", bookingID)
		}

		propertyID := booking.PropertyRef()
		if propertyID == "" {
			return businessError(CodePropertyNotFound, "booking %d has no property assigned", bookingID)
		}
		property, err := s.loadProperty(ctx, propertyID)
		if err != nil {
			return err
		}

		ownerID, hasOwner, err := property.OwnerID()
		if !hasOwner {
			return businessError(CodeOwnerNotFound, "property %s does not have an owner userId", propertyID)
		}
		if err != nil {
			return businessError(CodeInvalidOwnerID, "property %s has an invalid owner userId %q", propertyID, *property.OwnerUserID)
		}
		owner, err := tx.FindUser(ctx, ownerID)
		if err != nil {
			return notFoundAs(err, CodeOwnerNotFound, "owner %d of property %s not found", ownerID, propertyID)
		}
		ownerWallet, ok := owner.Wallet()
		if !ok {
			return businessError(CodeWalletAddressMissing, "property owner %d (property %s) does not have a wallet address configured", ownerID, propertyID)
		}

		if booking.TotalPrice == nil {
			return businessError(CodeBookingPriceMissing, "booking %d total price is not set", bookingID)
		}
		rent := DecimalFromFloat(*booking.TotalPrice)
		if !rent.IsPositive() {
			return businessError(CodeInvalidBookingPrice, "booking %d total price must be greater than zero, got %s", bookingID, rent)
		}

		guest, err := tx.FindUser(ctx, booking.UserID)
		if err != nil {
			return notFoundAs(err, CodeGuestNotFound, "guest %d of booking %d not found", booking.UserID, bookingID)
		}
		guestWallet, ok := guest.Wallet()
		if !ok {
			return businessError(CodeWalletAddressMissing, "guest %d (booking %d) does not have a wallet address configured", booking.UserID, bookingID)
		}

		deposit := s.depositOrZero(ctx, propertyID)
		total := rent.Add(deposit)
		rentWei, depositWei, totalWei := ToWei(rent), ToWei(deposit), ToWei(total)

		to := ownerWallet
		var data *string
		if s.contractConfigured() {
			to = s.contract.ContractAddress()
			data = s.paymentCalldata(bookingID, ownerWallet, guestWallet, rentWei, depositWei)
		}

		referenceID := uuid.New()
		record := &models.TransactionRecord{
			BookingID: &booking.ID,
			UserID:    booking.UserID,
			TxHash:    models.PendingHashPrefix + referenceID.String(),
			Amount:    total,
			Status:    models.TransactionStatusPending,
		}
		if err := tx.CreateTransaction(ctx, record); err != nil {
			return err
		}

		intent = &PaymentIntent{
			ReferenceID:    referenceID,
			To:             to,
			Value:          totalWei.String(),
			Data:           data,
			ChainID:        s.intentChainID,
			TotalAmountWei: totalWei.String(),
		}
		return nil
	})
	if err != nil {
		return nil, asBusinessError(err, "create payment intent for booking %d", bookingID)
	}

	log.Printf("[Settlement] payment intent %s for booking %d: %s wei to %s", intent.ReferenceID, bookingID, intent.TotalAmountWei, intent.To)
	return intent, nil
}

// depositOrZero re-reads the property deposit. Any failure counts as no deposit.
func (s *SettlementService) depositOrZero(ctx context.Context, propertyID string) decimal.Decimal {
	property, err := s.properties.Property(ctx, propertyID)
	if err != nil {
		log.Printf("[Settlement] deposit lookup for property %s failed, using 0: %v", propertyID, err)
		return decimal.Zero
	}
	deposit := DecimalFromFloat(property.DepositAmount)
	if deposit.IsNegative() {
		log.Printf("[Settlement] property %s has negative deposit %s, using 0", propertyID, deposit)
		return decimal.Zero
	}
	return deposit
}

// paymentCalldata encodes createBookingPayment. An encoding failure leaves the
// intent as a plain value transfer.
func (s *SettlementService) paymentCalldata(bookingID int64, host, tenant string, rentWei, depositWei *big.Int) *string {
	data, err := s.contract.CreateBookingPaymentData(bookingID, host, tenant, rentWei, depositWei)
	if err != nil {
		log.Printf("[Settlement] calldata for booking %d not built, falling back to plain transfer: %v", bookingID, err)
		return nil
	}
	encoded := hexutil.Encode(data)
	return &encoded
}

// CompleteBooking releases a booking's escrow on-chain and marks its latest
// transaction record as SUCCESS.
func (s *SettlementService) CompleteBooking(ctx context.Context, bookingID int64) (string, error) {
	if !s.contractConfigured() {
		return "", businessError(CodeContractNotConfigured, "smart contract address not configured")
	}
	booking, err := s.ledger.FindBooking(ctx, bookingID)
	if err != nil {
		return "", notFoundAs(err, CodeBookingNotFound, "booking not found: %d", bookingID)
	}

	s.checkOnChain(ctx, bookingID)

	hash, err := s.contract.CompleteBooking(ctx, bookingID)
	if err != nil {
		return "", wrapBusinessError(CodeBlockchainError, err, "failed to complete booking %d on blockchain: %v", bookingID, err)
	}

	record, err := s.ledger.LatestTransactionForBooking(ctx, bookingID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Printf("[Settlement] booking %d completed (%s) without a local transaction record", bookingID, hash)
	case err != nil:
		log.Printf("[Settlement] booking %d completed on-chain (%s) but the local record could not be loaded: %v", bookingID, hash, err)
		return "", err
	default:
		if err := s.ledger.SettleTransaction(ctx, record, hash, models.TransactionStatusSuccess); err != nil {
			log.Printf("[Settlement] booking %d completed on-chain (%s) but the local record could not be updated: %v", bookingID, hash, err)
			return "", err
		}
	}

	s.alert(SettlementNotification{
		BookingID:  bookingID,
		PropertyID: booking.PropertyRef(),
		TxHash:     hash,
		Event:      "Booking settled on-chain",
	})
	return hash, nil
}

// checkOnChain is advisory: the completion call is the real gate, so a failed
// or negative check is only logged.
func (s *SettlementService) checkOnChain(ctx context.Context, bookingID int64) {
	exists, err := s.contract.BookingExists(ctx, bookingID, "")
	switch {
	case err != nil:
		log.Printf("[Settlement] on-chain existence check for booking %d failed, continuing: %v", bookingID, err)
	case !exists:
		log.Printf("[Settlement] booking %d is not on-chain yet, continuing to completion", bookingID)
	}
}

// OverlapResolution lists what CancelOverlappingBookings did with each candidate.
type OverlapResolution struct {
	Deleted []int64
	Skipped []int64
	Failed  map[int64]error
}

// CancelOverlappingBookings deletes every unfinished booking on the same
// property whose stay intersects a confirmed booking. It does nothing unless
// the booking exists and is CONFIRMED. A failed delete does not stop the others.
func (s *SettlementService) CancelOverlappingBookings(ctx context.Context, confirmedBookingID int64) (*OverlapResolution, error) {
	result := &OverlapResolution{Failed: map[int64]error{}}

	confirmed, err := s.ledger.FindBooking(ctx, confirmedBookingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		return result, nil
	}
	propertyID := confirmed.PropertyRef()
	if propertyID == "" || confirmed.CheckInDate.IsZero() || confirmed.CheckOutDate.IsZero() {
		return result, nil
	}

	candidates, err := s.ledger.FindOverlappingBookings(ctx, propertyID, confirmed.ID, confirmed.CheckInDate, confirmed.CheckOutDate)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if candidate.ID == confirmed.ID {
			continue
		}
		if !candidate.Status.Purgeable() {
			result.Skipped = append(result.Skipped, candidate.ID)
			continue
		}

		deleted, err := s.ledger.DeleteBookingUnlessCompleted(ctx, candidate.ID)
		switch {
		case err != nil:
			log.Printf("[Settlement] failed to delete booking %d overlapping confirmed booking %d: %v", candidate.ID, confirmed.ID, err)
			result.Failed[candidate.ID] = err
		case deleted:
			result.Deleted = append(result.Deleted, candidate.ID)
		default:
			result.Skipped = append(result.Skipped, candidate.ID)
		}
	}

	if len(result.Deleted) > 0 {
		log.Printf("[Settlement] confirmed booking %d on property %s removed overlapping bookings %v", confirmed.ID, propertyID, result.Deleted)
	}
	return result, nil
}

// ConfirmPayment attaches the hash reported by the guest's wallet to the latest
// transaction of a booking, confirms the booking and clears conflicting holds.
func (s *SettlementService) ConfirmPayment(ctx context.Context, bookingID int64, txHash string) error {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return businessError(CodeInvalidRequest, "txHash is required")
	}

	record, err := s.ledger.LatestTransactionForBooking(ctx, bookingID)
	if err != nil {
		return notFoundAs(err, CodeTransactionNotFound, "transaction not found for booking %d", bookingID)
	}
	if err := s.ledger.SettleTransaction(ctx, record, txHash, models.TransactionStatusSuccess); err != nil {
		return err
	}

	s.confirmBooking(ctx, bookingID)

	amount := record.Amount
	s.alert(SettlementNotification{
		BookingID: bookingID,
		TxHash:    txHash,
		Amount:    &amount,
		Event:     "Payment confirmed",
	})
	return nil
}

// confirmBooking moves an awaiting booking to CONFIRMED. Every step after the
// transaction update is best-effort.
func (s *SettlementService) confirmBooking(ctx context.Context, bookingID int64) {
	booking, err := s.ledger.FindBooking(ctx, bookingID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Settlement] could not load booking %d after payment: %v", bookingID, err)
		}
		s.notifyStatus(ctx, bookingID, models.BookingStatusConfirmed)
		return
	}

	switch {
	case booking.Status.AwaitingPayment():
		if err := s.ledger.UpdateBookingStatus(ctx, bookingID, models.BookingStatusConfirmed); err != nil {
			log.Printf("[Settlement] failed to confirm booking %d: %v", bookingID, err)
		} else if _, err := s.CancelOverlappingBookings(ctx, bookingID); err != nil {
			log.Printf("[Settlement] overlap resolution for booking %d failed: %v", bookingID, err)
		}
		s.notifyStatus(ctx, bookingID, models.BookingStatusConfirmed)
	case booking.Status == models.BookingStatusCancelled:
		s.notifyStatus(ctx, bookingID, models.BookingStatusConfirmed)
	}
}

func (s *SettlementService) notifyStatus(ctx context.Context, bookingID int64, status models.BookingStatus) {
	if s.statusNotifier == nil {
		return
	}
	if err := s.statusNotifier.NotifyBookingStatus(ctx, bookingID, status); err != nil {
		log.Printf("[Settlement] booking-service not updated for booking %d: %v", bookingID, err)
	}
}

func (s *SettlementService) alert(n SettlementNotification) {
	if s.alerter == nil {
		return
	}
	go func() {
		if err := s.alerter.NotifySettlement(n); err != nil {
			log.Printf("[Settlement] Telegram notification for booking %d failed: %v", n.BookingID, err)
		}
	}()
}

func (s *SettlementService) contractConfigured() bool {
	return s.contract != nil && s.contract.Configured()
}

func (s *SettlementService) loadProperty(ctx context.Context, propertyID string) (*PropertyView, error) {
	property, err := s.properties.Property(ctx, propertyID)
	if err == nil {
		return property, nil
	}
	if errors.Is(err, ErrPropertyNotFound) {
		return nil, businessError(CodePropertyNotFound, "property not found: %s", propertyID)
	}
	return nil, asBusinessError(err, "load property %s", propertyID)
}

// BookingDetails is the payment page's view of a booking and both parties.
type BookingDetails struct {
	BookingID          int64                `json:"bookingId"`
	Status             models.BookingStatus `json:"status"`
	TotalPrice         *float64             `json:"totalPrice"`
	CheckInDate        string               `json:"checkInDate"`
	CheckOutDate       string               `json:"checkOutDate"`
	PropertyID         string               `json:"propertyId"`
	PropertyTitle      string               `json:"propertyTitle"`
	PropertyPrice      float64              `json:"propertyPrice"`
	OwnerWalletAddress string               `json:"ownerWalletAddress"`
	UserID             int64                `json:"userId"`
	UserFirstName      string               `json:"userFirstName,omitempty"`
	UserLastName       string               `json:"userLastName,omitempty"`
	UserEmail          string               `json:"userEmail,omitempty"`
	UserWalletAddress  *string              `json:"userWalletAddress"`
}

func (s *SettlementService) BookingDetails(ctx context.Context, bookingID int64) (*BookingDetails, error) {
	booking, err := s.ledger.FindBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, CodeBookingNotFound, "booking not found: %d", bookingID)
	}
	propertyID := booking.PropertyRef()
	if propertyID == "" {
		return nil, businessError(CodePropertyNotFound, "booking %d has no property assigned", bookingID)
	}
	property, err := s.loadProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	ownerID, hasOwner, err := property.OwnerID()
	if !hasOwner {
		return nil, businessError(CodeOwnerNotFound, "property %s does not have an owner userId", propertyID)
	}
	if err != nil {
		return nil, businessError(CodeInvalidOwnerID, "property %s has an invalid owner userId %q", propertyID, *property.OwnerUserID)
	}
	owner, err := s.ledger.FindUser(ctx, ownerID)
	if err != nil {
		return nil, notFoundAs(err, CodeOwnerNotFound, "owner %d of property %s not found", ownerID, propertyID)
	}
	ownerWallet, ok := owner.Wallet()
	if !ok {
		return nil, businessError(CodeWalletAddressMissing,
			"the owner of property %s (user %d) has not configured a wallet address; the booking cannot be paid until they do", propertyID, ownerID)
	}

	details := &BookingDetails{
		BookingID:          booking.ID,
		Status:             booking.Status,
		TotalPrice:         booking.TotalPrice,
		CheckInDate:        booking.CheckInDate.Format(time.DateOnly),
		CheckOutDate:       booking.CheckOutDate.Format(time.DateOnly),
		PropertyID:         propertyID,
		PropertyTitle:      property.TitleOr("Property #" + propertyID),
		PropertyPrice:      property.DailyPrice,
		OwnerWalletAddress: ownerWallet,
		UserID:             booking.UserID,
	}

	guest, err := s.ledger.FindUser(ctx, booking.UserID)
	switch {
	case err == nil:
		details.UserFirstName = guest.FirstName
		details.UserLastName = guest.LastName
		details.UserEmail = guest.Email
		if wallet, ok := guest.Wallet(); ok {
			details.UserWalletAddress = &wallet
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}
	return details, nil
}

// PropertyInfo is the pricing summary shown before a booking is paid.
type PropertyInfo struct {
	ID                    string          `json:"id"`
	OwnerID               *int64          `json:"ownerId"`
	PricePerNight         decimal.Decimal `json:"pricePerNight"`
	MaxNegotiationPercent *int            `json:"maxNegotiationPercent"`
	DiscountEnabled       bool            `json:"discountEnabled"`
	IsNegotiable          bool            `json:"isNegotiable"`
}

func (s *SettlementService) PropertyInfo(ctx context.Context, propertyID string) (*PropertyInfo, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return nil, businessError(CodeInvalidRequest, "property id is required")
	}
	property, err := s.loadProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	info := &PropertyInfo{
		ID:                    property.ID,
		PricePerNight:         DecimalFromFloat(property.DailyPrice),
		MaxNegotiationPercent: property.MaxNegotiationPercent,
		DiscountEnabled:       property.DiscountEnabled,
		IsNegotiable:          property.IsNegotiable,
	}
	if ownerID, ok, err := property.OwnerID(); ok && err == nil {
		info.OwnerID = &ownerID
	}
	return info, nil
}

// TxStatus reports a recorded transaction by hash.
type TxStatus struct {
	TxHash      string                   `json:"txHash"`
	Status      models.TransactionStatus `json:"status"`
	BlockNumber *int64                   `json:"blockNumber"`
	BookingID   *int64                   `json:"bookingId"`
}

func (s *SettlementService) TxStatus(ctx context.Context, hash string) (*TxStatus, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, businessError(CodeInvalidRequest, "transaction hash is required")
	}
	record, err := s.ledger.FindTransactionByHash(ctx, hash)
	if err != nil {
		return nil, notFoundAs(err, CodeTxNotFound, "transaction not found: %s", hash)
	}
	return &TxStatus{
		TxHash:    record.TxHash,
		Status:    record.Status,
		BookingID: record.BookingID,
	}, nil
}

// ListTransactions pages through recorded transactions, newest first.
func (s *SettlementService) ListTransactions(ctx context.Context, filter TransactionFilter, pg utils.Pagination) ([]models.TransactionRecord, int64, error) {
	return s.ledger.ListTransactions(ctx, filter, pg)
}

// UpdateWalletAddress stores the wallet a user pays from or gets paid to.
func (s *SettlementService) UpdateWalletAddress(ctx context.Context, userID int64, wallet string) (*models.UserAccount, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || strings.EqualFold(wallet, "null") {
		return nil, businessError(CodeInvalidRequest, "walletAddress is required")
	}
	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, CodeUserNotFound, "user not found: %d", userID)
	}
	user.WalletAddress = &wallet
	if err := s.ledger.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[Settlement] wallet of user %d set to %s", userID, wallet)
	return user, nil
}

// notFoundAs maps a missing row onto code; other errors pass through.
func notFoundAs(err error, code ErrorCode, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return businessError(code, format, args...)
	}
	return asBusinessError(err, format, args...)
}

// asBusinessError keeps business errors and turns anything else into a DATABASE_ERROR.
func asBusinessError(err error, format string, args ...any) error {
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	return storageError(err, format, args...)
}
