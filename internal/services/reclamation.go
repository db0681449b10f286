package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/example/stayescrow/internal/blockchain"
)

// ReclamationRefundRequest pays out a dispute: refund to recipient, penalty to the host.
type ReclamationRefundRequest struct {
	BookingID        int64
	RecipientAddress string
	RefundAmountWei  *big.Int
	PenaltyAmountWei *big.Int
	RefundFromRent   bool
}

func (s *SettlementService) ProcessReclamationRefund(ctx context.Context, req ReclamationRefundRequest) (string, error) {
	if err := s.requireContract(); err != nil {
		return "", err
	}
	if err := validateRefund(req.BookingID, req.RecipientAddress, req.RefundAmountWei); err != nil {
		return "", err
	}
	if req.PenaltyAmountWei == nil || req.PenaltyAmountWei.Sign() < 0 {
		return "", businessError(CodeInvalidRequest, "penaltyAmountWei must be a non-negative integer")
	}

	hash, err := s.contract.ProcessReclamationRefund(ctx, req.BookingID, req.RecipientAddress, req.RefundAmountWei, req.PenaltyAmountWei, req.RefundFromRent)
	if err != nil {
		return "", chainError(err, "failed to process refund for booking %d", req.BookingID)
	}
	log.Printf("[Reclamation] refund for booking %d submitted: %s", req.BookingID, hash)
	return hash, nil
}

func (s *SettlementService) ProcessPartialRefund(ctx context.Context, bookingID int64, recipient string, refundWei *big.Int, refundFromRent bool) (string, error) {
	if err := s.requireContract(); err != nil {
		return "", err
	}
	if err := validateRefund(bookingID, recipient, refundWei); err != nil {
		return "", err
	}

	hash, err := s.contract.ProcessPartialRefund(ctx, bookingID, recipient, refundWei, refundFromRent)
	if err != nil {
		return "", chainError(err, "failed to process partial refund for booking %d", bookingID)
	}
	log.Printf("[Reclamation] partial refund for booking %d submitted: %s", bookingID, hash)
	return hash, nil
}

func (s *SettlementService) SetActiveReclamation(ctx context.Context, bookingID int64, active bool) (string, error) {
	if err := s.requireContract(); err != nil {
		return "", err
	}
	if bookingID <= 0 {
		return "", businessError(CodeInvalidRequest, "bookingId is required")
	}

	hash, err := s.contract.SetActiveReclamation(ctx, bookingID, active)
	if err != nil {
		return "", chainError(err, "failed to set active reclamation for booking %d", bookingID)
	}
	return hash, nil
}

// OnChainBookingView renders the escrow's record of a booking for API callers.
type OnChainBookingView struct {
	BookingID         int64  `json:"bookingId"`
	Guest             string `json:"guest"`
	Host              string `json:"host"`
	RentAmountWei     string `json:"rentAmountWei"`
	DepositAmountWei  string `json:"depositAmountWei"`
	ReclamationActive bool   `json:"hasActiveReclamation"`
	Completed         bool   `json:"completed"`
}

// OnChainBooking reads a booking from the escrow contract.
func (s *SettlementService) OnChainBooking(ctx context.Context, bookingID int64) (*OnChainBookingView, error) {
	if err := s.requireContract(); err != nil {
		return nil, err
	}
	booking, err := s.contract.GetBookingWithReclamation(ctx, bookingID, "")
	if err != nil {
		return nil, chainError(err, "failed to read booking %d from blockchain", bookingID)
	}
	if !booking.Exists() {
		return nil, businessError(CodeBookingNotOnBlockchain, "booking %d does not exist on blockchain; payment must be made first", bookingID)
	}
	return &OnChainBookingView{
		BookingID:         bookingID,
		Guest:             strings.ToLower(booking.Guest.Hex()),
		Host:              strings.ToLower(booking.Host.Hex()),
		RentAmountWei:     booking.Rent.String(),
		DepositAmountWei:  booking.Deposit.String(),
		ReclamationActive: booking.ReclamationActive,
		Completed:         booking.Completed,
	}, nil
}

// ReclamationRefundView renders a recorded dispute payout.
type ReclamationRefundView struct {
	BookingID        int64  `json:"bookingId"`
	Recipient        string `json:"recipient"`
	RefundAmountWei  string `json:"refundAmountWei"`
	PenaltyAmountWei string `json:"penaltyAmountWei"`
	Processed        bool   `json:"processed"`
}

func (s *SettlementService) ReclamationRefund(ctx context.Context, bookingID int64) (*ReclamationRefundView, error) {
	if err := s.requireContract(); err != nil {
		return nil, err
	}
	refund, err := s.contract.GetReclamationRefund(ctx, bookingID)
	if err != nil {
		return nil, chainError(err, "failed to read reclamation refund for booking %d", bookingID)
	}
	return &ReclamationRefundView{
		BookingID:        bookingID,
		Recipient:        strings.ToLower(refund.Recipient.Hex()),
		RefundAmountWei:  refund.Refund.String(),
		PenaltyAmountWei: refund.Penalty.String(),
		Processed:        refund.Processed,
	}, nil
}

func (s *SettlementService) requireContract() error {
	if !s.contractConfigured() {
		return businessError(CodeContractNotConfigured, "smart contract address not configured")
	}
	return nil
}

func validateRefund(bookingID int64, recipient string, refundWei *big.Int) error {
	if bookingID <= 0 {
		return businessError(CodeInvalidRequest, "bookingId is required")
	}
	if !common.IsHexAddress(strings.TrimSpace(recipient)) {
		return businessError(CodeInvalidRequest, "recipientAddress %q is not a valid address", recipient)
	}
	if refundWei == nil || refundWei.Sign() < 0 {
		return businessError(CodeInvalidRequest, "refundAmountWei must be a non-negative integer")
	}
	return nil
}

// chainError classifies a contract client failure into a business code.
func chainError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, blockchain.ErrNotConfigured):
		return wrapBusinessError(CodeContractNotConfigured, err, "%s: %v", msg, err)
	case errors.Is(err, blockchain.ErrBookingNotOnChain):
		return wrapBusinessError(CodeBookingNotOnBlockchain, err, "%s: %v", msg, err)
	default:
		return wrapBusinessError(CodeBlockchainError, err, "%s: %v", msg, err)
	}
}
