package blockchain

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// Configuration failures: fix the deployment, do not retry.
	ErrNotConfigured       = errors.New("contract address not configured")
	ErrSignerNotConfigured = errors.New("private key not configured for sending transactions")

	// Connectivity failures: safe to retry later.
	ErrUnreachable  = errors.New("cannot connect to blockchain network")
	ErrInterrupted  = errors.New("transaction confirmation interrupted")
	ErrNotConfirmed = errors.New("transaction sent but not confirmed")

	// Definitive outcomes: repeating the same call will not help.
	ErrContractNotFound    = errors.New("contract not found")
	ErrUnauthorized        = errors.New("wallet is not authorized to complete bookings")
	ErrInsufficientBalance = errors.New("contract balance is insufficient")
	ErrSubmission          = errors.New("transaction submission failed")
	ErrReverted            = errors.New("transaction reverted on blockchain")
	ErrFundsNotDistributed = errors.New("funds were not distributed")
	ErrBookingNotOnChain   = errors.New("booking not found on blockchain")
)

// Retryable reports whether err is a transient connectivity failure, as opposed
// to a configuration problem or a definitive on-chain outcome.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrInterrupted) ||
		errors.Is(err, ErrNotConfirmed)
}

// AuthorizationError names every address the signing wallet was compared with.
type AuthorizationError struct {
	Wallet        string
	Admin         string
	FallbackAdmin string
	Host          string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: signing wallet (%s) is neither admin (%s), fallback admin (%s) nor host (%s)",
		e.Wallet, orUnknown(e.Admin), orUnknown(e.FallbackAdmin), orUnknown(e.Host))
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// BalanceShortfallError reports a contract holding less than a booking's escrow.
type BalanceShortfallError struct {
	Expected *big.Int
	Actual   *big.Int
}

// Missing is the amount the contract would need to receive to cover the booking.
func (e *BalanceShortfallError) Missing() *big.Int {
	return new(big.Int).Sub(e.Expected, e.Actual)
}

func (e *BalanceShortfallError) Error() string {
	return fmt.Sprintf("contract balance is insufficient: expected %s wei, actual %s wei, missing %s wei; the payment may not have been sent to the contract",
		e.Expected, e.Actual, e.Missing())
}

func (e *BalanceShortfallError) Unwrap() error { return ErrInsufficientBalance }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
