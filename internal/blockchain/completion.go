package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CompleteBooking releases a booking's escrow to host and guest and returns the
// transaction hash once the release is confirmed and the contract reports the
// booking's funds as paid out.
//
// The signing wallet must be the contract admin, the fallback admin or the
// booking's host, and the contract must hold at least the booking's rent plus
// deposit before anything is submitted.
func (c *ContractClient) CompleteBooking(ctx context.Context, bookingID int64) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	id, err := uint256ID(bookingID)
	if err != nil {
		return "", err
	}

	if _, err := c.ChainID(ctx); err != nil {
		return "", err
	}
	code, err := c.backend.CodeAt(ctx, c.contract, nil)
	if err != nil {
		return "", fmt.Errorf("%w: cannot verify contract at address %s: %v", ErrUnreachable, hexAddress(c.contract), err)
	}
	if len(code) == 0 {
		return "", fmt.Errorf("%w at address %s, deploy the contract first", ErrContractNotFound, hexAddress(c.contract))
	}

	_, wallet, err := c.signer()
	if err != nil {
		return "", err
	}
	walletHex := hexAddress(wallet)

	admin, ok := c.lookupAdmin(ctx, walletHex)
	onChain, found := c.lookupBooking(ctx, bookingID, walletHex)

	authErr := &AuthorizationError{Wallet: walletHex, FallbackAdmin: hexAddress(c.fallbackAdmin)}
	if ok {
		authErr.Admin = hexAddress(admin)
	}
	if found {
		authErr.Host = hexAddress(onChain.Host)
	}
	if !c.authorized(wallet, admin, ok, onChain, found) {
		return "", authErr
	}

	if found {
		if err := c.checkBalance(ctx, walletHex, onChain); err != nil {
			return "", err
		}
	}

	hash, err := c.submit(ctx, "completeBooking", id)
	if err != nil {
		return "", err
	}

	receipt, err := c.waitForReceipt(ctx, hash)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: transaction %s", ErrReverted, hash.Hex())
	}

	if err := c.verifyDistributed(ctx, bookingID, walletHex, hash); err != nil {
		return "", err
	}

	log.Printf("[Blockchain] booking %d completed on-chain: %s", bookingID, hash.Hex())
	return hash.Hex(), nil
}

func (c *ContractClient) authorized(wallet, admin common.Address, adminKnown bool, onChain *OnChainBooking, found bool) bool {
	switch {
	case adminKnown && wallet == admin:
		return true
	case wallet == c.fallbackAdmin:
		return true
	case found && onChain.Host != (common.Address{}) && wallet == onChain.Host:
		return true
	default:
		return false
	}
}

// lookupAdmin is best-effort: a contract without an admin getter, or a failed
// read, leaves the admin unknown.
func (c *ContractClient) lookupAdmin(ctx context.Context, from string) (common.Address, bool) {
	admin, err := c.Admin(ctx, from)
	if err != nil {
		log.Printf("[Blockchain] admin lookup failed: %v", err)
		return common.Address{}, false
	}
	return admin, admin != (common.Address{})
}

// lookupBooking is best-effort: the completion call itself is the authoritative
// check that the booking exists.
func (c *ContractClient) lookupBooking(ctx context.Context, bookingID int64, from string) (*OnChainBooking, bool) {
	booking, err := c.GetBooking(ctx, bookingID, from)
	if err != nil {
		log.Printf("[Blockchain] booking %d lookup failed: %v", bookingID, err)
		return nil, false
	}
	if booking.Distributed() {
		log.Printf("[Blockchain] booking %d holds no escrowed funds", bookingID)
	}
	return booking, true
}

// checkBalance fails only on a confirmed shortfall; an unreadable balance is
// left for the contract call to reject.
func (c *ContractClient) checkBalance(ctx context.Context, from string, onChain *OnChainBooking) error {
	balance, err := c.ContractBalance(ctx, from)
	if err != nil {
		log.Printf("[Blockchain] contract balance lookup failed: %v", err)
		return nil
	}
	expected := onChain.Outstanding()
	if balance.Cmp(expected) < 0 {
		return &BalanceShortfallError{Expected: expected, Actual: balance}
	}
	return nil
}

func (c *ContractClient) verifyDistributed(ctx context.Context, bookingID int64, from string, hash common.Hash) error {
	if err := c.sleep(ctx, c.poll.SettleDelay); err != nil {
		return fmt.Errorf("%w: %v (transaction %s)", ErrInterrupted, err, hash.Hex())
	}
	after, err := c.GetBooking(ctx, bookingID, from)
	if err != nil {
		if !errors.Is(err, ErrBookingNotOnChain) {
			log.Printf("[Blockchain] post-completion read of booking %d failed: %v", bookingID, err)
		}
		return nil
	}
	if !after.Distributed() {
		return fmt.Errorf("%w: booking %d still holds rent=%s wei, deposit=%s wei (transaction %s)",
			ErrFundsNotDistributed, bookingID, after.Rent, after.Deposit, hash.Hex())
	}
	return nil
}
