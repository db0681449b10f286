package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProcessReclamationRefund pays refundWei to recipient and penaltyWei to the
// host, taking the refund out of rent or deposit. It returns once the
// transaction is accepted by the node.
func (c *ContractClient) ProcessReclamationRefund(ctx context.Context, bookingID int64, recipient string, refundWei, penaltyWei *big.Int, refundFromRent bool) (string, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return "", err
	}
	to, err := parseAddress("recipient", recipient)
	if err != nil {
		return "", err
	}
	if err := nonNegative("refund", refundWei); err != nil {
		return "", err
	}
	if err := nonNegative("penalty", penaltyWei); err != nil {
		return "", err
	}
	return c.transact(ctx, "processReclamationRefund", id, to, refundWei, penaltyWei, refundFromRent)
}

func (c *ContractClient) ProcessPartialRefund(ctx context.Context, bookingID int64, recipient string, refundWei *big.Int, refundFromRent bool) (string, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return "", err
	}
	to, err := parseAddress("recipient", recipient)
	if err != nil {
		return "", err
	}
	if err := nonNegative("refund", refundWei); err != nil {
		return "", err
	}
	return c.transact(ctx, "processPartialRefund", id, to, refundWei, refundFromRent)
}

// SetActiveReclamation flags a booking as disputed, which blocks completion.
func (c *ContractClient) SetActiveReclamation(ctx context.Context, bookingID int64, active bool) (string, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return "", err
	}
	return c.transact(ctx, "setActiveReclamation", id, active)
}

func (c *ContractClient) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	hash, err := c.submit(ctx, method, args...)
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// submit signs and sends a zero-value call to the escrow.
func (c *ContractClient) submit(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if !c.Configured() {
		return common.Hash{}, ErrNotConfigured
	}
	key, from, err := c.signer()
	if err != nil {
		return common.Hash{}, err
	}
	input, err := escrow.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode %s: %w", method, err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: fetch nonce for %s: %v", ErrUnreachable, hexAddress(from), err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: suggest gas price: %v", ErrUnreachable, err)
	}

	to := c.contract
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      c.gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s: %v", ErrSubmission, method, err)
	}

	hash := signed.Hash()
	log.Printf("[Blockchain] %s submitted from %s: %s", method, hexAddress(from), hash.Hex())
	return hash, nil
}

// waitForReceipt polls until the node reports a receipt or the attempt ceiling
// is reached. Failed polls are retried; cancellation of ctx stops the wait.
func (c *ContractClient) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v (transaction %s)", ErrInterrupted, ctxErr, hash.Hex())
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Printf("[Blockchain] receipt poll %d/%d for %s failed: %v", attempt, c.poll.MaxAttempts, hash.Hex(), err)
		}
		if attempt == c.poll.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.poll.Interval); err != nil {
			return nil, fmt.Errorf("%w: %v (transaction %s)", ErrInterrupted, err, hash.Hex())
		}
	}
	return nil, fmt.Errorf("%w: receipt not found after %d attempts, transaction hash %s",
		ErrNotConfirmed, c.poll.MaxAttempts, hash.Hex())
}

func nonNegative(field string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("%s amount must be a non-negative integer", field)
	}
	return nil
}
