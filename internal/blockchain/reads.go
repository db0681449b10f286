package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var errEmptyResult = errors.New("empty call result")

// OnChainBooking is the escrow's record of a booking. Rent and Deposit are the
// amounts still held by the contract.
type OnChainBooking struct {
	BookingID         int64
	Guest             common.Address
	Host              common.Address
	Rent              *big.Int
	Deposit           *big.Int
	ReclamationActive bool
	Completed         bool
}

// Exists reports whether the contract returned anything but the zero record.
func (b *OnChainBooking) Exists() bool {
	return b.Guest != (common.Address{}) || b.Host != (common.Address{})
}

// Outstanding is the rent plus deposit still escrowed.
func (b *OnChainBooking) Outstanding() *big.Int {
	return new(big.Int).Add(b.Rent, b.Deposit)
}

// Distributed reports whether both escrowed amounts have been paid out.
func (b *OnChainBooking) Distributed() bool {
	return b.Rent.Sign() == 0 && b.Deposit.Sign() == 0
}

// ReclamationRefund is the escrow's record of a dispute payout.
type ReclamationRefund struct {
	BookingID int64
	Recipient common.Address
	Refund    *big.Int
	Penalty   *big.Int
	Processed bool
}

func (c *ContractClient) BookingExists(ctx context.Context, bookingID int64, from string) (bool, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return false, err
	}
	values, err := c.call(ctx, c.callerAddress(from), "bookingExistsCheck", id)
	if err != nil {
		return false, err
	}
	exists, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("decode bookingExistsCheck: unexpected %T", values[0])
	}
	return exists, nil
}

// GetBooking reads the escrowed amounts and parties for a booking. An empty
// response is reported as ErrBookingNotOnChain.
func (c *ContractClient) GetBooking(ctx context.Context, bookingID int64, from string) (*OnChainBooking, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, c.callerAddress(from), "getBooking", id)
	if errors.Is(err, errEmptyResult) {
		return nil, fmt.Errorf("%w: %d", ErrBookingNotOnChain, bookingID)
	}
	if err != nil {
		return nil, err
	}
	return decodeBooking(bookingID, values, false)
}

func (c *ContractClient) GetBookingWithReclamation(ctx context.Context, bookingID int64, from string) (*OnChainBooking, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, c.callerAddress(from), "getBookingWithReclamation", id)
	if errors.Is(err, errEmptyResult) {
		return nil, fmt.Errorf("%w: %d", ErrBookingNotOnChain, bookingID)
	}
	if err != nil {
		return nil, err
	}
	return decodeBooking(bookingID, values, true)
}

func (c *ContractClient) GetReclamationRefund(ctx context.Context, bookingID int64) (*ReclamationRefund, error) {
	id, err := uint256ID(bookingID)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, c.fallbackAdmin, "getReclamationRefund", id)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("decode getReclamationRefund: got %d values", len(values))
	}
	recipient, ok1 := values[0].(common.Address)
	refund, ok2 := values[1].(*big.Int)
	penalty, ok3 := values[2].(*big.Int)
	processed, ok4 := values[3].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("failed to decode reclamation refund data")
	}
	return &ReclamationRefund{
		BookingID: bookingID,
		Recipient: recipient,
		Refund:    refund,
		Penalty:   penalty,
		Processed: processed,
	}, nil
}

// Admin reads the contract's admin address.
func (c *ContractClient) Admin(ctx context.Context, from string) (common.Address, error) {
	values, err := c.call(ctx, c.callerAddress(from), "admin")
	if err != nil {
		return common.Address{}, err
	}
	admin, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode admin: unexpected %T", values[0])
	}
	return admin, nil
}

// ContractBalance reads the total value held by the escrow.
func (c *ContractClient) ContractBalance(ctx context.Context, from string) (*big.Int, error) {
	values, err := c.call(ctx, c.callerAddress(from), "getContractBalance")
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode getContractBalance: unexpected %T", values[0])
	}
	return balance, nil
}

// call performs an eth_call against the escrow. JSON-RPC errors are contract
// failures; anything else means the node could not be reached.
func (c *ContractClient) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	input, err := escrow.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	to := c.contract
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: input}, nil)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("contract call %s failed: %w", method, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", method, errEmptyResult)
	}

	values, err := escrow.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", method, errEmptyResult)
	}
	return values, nil
}

func decodeBooking(bookingID int64, values []interface{}, withReclamation bool) (*OnChainBooking, error) {
	want := 4
	if withReclamation {
		want = 6
	}
	if len(values) != want {
		return nil, fmt.Errorf("failed to decode booking data: got %d values", len(values))
	}
	guest, ok1 := values[0].(common.Address)
	host, ok2 := values[1].(common.Address)
	rent, ok3 := values[2].(*big.Int)
	deposit, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("failed to decode booking data")
	}
	booking := &OnChainBooking{
		BookingID: bookingID,
		Guest:     guest,
		Host:      host,
		Rent:      rent,
		Deposit:   deposit,
	}
	if withReclamation {
		active, ok5 := values[4].(bool)
		completed, ok6 := values[5].(bool)
		if !ok5 || !ok6 {
			return nil, errors.New("failed to decode booking reclamation flags")
		}
		booking.ReclamationActive = active
		booking.Completed = completed
	}
	return booking, nil
}
