package services

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stayescrow/internal/blockchain"
)

const recipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func TestReclamationRequiresContract(t *testing.T) {
	f := newSettlementFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.ProcessPartialRefund(ctx, 42, recipient, big.NewInt(1), true)
	assert.Equal(t, CodeContractNotConfigured, CodeOf(err))
	_, err = f.service.SetActiveReclamation(ctx, 42, true)
	assert.Equal(t, CodeContractNotConfigured, CodeOf(err))
	_, err = f.service.OnChainBooking(ctx, 42)
	assert.Equal(t, CodeContractNotConfigured, CodeOf(err))
}

func TestProcessReclamationRefund(t *testing.T) {
	ctx := context.Background()
	valid := ReclamationRefundRequest{
		BookingID:        42,
		RecipientAddress: recipient,
		RefundAmountWei:  big.NewInt(5_000),
		PenaltyAmountWei: big.NewInt(500),
	}

	t.Run("submits", func(t *testing.T) {
		f := newSettlementFixture(t, newFakeContract())
		hash, err := f.service.ProcessReclamationRefund(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, "0xfeed", hash)
		assert.Equal(t, []string{"processReclamationRefund"}, f.contract.txCalls)
	})

	invalid := map[string]func(r *ReclamationRefundRequest){
		"bad recipient":    func(r *ReclamationRefundRequest) { r.RecipientAddress = "0xGuest" },
		"negative refund":  func(r *ReclamationRefundRequest) { r.RefundAmountWei = big.NewInt(-1) },
		"missing penalty":  func(r *ReclamationRefundRequest) { r.PenaltyAmountWei = nil },
		"missing booking":  func(r *ReclamationRefundRequest) { r.BookingID = 0 },
		"negative penalty": func(r *ReclamationRefundRequest) { r.PenaltyAmountWei = big.NewInt(-3) },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			f := newSettlementFixture(t, newFakeContract())
			req := valid
			mutate(&req)

			_, err := f.service.ProcessReclamationRefund(ctx, req)
			assert.Equal(t, CodeInvalidRequest, CodeOf(err))
			assert.Empty(t, f.contract.txCalls)
		})
	}

	t.Run("chain failures are classified", func(t *testing.T) {
		contract := newFakeContract()
		f := newSettlementFixture(t, contract)

		contract.txErr = fmt.Errorf("%w: rpc timeout", blockchain.ErrUnreachable)
		_, err := f.service.ProcessReclamationRefund(ctx, valid)
		assert.Equal(t, CodeBlockchainError, CodeOf(err))
		assert.ErrorIs(t, err, blockchain.ErrUnreachable)

		contract.txErr = blockchain.ErrNotConfigured
		_, err = f.service.ProcessPartialRefund(ctx, 42, recipient, big.NewInt(1), false)
		assert.Equal(t, CodeContractNotConfigured, CodeOf(err))
	})
}

func TestOnChainBookingView(t *testing.T) {
	contract := newFakeContract()
	f := newSettlementFixture(t, contract)
	ctx := context.Background()

	contract.onChain = &blockchain.OnChainBooking{BookingID: 42, Rent: big.NewInt(0), Deposit: big.NewInt(0)}
	_, err := f.service.OnChainBooking(ctx, 42)
	assert.Equal(t, CodeBookingNotOnBlockchain, CodeOf(err))

	contract.onChain = &blockchain.OnChainBooking{
		BookingID:         42,
		Guest:             common.HexToAddress(recipient),
		Host:              common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Rent:              big.NewInt(100),
		Deposit:           big.NewInt(20),
		ReclamationActive: true,
	}
	view, err := f.service.OnChainBooking(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", view.Guest)
	assert.Equal(t, "100", view.RentAmountWei)
	assert.Equal(t, "20", view.DepositAmountWei)
	assert.True(t, view.ReclamationActive)

	contract.onChain, contract.onChainErr = nil, blockchain.ErrBookingNotOnChain
	_, err = f.service.OnChainBooking(ctx, 42)
	assert.Equal(t, CodeBookingNotOnBlockchain, CodeOf(err))
}

func TestReclamationRefundView(t *testing.T) {
	contract := newFakeContract()
	f := newSettlementFixture(t, contract)
	ctx := context.Background()

	_, err := f.service.ReclamationRefund(ctx, 42)
	assert.Equal(t, CodeBlockchainError, CodeOf(err))

	contract.refund = &blockchain.ReclamationRefund{
		BookingID: 42,
		Recipient: common.HexToAddress(recipient),
		Refund:    big.NewInt(70),
		Penalty:   big.NewInt(30),
		Processed: true,
	}
	view, err := f.service.ReclamationRefund(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "70", view.RefundAmountWei)
	assert.Equal(t, "30", view.PenaltyAmountWei)
	assert.True(t, view.Processed)
}
