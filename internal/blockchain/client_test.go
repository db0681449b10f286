package blockchain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// development chain accounts #0 and #1
	adminKey    = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	otherKey    = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	otherWallet = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

	contractHex = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
)

var (
	guestAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	hostAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	chainErr error
	code     []byte
	codeErr  error

	admin        common.Address
	adminErr     error
	booking      *OnChainBooking
	bookingAfter *OnChainBooking
	balance      *big.Int

	receiptAfter  int
	receiptNever  bool
	receiptStatus uint64
	receiptCalls  int

	sendErr error
	sent    []*types.Transaction
	callers []common.Address
	calls   map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(31337),
		code:          []byte{0x60, 0x80},
		receiptStatus: types.ReceiptStatusSuccessful,
		calls:         map[string]int{},
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chainID, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return f.code, f.codeErr
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := escrow.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	f.callers = append(f.callers, msg.From)

	booking := f.booking
	if len(f.sent) > 0 && f.bookingAfter != nil {
		booking = f.bookingAfter
	}

	switch method.Name {
	case "admin":
		if f.adminErr != nil {
			return nil, f.adminErr
		}
		return method.Outputs.Pack(f.admin)
	case "getContractBalance":
		if f.balance == nil {
			return nil, errors.New("balance unavailable")
		}
		return method.Outputs.Pack(f.balance)
	case "bookingExistsCheck":
		return method.Outputs.Pack(booking != nil)
	case "getBooking":
		if booking == nil {
			return nil, nil
		}
		return method.Outputs.Pack(booking.Guest, booking.Host, booking.Rent, booking.Deposit)
	case "getBookingWithReclamation":
		if booking == nil {
			return nil, nil
		}
		return method.Outputs.Pack(booking.Guest, booking.Host, booking.Rent, booking.Deposit, booking.ReclamationActive, booking.Completed)
	case "getReclamationRefund":
		return method.Outputs.Pack(guestAddr, big.NewInt(5), big.NewInt(2), true)
	}
	return nil, errors.New("unexpected call " + method.Name)
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.receiptNever || f.receiptCalls < f.receiptAfter {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: hash}, nil
}

func escrowed(rent, deposit int64) *OnChainBooking {
	return &OnChainBooking{Guest: guestAddr, Host: hostAddr, Rent: big.NewInt(rent), Deposit: big.NewInt(deposit)}
}

type recordedSleeps struct {
	durations []time.Duration
	err       error
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	if r.err != nil {
		return r.err
	}
	return ctx.Err()
}

func newTestClient(t *testing.T, backend *fakeBackend, key string) (*ContractClient, *recordedSleeps) {
	t.Helper()
	client, err := NewContractClient(backend, Config{
		ContractAddress: contractHex,
		PrivateKey:      key,
		Poll:            PollConfig{Interval: time.Second, MaxAttempts: 30, SettleDelay: 3 * time.Second},
	})
	require.NoError(t, err)
	sleeps := &recordedSleeps{}
	client.sleep = sleeps.sleep
	return client, sleeps
}

func readyBackend() *fakeBackend {
	backend := newFakeBackend()
	backend.booking = escrowed(100, 20)
	backend.bookingAfter = escrowed(0, 0)
	backend.balance = big.NewInt(120)
	backend.receiptAfter = 3
	return backend
}

func TestCompleteBookingConfirmsAndVerifiesPayout(t *testing.T) {
	backend := readyBackend()
	client, sleeps := newTestClient(t, backend, adminKey)

	hash, err := client.CompleteBooking(context.Background(), 42)
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, 0, tx.Value().Sign())
	assert.Equal(t, DefaultGasLimit, tx.Gas())
	assert.Equal(t, strings.ToLower(contractHex), strings.ToLower(tx.To().Hex()))

	method, err := escrow.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "completeBooking", method.Name)

	sender, err := types.Sender(types.LatestSignerForChainID(backend.chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(DefaultFallbackAdmin), sender)

	assert.Equal(t, 3, backend.receiptCalls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, 3 * time.Second}, sleeps.durations)
	assert.Equal(t, 2, backend.calls["getBooking"])
}

func TestCompleteBookingAuthorizationGate(t *testing.T) {
	other := common.HexToAddress(otherWallet)

	tests := []struct {
		name       string
		key        string
		admin      common.Address
		host       common.Address
		authorized bool
	}{
		{name: "on-chain admin", key: otherKey, admin: other, host: hostAddr, authorized: true},
		{name: "fallback admin", key: adminKey, admin: hostAddr, host: hostAddr, authorized: true},
		{name: "booking host", key: otherKey, admin: guestAddr, host: other, authorized: true},
		{name: "stranger", key: otherKey, admin: guestAddr, host: hostAddr, authorized: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := readyBackend()
			backend.admin = tt.admin
			backend.booking.Host = tt.host
			client, _ := newTestClient(t, backend, tt.key)

			_, err := client.CompleteBooking(context.Background(), 7)
			if tt.authorized {
				require.NoError(t, err)
				assert.Len(t, backend.sent, 1)
				return
			}

			require.ErrorIs(t, err, ErrUnauthorized)
			var authErr *AuthorizationError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, otherWallet, authErr.Wallet)
			assert.Equal(t, strings.ToLower(tt.admin.Hex()), authErr.Admin)
			assert.Equal(t, strings.ToLower(tt.host.Hex()), authErr.Host)
			assert.Equal(t, strings.ToLower(DefaultFallbackAdmin), authErr.FallbackAdmin)
			assert.Contains(t, err.Error(), otherWallet)
			assert.Contains(t, err.Error(), strings.ToLower(DefaultFallbackAdmin))
			assert.Empty(t, backend.sent)
			assert.False(t, Retryable(err))
		})
	}
}

func TestCompleteBookingUnknownAdminAndHostNamedInError(t *testing.T) {
	backend := readyBackend()
	backend.adminErr = errors.New("execution reverted")
	backend.booking = nil
	client, _ := newTestClient(t, backend, otherKey)

	_, err := client.CompleteBooking(context.Background(), 7)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "admin (unknown)")
	assert.Contains(t, err.Error(), "host (unknown)")
}

func TestCompleteBookingBalanceShortfall(t *testing.T) {
	backend := readyBackend()
	backend.balance = big.NewInt(50)
	client, _ := newTestClient(t, backend, adminKey)

	_, err := client.CompleteBooking(context.Background(), 42)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	var shortfall *BalanceShortfallError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "120", shortfall.Expected.String())
	assert.Equal(t, "50", shortfall.Actual.String())
	assert.Equal(t, "70", shortfall.Missing().String())
	assert.Contains(t, err.Error(), "missing 70 wei")
	assert.Empty(t, backend.sent)
}

func TestCompleteBookingToleratesUnreadableBalance(t *testing.T) {
	backend := readyBackend()
	backend.balance = nil
	client, _ := newTestClient(t, backend, adminKey)

	_, err := client.CompleteBooking(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, backend.sent, 1)
}

func TestCompleteBookingReceiptTimeoutIsNotARevert(t *testing.T) {
	backend := readyBackend()
	backend.receiptNever = true
	client, sleeps := newTestClient(t, backend, adminKey)

	_, err := client.CompleteBooking(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.NotErrorIs(t, err, ErrReverted)
	assert.True(t, Retryable(err))
	assert.Equal(t, 30, backend.receiptCalls)
	assert.Len(t, sleeps.durations, 29)
	assert.Contains(t, err.Error(), backend.sent[0].Hash().Hex())
}

func TestCompleteBookingReverted(t *testing.T) {
	backend := readyBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	client, _ := newTestClient(t, backend, adminKey)

	_, err := client.CompleteBooking(context.Background(), 42)
	require.ErrorIs(t, err, ErrReverted)
	assert.NotErrorIs(t, err, ErrNotConfirmed)
	assert.False(t, Retryable(err))
}

func TestCompleteBookingFundsNotDistributed(t *testing.T) {
	backend := readyBackend()
	backend.bookingAfter = escrowed(100, 0)
	client, _ := newTestClient(t, backend, adminKey)

	_, err := client.CompleteBooking(context.Background(), 42)
	require.ErrorIs(t, err, ErrFundsNotDistributed)
	assert.Contains(t, err.Error(), "rent=100 wei")
}

func TestCompleteBookingInterruptedWhilePolling(t *testing.T) {
	backend := readyBackend()
	backend.receiptNever = true
	client, sleeps := newTestClient(t, backend, adminKey)
	sleeps.err = context.Canceled

	_, err := client.CompleteBooking(context.Background(), 42)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, Retryable(err))
	assert.Equal(t, 1, backend.receiptCalls)
}

func TestCompleteBookingConnectivityAndConfigurationFailures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		backend := readyBackend()
		backend.chainErr = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
		client, _ := newTestClient(t, backend, adminKey)

		_, err := client.CompleteBooking(context.Background(), 42)
		require.ErrorIs(t, err, ErrUnreachable)
		assert.True(t, Retryable(err))
	})

	t.Run("no contract code", func(t *testing.T) {
		backend := readyBackend()
		backend.code = nil
		client, _ := newTestClient(t, backend, adminKey)

		_, err := client.CompleteBooking(context.Background(), 42)
		require.ErrorIs(t, err, ErrContractNotFound)
		assert.Contains(t, err.Error(), contractHex)
	})

	t.Run("no signing key", func(t *testing.T) {
		backend := readyBackend()
		client, _ := newTestClient(t, backend, "")

		_, err := client.CompleteBooking(context.Background(), 42)
		require.ErrorIs(t, err, ErrSignerNotConfigured)
		assert.False(t, Retryable(err))
	})

	t.Run("malformed signing key", func(t *testing.T) {
		backend := readyBackend()
		client, _ := newTestClient(t, backend, "0xnothex")

		_, err := client.CompleteBooking(context.Background(), 42)
		require.ErrorIs(t, err, ErrSignerNotConfigured)
		assert.Contains(t, err.Error(), "invalid private key format")
	})

	t.Run("no contract address", func(t *testing.T) {
		client, err := NewContractClient(newFakeBackend(), Config{PrivateKey: adminKey})
		require.NoError(t, err)

		_, err = client.CompleteBooking(context.Background(), 42)
		require.ErrorIs(t, err, ErrNotConfigured)
		assert.False(t, client.Configured())
		assert.Empty(t, client.ContractAddress())
	})
}

func TestPrivateKeyPrefixIsOptional(t *testing.T) {
	withPrefix, _ := newTestClient(t, newFakeBackend(), "0x"+otherKey)
	without, _ := newTestClient(t, newFakeBackend(), otherKey)

	assert.Equal(t, otherWallet, withPrefix.SignerAddress())
	assert.Equal(t, otherWallet, without.SignerAddress())
}

func TestCallerAddressFallsBackForAnonymousReads(t *testing.T) {
	client, _ := newTestClient(t, newFakeBackend(), "")
	fallback := common.HexToAddress(DefaultFallbackAdmin)

	for _, from := range []string{"", "  ", "0x0", "null", "0x", "not-an-address", "0x0000000000000000000000000000000000000000"} {
		assert.Equal(t, fallback, client.callerAddress(from), "from=%q", from)
	}
	assert.Equal(t, common.HexToAddress(otherWallet), client.callerAddress(strings.ToUpper(otherWallet[2:])))
}

func TestReadsUseFallbackCaller(t *testing.T) {
	backend := newFakeBackend()
	backend.booking = escrowed(10, 5)
	client, _ := newTestClient(t, backend, "")

	exists, err := client.BookingExists(context.Background(), 9, "null")
	require.NoError(t, err)
	assert.True(t, exists)

	booking, err := client.GetBooking(context.Background(), 9, "")
	require.NoError(t, err)
	assert.Equal(t, guestAddr, booking.Guest)
	assert.Equal(t, "15", booking.Outstanding().String())
	assert.False(t, booking.Distributed())

	require.Len(t, backend.callers, 2)
	for _, caller := range backend.callers {
		assert.Equal(t, common.HexToAddress(DefaultFallbackAdmin), caller)
	}
}

func TestGetBookingNotOnChain(t *testing.T) {
	client, _ := newTestClient(t, newFakeBackend(), "")

	_, err := client.GetBooking(context.Background(), 404, "")
	require.ErrorIs(t, err, ErrBookingNotOnChain)

	_, err = client.GetBookingWithReclamation(context.Background(), 404, "")
	require.ErrorIs(t, err, ErrBookingNotOnChain)
}

func TestGetBookingWithReclamationAndRefund(t *testing.T) {
	backend := newFakeBackend()
	backend.booking = escrowed(10, 5)
	backend.booking.ReclamationActive = true
	client, _ := newTestClient(t, backend, "")

	booking, err := client.GetBookingWithReclamation(context.Background(), 3, "")
	require.NoError(t, err)
	assert.True(t, booking.ReclamationActive)
	assert.False(t, booking.Completed)

	refund, err := client.GetReclamationRefund(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, guestAddr, refund.Recipient)
	assert.Equal(t, "5", refund.Refund.String())
	assert.Equal(t, "2", refund.Penalty.String())
	assert.True(t, refund.Processed)
}

func TestCreateBookingPaymentData(t *testing.T) {
	client, _ := newTestClient(t, newFakeBackend(), "")
	rent, _ := new(big.Int).SetString("100000000000000000000", 10)
	deposit, _ := new(big.Int).SetString("20000000000000000000", 10)

	data, err := client.CreateBookingPaymentData(42, hostAddr.Hex(), guestAddr.Hex(), rent, deposit)
	require.NoError(t, err)

	method := escrow.Methods["createBookingPayment"]
	assert.Equal(t, method.ID, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 5)
	assert.Equal(t, "42", args[0].(*big.Int).String())
	assert.Equal(t, hostAddr, args[1].(common.Address))
	assert.Equal(t, guestAddr, args[2].(common.Address))
	assert.Equal(t, rent.String(), args[3].(*big.Int).String())
	assert.Equal(t, deposit.String(), args[4].(*big.Int).String())

	_, err = client.CreateBookingPaymentData(42, "0xOwner", guestAddr.Hex(), rent, deposit)
	assert.Error(t, err)
}

func TestReclamationTransactions(t *testing.T) {
	backend := newFakeBackend()
	client, _ := newTestClient(t, backend, adminKey)
	ctx := context.Background()

	hash, err := client.ProcessReclamationRefund(ctx, 5, guestAddr.Hex(), big.NewInt(30), big.NewInt(10), true)
	require.NoError(t, err)
	assert.Equal(t, backend.sent[0].Hash().Hex(), hash)

	_, err = client.ProcessPartialRefund(ctx, 5, guestAddr.Hex(), big.NewInt(15), false)
	require.NoError(t, err)

	_, err = client.SetActiveReclamation(ctx, 5, true)
	require.NoError(t, err)

	require.Len(t, backend.sent, 3)
	var names []string
	for i, tx := range backend.sent {
		assert.Equal(t, uint64(i), tx.Nonce())
		method, err := escrow.MethodById(tx.Data()[:4])
		require.NoError(t, err)
		names = append(names, method.Name)
	}
	assert.Equal(t, []string{"processReclamationRefund", "processPartialRefund", "setActiveReclamation"}, names)

	_, err = client.ProcessPartialRefund(ctx, 5, guestAddr.Hex(), big.NewInt(-1), false)
	assert.Error(t, err)

	backend.sendErr = errors.New("nonce too low")
	_, err = client.SetActiveReclamation(ctx, 5, false)
	require.ErrorIs(t, err, ErrSubmission)
}
