package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultFallbackAdmin is the first account of a local development chain. It is
// accepted as an authorized signer and used as the caller of anonymous reads.
const DefaultFallbackAdmin = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// DefaultGasLimit bounds every state-changing escrow call.
const DefaultGasLimit uint64 = 3_000_000

// Backend defines the subset of the Ethereum RPC used by the contract client.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// PollConfig bounds the wait for a submitted transaction.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	SettleDelay time.Duration
}

// DefaultPollConfig waits up to thirty one-second polls for a receipt.
func DefaultPollConfig() PollConfig {
	return PollConfig{Interval: time.Second, MaxAttempts: 30, SettleDelay: 3 * time.Second}
}

// Config describes the escrow deployment and the signing account.
type Config struct {
	ContractAddress string
	PrivateKey      string
	FallbackAdmin   string
	GasLimit        uint64
	Poll            PollConfig
}

// ContractClient talks to the booking escrow contract. It is safe for
// concurrent use; all state is fixed at construction.
type ContractClient struct {
	backend       Backend
	closer        func()
	contract      common.Address
	configured    bool
	key           *ecdsa.PrivateKey
	keyErr        error
	fallbackAdmin common.Address
	gasLimit      uint64
	poll          PollConfig
	sleep         func(ctx context.Context, d time.Duration) error
}

// Dial connects to the JSON-RPC endpoint and builds a client over it. The
// returned client owns the connection; call Close on shutdown.
func Dial(ctx context.Context, rpcURL string, cfg Config) (*ContractClient, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, fmt.Errorf("blockchain rpc url required")
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
	}
	rpcClient, err := rpc.DialOptions(ctx, trimmed, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial blockchain rpc %s: %w", trimmed, err)
	}
	eth := ethclient.NewClient(rpcClient)

	client, err := NewContractClient(eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	client.closer = eth.Close
	return client, nil
}

// NewContractClient builds a client over an existing backend. A missing private
// key is not an error here; read-only calls keep working and state-changing
// calls report ErrSignerNotConfigured.
func NewContractClient(backend Backend, cfg Config) (*ContractClient, error) {
	if backend == nil {
		return nil, errors.New("blockchain backend required")
	}

	c := &ContractClient{
		backend:       backend,
		fallbackAdmin: common.HexToAddress(DefaultFallbackAdmin),
		gasLimit:      cfg.GasLimit,
		poll:          cfg.Poll,
		sleep:         sleepContext,
	}

	if addr := strings.TrimSpace(cfg.ContractAddress); addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address %q", addr)
		}
		c.contract = common.HexToAddress(addr)
		c.configured = true
	}
	if fb := strings.TrimSpace(cfg.FallbackAdmin); common.IsHexAddress(fb) {
		c.fallbackAdmin = common.HexToAddress(fb)
	}
	if c.gasLimit == 0 {
		c.gasLimit = DefaultGasLimit
	}
	defaults := DefaultPollConfig()
	if c.poll.Interval <= 0 {
		c.poll.Interval = defaults.Interval
	}
	if c.poll.MaxAttempts <= 0 {
		c.poll.MaxAttempts = defaults.MaxAttempts
	}
	if c.poll.SettleDelay < 0 {
		c.poll.SettleDelay = 0
	}

	c.key, c.keyErr = parsePrivateKey(cfg.PrivateKey)
	if c.keyErr == nil {
		log.Printf("[Blockchain] signing wallet %s", hexAddress(crypto.PubkeyToAddress(c.key.PublicKey)))
	}
	return c, nil
}

// Close releases the RPC connection when the client owns one.
func (c *ContractClient) Close() {
	if c != nil && c.closer != nil {
		c.closer()
	}
}

// Configured reports whether an escrow contract address is set.
func (c *ContractClient) Configured() bool {
	return c != nil && c.configured
}

// ContractAddress renders the escrow address, or "" when none is configured.
func (c *ContractClient) ContractAddress() string {
	if !c.Configured() {
		return ""
	}
	return hexAddress(c.contract)
}

// SignerAddress renders the signing wallet, or "" when no usable key is configured.
func (c *ContractClient) SignerAddress() string {
	if c.key == nil {
		return ""
	}
	return hexAddress(crypto.PubkeyToAddress(c.key.PublicKey))
}

// ChainID reads the chain id from the RPC endpoint.
func (c *ContractClient) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return id, nil
}

// CreateBookingPaymentData encodes the calldata a guest submits, with value
// rent+deposit, to fund the escrow. Nothing is sent.
func (c *ContractClient) CreateBookingPaymentData(bookingID int64, host, tenant string, rentWei, depositWei *big.Int) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	id, err := uint256ID(bookingID)
	if err != nil {
		return nil, err
	}
	hostAddr, err := parseAddress("host", host)
	if err != nil {
		return nil, err
	}
	tenantAddr, err := parseAddress("tenant", tenant)
	if err != nil {
		return nil, err
	}
	if rentWei == nil || rentWei.Sign() < 0 || depositWei == nil || depositWei.Sign() < 0 {
		return nil, errors.New("rent and deposit must be non-negative")
	}
	return escrow.Pack("createBookingPayment", id, hostAddr, tenantAddr, rentWei, depositWei)
}

func (c *ContractClient) signer() (*ecdsa.PrivateKey, common.Address, error) {
	if c.keyErr != nil {
		return nil, common.Address{}, c.keyErr
	}
	return c.key, crypto.PubkeyToAddress(c.key.PublicKey), nil
}

// callerAddress picks the "from" of a read call. Reads never fail for lack of a
// caller: blank, zero, placeholder or malformed addresses become the fallback admin.
func (c *ContractClient) callerAddress(from string) common.Address {
	from = strings.TrimSpace(from)
	switch strings.ToLower(from) {
	case "", "0x", "0x0", "null":
		return c.fallbackAdmin
	}
	if !common.IsHexAddress(from) {
		return c.fallbackAdmin
	}
	addr := common.HexToAddress(from)
	if addr == (common.Address{}) {
		return c.fallbackAdmin
	}
	return addr
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	normalized := normalizePrivateKey(raw)
	if normalized == "" {
		return nil, ErrSignerNotConfigured
	}
	key, err := crypto.HexToECDSA(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key format: %v", ErrSignerNotConfigured, err)
	}
	return key, nil
}

// normalizePrivateKey accepts keys with or without a 0x prefix.
func normalizePrivateKey(raw string) string {
	key := strings.TrimSpace(raw)
	if strings.HasPrefix(key, "0x") || strings.HasPrefix(key, "0X") {
		key = key[2:]
	}
	return key
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func uint256ID(id int64) (*big.Int, error) {
	if id < 0 {
		return nil, fmt.Errorf("booking id %d cannot be negative", id)
	}
	return big.NewInt(id), nil
}

// hexAddress renders addresses as lowercase 0x-prefixed hex.
func hexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
