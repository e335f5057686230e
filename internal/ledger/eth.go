package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/identity"
)

// Backend is what EthClient needs from a node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type boundContract struct {
	abi      abi.ABI
	contract *bind.BoundContract
}

// EthClient implements Client on top of go-ethereum contract bindings.
type EthClient struct {
	backend   Backend
	contracts map[Contract]boundContract
	signer    *identity.Signer
	chainID   *big.Int
	timeout   time.Duration
	close     func()
}

// Dial connects to the configured RPC endpoint and binds every contract.
// Event subscriptions need a websocket or IPC endpoint.
func Dial(ctx context.Context, cfg config.ChainConfig, signer *identity.Signer) (*EthClient, error) {
	conn, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}
	c, err := NewEthClient(conn, cfg, signer)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.close = conn.Close
	return c, nil
}

// Close releases the node connection, if this client owns one.
func (c *EthClient) Close() {
	if c.close != nil {
		c.close()
	}
}

// NewEthClient binds the configured contracts on an existing backend.
func NewEthClient(backend Backend, cfg config.ChainConfig, signer *identity.Signer) (*EthClient, error) {
	contracts := make(map[Contract]boundContract, len(Contracts))
	for name, addr := range Addresses(cfg.Contracts) {
		parsed, err := LoadABI(name)
		if err != nil {
			return nil, err
		}
		contracts[name] = boundContract{
			abi:      parsed,
			contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
		}
	}
	return &EthClient{
		backend:   backend,
		contracts: contracts,
		signer:    signer,
		chainID:   big.NewInt(cfg.ChainID),
		timeout:   cfg.Timeout,
	}, nil
}

func (c *EthClient) bound(name Contract) (boundContract, error) {
	b, ok := c.contracts[name]
	if !ok {
		return boundContract{}, fmt.Errorf("unknown contract %s", name)
	}
	return b, nil
}

// withTimeout bounds a single RPC round trip.
func (c *EthClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Write signs and submits a transaction. It returns once the node accepted
// it; waiting for inclusion is up to the caller.
func (c *EthClient) Write(ctx context.Context, name Contract, method string, args ...any) (common.Hash, error) {
	b, err := c.bound(name)
	if err != nil {
		return common.Hash{}, err
	}
	if c.signer == nil || c.signer.Key() == nil {
		return common.Hash{}, ErrNoSigner
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.signer.Key(), c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	opts.Context = callCtx

	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s.%s: %w", name, method, err)
	}
	return tx.Hash(), nil
}

// Read performs a constant call and returns the unpacked outputs.
func (c *EthClient) Read(ctx context.Context, name Contract, method string, args ...any) ([]any, error) {
	b, err := c.bound(name)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out []any
	if err := b.contract.Call(&bind.CallOpts{Context: callCtx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", name, method, err)
	}
	return out, nil
}

// Balance returns the latest native balance of account in wei.
func (c *EthClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.backend.BalanceAt(callCtx, account, nil)
}

type ethSubscription struct {
	cancel context.CancelFunc
}

func (s *ethSubscription) Unsubscribe() {
	s.cancel()
}

// Watch streams decoded events to onLogs until ctx is cancelled or the
// subscription is dropped by the node. Each delivery carries one log.
func (c *EthClient) Watch(ctx context.Context, name Contract, event string, onLogs func([]LogEntry)) (Subscription, error) {
	b, err := c.bound(name)
	if err != nil {
		return nil, err
	}
	if _, ok := b.abi.Events[event]; !ok {
		return nil, fmt.Errorf("%s has no event %s", name, event)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	logs, sub, err := b.contract.WatchLogs(&bind.WatchOpts{Context: watchCtx}, event)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s.%s: %w", name, event, err)
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				entry, err := DecodeLog(b.abi, name, event, lg)
				if err != nil {
					log.Printf("Skipping undecodable %s.%s log in tx %s: %v", name, event, lg.TxHash.Hex(), err)
					continue
				}
				onLogs([]LogEntry{entry})
			case err := <-sub.Err():
				if err != nil {
					log.Printf("Subscription to %s.%s ended: %v", name, event, err)
				}
				return
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return &ethSubscription{cancel: cancel}, nil
}

// DecodeLog unpacks both the indexed topics and the data section of lg.
func DecodeLog(parsed abi.ABI, name Contract, event string, lg types.Log) (LogEntry, error) {
	ev, ok := parsed.Events[event]
	if !ok {
		return LogEntry{}, fmt.Errorf("%s has no event %s", name, event)
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return LogEntry{}, errors.New("event signature mismatch")
	}

	args := make(map[string]any)
	if len(lg.Data) > 0 {
		if err := parsed.UnpackIntoMap(args, event, lg.Data); err != nil {
			return LogEntry{}, fmt.Errorf("failed to unpack data: %w", err)
		}
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return LogEntry{}, fmt.Errorf("failed to parse topics: %w", err)
	}

	return LogEntry{
		Contract:    name,
		Event:       event,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		Args:        args,
	}, nil
}
