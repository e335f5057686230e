package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoSigner is returned by writes when no operator key is configured.
var ErrNoSigner = errors.New("no operator key configured for ledger writes")

// LogEntry is one decoded contract event with its arguments keyed by name.
type LogEntry struct {
	Contract    Contract
	Event       string
	TxHash      common.Hash
	BlockNumber uint64
	Args        map[string]any
}

// Subscription is a live event subscription.
type Subscription interface {
	Unsubscribe()
}

// Client is the generic capability set of the ledger: write, read, watch
// events and query native balances.
type Client interface {
	Write(ctx context.Context, c Contract, method string, args ...any) (common.Hash, error)
	Read(ctx context.Context, c Contract, method string, args ...any) ([]any, error)
	Watch(ctx context.Context, c Contract, event string, onLogs func([]LogEntry)) (Subscription, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}
