package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Offline is the Client used when no node could be reached. Every call
// fails with Err, so callers take their fallback paths.
type Offline struct {
	Err error
}

func (o Offline) Write(ctx context.Context, c Contract, method string, args ...any) (common.Hash, error) {
	return common.Hash{}, o.Err
}

func (o Offline) Read(ctx context.Context, c Contract, method string, args ...any) ([]any, error) {
	return nil, o.Err
}

func (o Offline) Watch(ctx context.Context, c Contract, event string, onLogs func([]LogEntry)) (Subscription, error) {
	return nil, o.Err
}

func (o Offline) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return nil, o.Err
}
