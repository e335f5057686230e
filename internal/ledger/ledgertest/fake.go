// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"iot-ledger-backend/internal/ledger"
)

// ErrUnavailable is what an unstubbed read returns.
var ErrUnavailable = errors.New("ledger unavailable")

// Call is one recorded invocation of Write or Read.
type Call struct {
	Contract ledger.Contract
	Method   string
	Args     []any
}

// Client is a ledger.Client whose behavior is set per test through the Func
// fields. Unset fields fall back to simple defaults: writes succeed with a
// hash derived from the call, reads fail, balances are zero and watches are
// kept so tests can Emit events.
type Client struct {
	WriteFunc   func(ctx context.Context, c ledger.Contract, method string, args ...any) (common.Hash, error)
	ReadFunc    func(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error)
	WatchFunc   func(ctx context.Context, c ledger.Contract, event string, onLogs func([]ledger.LogEntry)) (ledger.Subscription, error)
	BalanceFunc func(ctx context.Context, account common.Address) (*big.Int, error)

	mu       sync.Mutex
	writes   []Call
	reads    []Call
	watchers map[string][]*watcher
}

type watcher struct {
	onLogs func([]ledger.LogEntry)
	active bool
}

type subscription struct {
	client *Client
	w      *watcher
}

func (s *subscription) Unsubscribe() {
	s.client.mu.Lock()
	s.w.active = false
	s.client.mu.Unlock()
}

func (f *Client) Write(ctx context.Context, c ledger.Contract, method string, args ...any) (common.Hash, error) {
	f.mu.Lock()
	f.writes = append(f.writes, Call{Contract: c, Method: method, Args: args})
	n := len(f.writes)
	f.mu.Unlock()

	if f.WriteFunc != nil {
		return f.WriteFunc(ctx, c, method, args...)
	}
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s.%s#%d", c, method, n))), nil
}

func (f *Client) Read(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	f.reads = append(f.reads, Call{Contract: c, Method: method, Args: args})
	f.mu.Unlock()

	if f.ReadFunc != nil {
		return f.ReadFunc(ctx, c, method, args...)
	}
	return nil, ErrUnavailable
}

func (f *Client) Watch(ctx context.Context, c ledger.Contract, event string, onLogs func([]ledger.LogEntry)) (ledger.Subscription, error) {
	if f.WatchFunc != nil {
		return f.WatchFunc(ctx, c, event, onLogs)
	}
	w := &watcher{onLogs: onLogs, active: true}
	f.mu.Lock()
	if f.watchers == nil {
		f.watchers = make(map[string][]*watcher)
	}
	f.watchers[event] = append(f.watchers[event], w)
	f.mu.Unlock()
	return &subscription{client: f, w: w}, nil
}

func (f *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.BalanceFunc != nil {
		return f.BalanceFunc(ctx, account)
	}
	return new(big.Int), nil
}

// Emit delivers entries to every active watcher of event, synchronously.
func (f *Client) Emit(event string, entries ...ledger.LogEntry) {
	f.mu.Lock()
	var targets []func([]ledger.LogEntry)
	for _, w := range f.watchers[event] {
		if w.active {
			targets = append(targets, w.onLogs)
		}
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(entries)
	}
}

// ActiveWatchers counts the live subscriptions to event.
func (f *Client) ActiveWatchers(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.watchers[event] {
		if w.active {
			n++
		}
	}
	return n
}

// Writes returns the recorded writes in call order.
func (f *Client) Writes() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.writes...)
}

// Reads returns the recorded reads in call order.
func (f *Client) Reads() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.reads...)
}

var _ ledger.Client = (*Client)(nil)
