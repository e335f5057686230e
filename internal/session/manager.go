package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"iot-ledger-backend/internal/events"
	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/store"
)

var (
	// ErrSessionNotFound is returned for unknown or disconnected tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidAccount is returned when connecting with a malformed address.
	ErrInvalidAccount = errors.New("invalid account address")
)

type entry struct {
	ctrl   *Controller
	events *events.Service
	cancel context.CancelFunc
}

// Manager owns every connected session, keyed by an opaque token.
type Manager struct {
	root     context.Context
	resolver *Resolver
	client   ledger.Client
	store    store.Store
	toasts   Dispatcher

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a session manager. Event subscriptions of every
// session are bound to root and end when it is cancelled.
func NewManager(root context.Context, resolver *Resolver, client ledger.Client, st store.Store, toasts Dispatcher) *Manager {
	return &Manager{
		root:     root,
		resolver: resolver,
		client:   client,
		store:    st,
		toasts:   toasts,
		sessions: make(map[string]*entry),
	}
}

// Connect opens a session for account and returns its token.
func (m *Manager) Connect(ctx context.Context, account string) (string, *Controller, error) {
	if !common.IsHexAddress(account) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	addr := common.HexToAddress(account)

	ctrl := NewController(m.resolver.Resolve(ctx, addr), m.toasts)
	token := uuid.NewString()

	subCtx, cancel := context.WithCancel(m.root)
	svc := events.NewService(m.client, ctrl)
	if err := svc.Start(subCtx); err != nil {
		log.Printf("Warning: some contract events are not watched for %s: %v", addr.Hex(), err)
	}

	m.mu.Lock()
	m.sessions[token] = &entry{ctrl: ctrl, events: svc, cancel: cancel}
	m.mu.Unlock()

	if err := m.store.PutWalletEntries(ctx, addr.Hex(), map[string]string{
		store.WalletConnected:   strconv.FormatBool(true),
		store.WalletAccount:     addr.Hex(),
		store.WalletConnectedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("Error writing wallet entries for %s: %v", addr.Hex(), err)
	}

	log.Printf("Session connected for %s (admin=%t)", addr.Hex(), ctrl.Session().IsAdmin)
	return token, ctrl, nil
}

// Get returns the controller of a live session.
func (m *Manager) Get(token string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.ctrl, nil
}

// Refresh recomputes the balance and role of a session.
func (m *Manager) Refresh(ctx context.Context, token string) (Session, error) {
	ctrl, err := m.Get(token)
	if err != nil {
		return Session{}, err
	}
	s := m.resolver.Resolve(ctx, common.HexToAddress(ctrl.Account()))
	ctrl.SetSession(s)
	return s, nil
}

// Disconnect ends a session and stops its subscriptions. The wallet
// bookkeeping of its account is cleared with the account's last session.
func (m *Manager) Disconnect(ctx context.Context, token string) error {
	m.mu.Lock()
	e, ok := m.sessions[token]
	delete(m.sessions, token)
	shared := false
	if ok {
		for _, other := range m.sessions {
			if strings.EqualFold(other.ctrl.Account(), e.ctrl.Account()) {
				shared = true
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.events.Stop()
	e.cancel()

	account := e.ctrl.Account()
	if !shared {
		if err := m.store.ClearWalletEntries(ctx, account); err != nil {
			log.Printf("Error clearing wallet entries for %s: %v", account, err)
		}
	}
	log.Printf("Session disconnected for %s", account)
	return nil
}

// Close disconnects every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	tokens := make([]string, 0, len(m.sessions))
	for t := range m.sessions {
		tokens = append(tokens, t)
	}
	m.mu.Unlock()

	for _, t := range tokens {
		_ = m.Disconnect(ctx, t)
	}
}
