// Package events turns contract events into session notifications.
package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/units"
)

// Sink receives one message per event callback.
type Sink interface {
	Notify(level model.Level, message string)
}

// Topic is one watched contract event and how its first log is rendered.
type Topic struct {
	Contract ledger.Contract
	Event    string
	Level    model.Level
	Format   func(ledger.LogEntry) string
}

// Topics lists every event a connected session is subscribed to.
var Topics = []Topic{
	{ledger.DeviceRegistry, "DeviceRegistered", model.LevelSuccess, func(e ledger.LogEntry) string {
		return "New device registered: " + hashArg(e, "deviceHash", "Unknown device")
	}},
	{ledger.IoTDataLedger, "DataRecorded", model.LevelInfo, func(e ledger.LogEntry) string {
		return "New data recorded for device " + hashArg(e, "deviceHash", "")
	}},
	{ledger.TokenRewards, "RewardsClaimed", model.LevelSuccess, func(e ledger.LogEntry) string {
		amount, _ := e.Args["amount"].(*big.Int)
		return fmt.Sprintf("Reward claimed: %s IDC tokens", units.FormatUnits(amount, units.EtherDecimals))
	}},
	{ledger.OracleIntegration, "VerificationCompleted", model.LevelInfo, func(e ledger.LogEntry) string {
		return "Oracle verification completed for request: " + hashArg(e, "requestId", "Unknown request")
	}},
	{ledger.AccessManager, "RoleGranted", model.LevelSuccess, func(e ledger.LogEntry) string {
		account, _ := e.Args["account"].(common.Address)
		return "New admin role granted! " + account.Hex()
	}},
}

func hashArg(e ledger.LogEntry, name, missing string) string {
	switch v := e.Args[name].(type) {
	case [32]byte:
		return common.Hash(v).Hex()
	case common.Hash:
		return v.Hex()
	}
	return missing
}

// Service keeps the event subscriptions of one session.
type Service struct {
	client ledger.Client
	sink   Sink

	mu   sync.Mutex
	subs []ledger.Subscription
}

// NewService creates a subscription service that reports to sink.
func NewService(client ledger.Client, sink Sink) *Service {
	return &Service{client: client, sink: sink}
}

// Start subscribes to every topic. Topics that cannot be watched are
// reported in the returned error; the others stay active until ctx is done
// or Stop is called. Calling Start again is a no-op while subscribed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return nil
	}

	var errs []error
	for _, topic := range Topics {
		sub, err := s.client.Watch(ctx, topic.Contract, topic.Event, s.handler(topic))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", topic.Contract, topic.Event, err))
			continue
		}
		s.subs = append(s.subs, sub)
	}
	log.Printf("Subscribed to %d of %d contract events", len(s.subs), len(Topics))
	return errors.Join(errs...)
}

// handler builds the callback of one topic. A batch of logs yields exactly
// one notification, taken from its first entry.
func (s *Service) handler(topic Topic) func([]ledger.LogEntry) {
	return func(entries []ledger.LogEntry) {
		if len(entries) == 0 {
			return
		}
		s.sink.Notify(topic.Level, topic.Format(entries[0]))
	}
}

// Stop tears every subscription down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}
