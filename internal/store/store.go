package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"iot-ledger-backend/internal/model"
)

// Wallet bookkeeping keys written on connect and cleared on disconnect.
const (
	WalletConnected   = "wallet.connected"
	WalletAccount     = "wallet.account"
	WalletConnectedAt = "wallet.connectedAt"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertDevice(ctx context.Context, rec model.DeviceRecord) error
	GetDevice(ctx context.Context, deviceHash string) (model.DeviceRecord, error)
	ListDevicesByOwner(ctx context.Context, owner string, page Page) ([]model.DeviceRecord, error)
	UpdateDeviceStatus(ctx context.Context, deviceHash string, status model.DeviceStatus, at time.Time) error
	TransferDevice(ctx context.Context, deviceHash, newOwner string, at time.Time) error

	AppendDataRecord(ctx context.Context, rec *model.DataRecord) error
	ListDataRecords(ctx context.Context, deviceHash string, page Page) ([]model.DataRecord, error)

	PutWalletEntries(ctx context.Context, account string, entries map[string]string) error
	WalletEntries(ctx context.Context, account string) (map[string]string, error)
	ClearWalletEntries(ctx context.Context, account string) error

	SavePushSubscription(ctx context.Context, sub model.PushSubscription) error
	GetPushSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
	PushSubscriptionsByAccount(ctx context.Context, account string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertDevice inserts a device record or overwrites the existing mirror.
func (s *gormStore) UpsertDevice(ctx context.Context, rec model.DeviceRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_hash"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", rec.DeviceHash, err)
	}
	return nil
}

func (s *gormStore) GetDevice(ctx context.Context, deviceHash string) (model.DeviceRecord, error) {
	var rec model.DeviceRecord
	err := s.db.WithContext(ctx).Where("device_hash = ?", deviceHash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get device %s: %w", deviceHash, err)
	}
	return rec, nil
}

// ListDevicesByOwner returns the mirrored devices of owner, newest first.
func (s *gormStore) ListDevicesByOwner(ctx context.Context, owner string, page Page) ([]model.DeviceRecord, error) {
	var recs []model.DeviceRecord
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("registered_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices of %s: %w", owner, err)
	}
	return recs, nil
}

func (s *gormStore) updateDevice(ctx context.Context, deviceHash string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.DeviceRecord{}).
		Where("device_hash = ?", deviceHash).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update device %s: %w", deviceHash, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) UpdateDeviceStatus(ctx context.Context, deviceHash string, status model.DeviceStatus, at time.Time) error {
	return s.updateDevice(ctx, deviceHash, map[string]any{
		"status":          status,
		"last_updated_at": at,
	})
}

func (s *gormStore) TransferDevice(ctx context.Context, deviceHash, newOwner string, at time.Time) error {
	return s.updateDevice(ctx, deviceHash, map[string]any{
		"owner":           newOwner,
		"last_updated_at": at,
	})
}

// AppendDataRecord stores a new data record. Records are never updated.
func (s *gormStore) AppendDataRecord(ctx context.Context, rec *model.DataRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append data record for %s: %w", rec.DeviceHash, err)
	}
	return nil
}

// ListDataRecords returns the records of a device in submission order.
func (s *gormStore) ListDataRecords(ctx context.Context, deviceHash string, page Page) ([]model.DataRecord, error) {
	var recs []model.DataRecord
	err := s.db.WithContext(ctx).
		Where("device_hash = ?", deviceHash).
		Order("id ASC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list data records of %s: %w", deviceHash, err)
	}
	return recs, nil
}

func (s *gormStore) PutWalletEntries(ctx context.Context, account string, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]model.WalletEntry, 0, len(entries))
	for k, v := range entries {
		rows = append(rows, model.WalletEntry{Account: account, Key: k, Value: v, UpdatedAt: now})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to write wallet entries for %s: %w", account, err)
	}
	return nil
}

func (s *gormStore) WalletEntries(ctx context.Context, account string) (map[string]string, error) {
	var rows []model.WalletEntry
	if err := s.db.WithContext(ctx).Where("account = ?", account).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read wallet entries for %s: %w", account, err)
	}
	entries := make(map[string]string, len(rows))
	for _, r := range rows {
		entries[r.Key] = r.Value
	}
	return entries, nil
}

func (s *gormStore) ClearWalletEntries(ctx context.Context, account string) error {
	res := s.db.WithContext(ctx).Where("account = ?", account).Delete(&model.WalletEntry{})
	if res.Error != nil {
		return fmt.Errorf("failed to clear wallet entries for %s: %w", account, res.Error)
	}
	log.Printf("Cleared %d wallet entries for %s", res.RowsAffected, account)
	return nil
}

// SavePushSubscription creates a subscription or rebinds an existing
// endpoint to new keys and account.
func (s *gormStore) SavePushSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "account"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetPushSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, fmt.Errorf("failed to get push subscription: %w", err)
	}
	return sub, nil
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) PushSubscriptionsByAccount(ctx context.Context, account string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("account = ?", account).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions of %s: %w", account, err)
	}
	return subs, nil
}
