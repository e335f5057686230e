// Package device runs the device registration and data recording workflows.
package device

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"iot-ledger-backend/internal/identity"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/outcome"
	"iot-ledger-backend/internal/session"
	"iot-ledger-backend/internal/storage"
	"iot-ledger-backend/internal/store"
)

// Toast messages shown during the workflows.
const (
	MsgSimulatedTx      = "Using simulated transaction for demo purposes"
	MsgFallbackCID      = "Metadata storage unavailable, using a deterministic CID"
	MsgDataSubmitted    = "Data submitted successfully to blockchain"
	MsgDataSubmitFailed = "Failed to submit data to blockchain"
)

// Publisher publishes device metadata and decides on the fallback CID.
type Publisher interface {
	Publish(ctx context.Context, meta model.DeviceMetadata, files []storage.Attachment) outcome.Result[string]
}

// Signer signs a registration.
type Signer interface {
	Sign(deviceHash common.Hash, cid string) ([]byte, error)
}

// LedgerWriter is the subset of ledger writes the workflows need.
type LedgerWriter interface {
	RegisterDevice(ctx context.Context, deviceHash common.Hash, cid string, signature []byte) (common.Hash, error)
	UpdateDeviceStatus(ctx context.Context, deviceHash common.Hash, status model.DeviceStatus) (common.Hash, error)
	TransferOwnership(ctx context.Context, deviceHash common.Hash, newOwner common.Address) (common.Hash, error)
	RecordData(ctx context.Context, deviceHash, dataType, dataHash common.Hash) (common.Hash, error)
	BatchRecordData(ctx context.Context, deviceHashes, dataTypes, dataHashes []common.Hash) (common.Hash, error)
}

// LedgerReader is the subset of ledger reads the workflows need.
type LedgerReader interface {
	DevicesByOwner(ctx context.Context, owner common.Address, page, pageSize uint64) ([]common.Hash, error)
	Device(ctx context.Context, deviceHash common.Hash) (model.DeviceRecord, error)
	Records(ctx context.Context, deviceHash common.Hash, start, count uint64) ([]model.LedgerRecord, error)
}

// Registration is the result of registering one device.
type Registration struct {
	Device   model.DeviceRecord          `json:"device"`
	Metadata outcome.Result[string]      `json:"metadata"`
	Tx       outcome.Result[common.Hash] `json:"transaction"`
}

// Service runs the workflows for one deployment.
type Service struct {
	publisher Publisher
	signer    Signer
	writer    LedgerWriter
	reader    LedgerReader
	store     store.Store
	now       func() time.Time
}

// NewService creates a device service.
func NewService(p Publisher, signer Signer, w LedgerWriter, r LedgerReader, st store.Store) *Service {
	return &Service{publisher: p, signer: signer, writer: w, reader: r, store: st, now: time.Now}
}

// Register validates the form, publishes the metadata, derives the device
// hash, signs and writes the registration, then records the device. Each
// step runs only after the previous one finished. A failed ledger write
// is replaced by a simulated transaction.
func (s *Service) Register(ctx context.Context, ctrl *session.Controller, form Form, files []storage.Attachment) (*Registration, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	ctrl.BeginUpload()
	published := s.publisher.Publish(ctx, form.Metadata(s.now()), files)
	if !published.OK() {
		ctrl.EndUpload("")
		return nil, fmt.Errorf("publishing metadata: %w", published.Err)
	}
	if published.Simulated() {
		ctrl.Toast(model.LevelInfo, MsgFallbackCID)
	}
	cid := published.Value
	ctrl.EndUpload(cid)

	deviceHash := identity.DeviceHash(form.MACAddress)

	signature, err := s.signer.Sign(deviceHash, cid)
	if err != nil {
		return nil, err
	}

	var tx outcome.Result[common.Hash]
	if hash, err := s.writer.RegisterDevice(ctx, deviceHash, cid, signature); err != nil {
		simulated, rerr := randomTxHash()
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		log.Printf("Ledger registration of %s failed, simulating tx %s", deviceHash.Hex(), simulated.Hex())
		ctrl.Toast(model.LevelInfo, MsgSimulatedTx)
		tx = outcome.Fallback(simulated, err)
	} else {
		tx = outcome.Success(hash)
	}

	now := s.now()
	rec := model.DeviceRecord{
		DeviceHash:    deviceHash.Hex(),
		Owner:         ctrl.Account(),
		Status:        model.StatusOnline,
		RegisteredAt:  now,
		LastUpdatedAt: now,
		MetadataCID:   cid,
		TxHash:        tx.Value.Hex(),
		Simulated:     tx.Simulated(),
	}
	if !rec.Registered() {
		return nil, errors.New("registration produced no metadata CID")
	}

	ctrl.PrependDevice(rec)
	if err := s.store.UpsertDevice(ctx, rec); err != nil {
		log.Printf("Error mirroring device %s: %v", rec.DeviceHash, err)
	}
	ctrl.Toast(model.LevelSuccess, fmt.Sprintf("Device %s registered successfully on blockchain", form.Name))

	return &Registration{Device: rec, Metadata: published, Tx: tx}, nil
}

func randomTxHash() (common.Hash, error) {
	var h common.Hash
	if _, err := rand.Read(h[:]); err != nil {
		return common.Hash{}, fmt.Errorf("failed to generate simulated tx hash: %w", err)
	}
	return h, nil
}

// SubmitData records the SHA-256 digest of a reading on the ledger and, on
// success, appends it to the local history.
func (s *Service) SubmitData(ctx context.Context, ctrl *session.Controller, deviceHash common.Hash, dataType uint64, value string) (model.DataRecord, error) {
	tag := identity.DataTypeTag(dataType)
	digest := identity.DataHash(value)

	tx, err := s.writer.RecordData(ctx, deviceHash, tag, digest)
	if err != nil {
		ctrl.Toast(model.LevelError, MsgDataSubmitFailed)
		return model.DataRecord{}, err
	}

	rec := model.DataRecord{
		DeviceHash: deviceHash.Hex(),
		DataType:   tag.Hex(),
		DataHash:   digest.Hex(),
		TxHash:     tx.Hex(),
		RecordedAt: s.now(),
	}
	if err := s.store.AppendDataRecord(ctx, &rec); err != nil {
		log.Printf("Error storing data record for %s: %v", rec.DeviceHash, err)
	}
	ctrl.Toast(model.LevelSuccess, MsgDataSubmitted)
	return rec, nil
}

// Reading is one sensor value of a batch submission.
type Reading struct {
	DeviceHash common.Hash
	DataType   uint64
	Value      string
}

// SubmitBatch records several readings in a single ledger transaction. The
// local history is only appended once the transaction was accepted.
func (s *Service) SubmitBatch(ctx context.Context, ctrl *session.Controller, readings []Reading) ([]model.DataRecord, error) {
	if len(readings) == 0 {
		return nil, errors.New("no readings to submit")
	}
	hashes := make([]common.Hash, len(readings))
	tags := make([]common.Hash, len(readings))
	digests := make([]common.Hash, len(readings))
	for i, r := range readings {
		hashes[i] = r.DeviceHash
		tags[i] = identity.DataTypeTag(r.DataType)
		digests[i] = identity.DataHash(r.Value)
	}

	tx, err := s.writer.BatchRecordData(ctx, hashes, tags, digests)
	if err != nil {
		ctrl.Toast(model.LevelError, MsgDataSubmitFailed)
		return nil, err
	}

	now := s.now()
	recs := make([]model.DataRecord, len(readings))
	for i := range readings {
		recs[i] = model.DataRecord{
			DeviceHash: hashes[i].Hex(),
			DataType:   tags[i].Hex(),
			DataHash:   digests[i].Hex(),
			TxHash:     tx.Hex(),
			RecordedAt: now,
		}
		if err := s.store.AppendDataRecord(ctx, &recs[i]); err != nil {
			log.Printf("Error storing data record for %s: %v", recs[i].DeviceHash, err)
		}
	}
	ctrl.Toast(model.LevelSuccess, MsgDataSubmitted)
	return recs, nil
}

// ListDevices reads the session's devices from the ledger. When the ledger
// cannot be read, the locally mirrored devices are returned as a fallback.
// Either way the session list is replaced.
func (s *Service) ListDevices(ctx context.Context, ctrl *session.Controller, page, pageSize int) outcome.Result[[]model.DeviceRecord] {
	owner := common.HexToAddress(ctrl.Account())

	devices, err := s.listFromLedger(ctx, owner, page, pageSize)
	if err == nil {
		ctrl.ReplaceDevices(devices)
		return outcome.Success(devices)
	}
	log.Printf("Error listing devices of %s from ledger, using local mirror: %v", owner.Hex(), err)

	mirrored, merr := s.store.ListDevicesByOwner(ctx, owner.Hex(), store.Page{Number: page, Size: pageSize})
	if merr != nil {
		return outcome.Failure[[]model.DeviceRecord](errors.Join(err, merr))
	}
	if mirrored == nil {
		mirrored = []model.DeviceRecord{}
	}
	ctrl.ReplaceDevices(mirrored)
	return outcome.Fallback(mirrored, err)
}

func (s *Service) listFromLedger(ctx context.Context, owner common.Address, page, pageSize int) ([]model.DeviceRecord, error) {
	hashes, err := s.reader.DevicesByOwner(ctx, owner, uint64(max(page, 0)), uint64(max(pageSize, 0)))
	if err != nil {
		return nil, err
	}
	devices := make([]model.DeviceRecord, 0, len(hashes))
	for _, h := range hashes {
		d, err := s.reader.Device(ctx, h)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// UpdateStatus changes a device's status on the ledger, then locally.
func (s *Service) UpdateStatus(ctx context.Context, ctrl *session.Controller, deviceHash common.Hash, status model.DeviceStatus) (common.Hash, error) {
	tx, err := s.writer.UpdateDeviceStatus(ctx, deviceHash, status)
	if err != nil {
		return common.Hash{}, err
	}

	now := s.now()
	if err := s.store.UpdateDeviceStatus(ctx, deviceHash.Hex(), status, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("Error mirroring status of %s: %v", deviceHash.Hex(), err)
	}
	ctrl.UpdateDevice(deviceHash.Hex(), func(d *model.DeviceRecord) {
		d.Status = status
		d.LastUpdatedAt = now
	})
	return tx, nil
}

// TransferOwnership hands a device to newOwner on the ledger, then locally.
// The device leaves the session list unless it is transferred to itself.
func (s *Service) TransferOwnership(ctx context.Context, ctrl *session.Controller, deviceHash common.Hash, newOwner common.Address) (common.Hash, error) {
	tx, err := s.writer.TransferOwnership(ctx, deviceHash, newOwner)
	if err != nil {
		return common.Hash{}, err
	}

	if err := s.store.TransferDevice(ctx, deviceHash.Hex(), newOwner.Hex(), s.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("Error mirroring transfer of %s: %v", deviceHash.Hex(), err)
	}
	if newOwner.Hex() != ctrl.Account() {
		ctrl.RemoveDevice(deviceHash.Hex())
	}
	return tx, nil
}

// Records pages through a device's data records on the ledger, falling back
// to the locally stored submissions.
func (s *Service) Records(ctx context.Context, deviceHash common.Hash, start, count int) outcome.Result[[]model.LedgerRecord] {
	recs, err := s.reader.Records(ctx, deviceHash, uint64(max(start, 0)), uint64(max(count, 0)))
	if err == nil {
		return outcome.Success(recs)
	}
	log.Printf("Error reading records of %s from ledger, using local history: %v", deviceHash.Hex(), err)

	local, lerr := s.store.ListDataRecords(ctx, deviceHash.Hex(), store.Page{})
	if lerr != nil {
		return outcome.Failure[[]model.LedgerRecord](errors.Join(err, lerr))
	}
	out := []model.LedgerRecord{}
	for i, r := range local {
		if i < start {
			continue
		}
		if count > 0 && len(out) == count {
			break
		}
		out = append(out, model.LedgerRecord{
			DataType:  r.DataType,
			DataHash:  r.DataHash,
			Timestamp: r.RecordedAt,
		})
	}
	return outcome.Fallback(out, err)
}
