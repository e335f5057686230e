package ledger

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"iot-ledger-backend/internal/model"
)

// Writer exposes the typed state-changing contract calls. Every failure is
// logged and returned; no write has a built-in fallback.
type Writer struct {
	client Client
}

// NewWriter creates a Writer on top of a ledger client.
func NewWriter(c Client) *Writer {
	return &Writer{client: c}
}

func (w *Writer) write(ctx context.Context, c Contract, method, action string, args ...any) (common.Hash, error) {
	tx, err := w.client.Write(ctx, c, method, args...)
	if err != nil {
		log.Printf("Error %s: %v", action, err)
		return common.Hash{}, fmt.Errorf("%s: %w", action, err)
	}
	log.Printf("Submitted %s.%s in tx %s", c, method, tx.Hex())
	return tx, nil
}

// RegisterDevice records a new device with its metadata CID and signature.
func (w *Writer) RegisterDevice(ctx context.Context, deviceHash common.Hash, cid string, signature []byte) (common.Hash, error) {
	return w.write(ctx, DeviceRegistry, "registerDevice", "registering device", deviceHash, cid, signature)
}

// UpdateDeviceStatus changes the status of a registered device.
func (w *Writer) UpdateDeviceStatus(ctx context.Context, deviceHash common.Hash, status model.DeviceStatus) (common.Hash, error) {
	if !status.Valid() {
		return common.Hash{}, fmt.Errorf("updating device status: invalid status %d", uint8(status))
	}
	return w.write(ctx, DeviceRegistry, "updateDeviceStatus", "updating device status", deviceHash, uint8(status))
}

// TransferOwnership hands a device over to another account.
func (w *Writer) TransferOwnership(ctx context.Context, deviceHash common.Hash, newOwner common.Address) (common.Hash, error) {
	return w.write(ctx, DeviceRegistry, "transferOwnership", "transferring ownership", deviceHash, newOwner)
}

// RecordData appends a sensor-data digest for a device.
func (w *Writer) RecordData(ctx context.Context, deviceHash, dataType, dataHash common.Hash) (common.Hash, error) {
	return w.write(ctx, IoTDataLedger, "recordData", "recording data", deviceHash, dataType, dataHash)
}

// BatchRecordData records several digests in one transaction. The three
// slices are positional and must have the same length.
func (w *Writer) BatchRecordData(ctx context.Context, deviceHashes, dataTypes, dataHashes []common.Hash) (common.Hash, error) {
	if len(deviceHashes) != len(dataTypes) || len(deviceHashes) != len(dataHashes) {
		return common.Hash{}, fmt.Errorf("batch recording data: mismatched lengths %d/%d/%d",
			len(deviceHashes), len(dataTypes), len(dataHashes))
	}
	return w.write(ctx, IoTDataLedger, "batchRecordData", "batch recording data",
		toBytes32(deviceHashes), toBytes32(dataTypes), toBytes32(dataHashes))
}

// ValidateData marks the record written at timestamp as validated.
func (w *Writer) ValidateData(ctx context.Context, deviceHash common.Hash, timestamp uint64) (common.Hash, error) {
	return w.write(ctx, IoTDataLedger, "validateData", "validating data", deviceHash, new(big.Int).SetUint64(timestamp))
}

// ClaimRewards claims the accrued rewards of a device for the operator.
func (w *Writer) ClaimRewards(ctx context.Context, deviceHash common.Hash) (common.Hash, error) {
	return w.write(ctx, TokenRewards, "claimRewards", "claiming rewards", deviceHash)
}

// GrantRole grants role to account.
func (w *Writer) GrantRole(ctx context.Context, role common.Hash, account common.Address) (common.Hash, error) {
	return w.write(ctx, AccessManager, "grantRole", "granting role", role, account)
}

// RevokeRole revokes role from account.
func (w *Writer) RevokeRole(ctx context.Context, role common.Hash, account common.Address) (common.Hash, error) {
	return w.write(ctx, AccessManager, "revokeRole", "revoking role", role, account)
}

// UpdateOracleConfig points the oracle integration at a new oracle and job.
func (w *Writer) UpdateOracleConfig(ctx context.Context, oracle common.Address, jobID common.Hash, fee *big.Int) (common.Hash, error) {
	if fee == nil || fee.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("updating oracle config: invalid fee")
	}
	return w.write(ctx, OracleIntegration, "updateOracleConfig", "updating oracle config", oracle, jobID, fee)
}

// RequestDataVerification asks the oracle to verify one data record.
func (w *Writer) RequestDataVerification(ctx context.Context, deviceHash common.Hash, recordIndex uint64, externalAPI string) (common.Hash, error) {
	return w.write(ctx, OracleIntegration, "requestDataVerification", "requesting data verification",
		deviceHash, new(big.Int).SetUint64(recordIndex), externalAPI)
}

// ResolveDispute submits the final validity decision for a disputed record.
func (w *Writer) ResolveDispute(ctx context.Context, deviceHash common.Hash, recordIndex uint64, valid bool) (common.Hash, error) {
	return w.write(ctx, OracleIntegration, "resolveDispute", "resolving dispute",
		deviceHash, new(big.Int).SetUint64(recordIndex), valid)
}

func toBytes32(hs []common.Hash) [][32]byte {
	out := make([][32]byte, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}
