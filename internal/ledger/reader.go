package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"iot-ledger-backend/internal/model"
)

// Reader exposes the typed constant calls of the contracts.
type Reader struct {
	client Client
}

// NewReader creates a Reader on top of a ledger client.
func NewReader(c Client) *Reader {
	return &Reader{client: c}
}

type recordTuple struct {
	DataType  [32]byte
	DataHash  [32]byte
	Timestamp *big.Int
	Validated bool
}

type disputeTuple struct {
	DeviceHash  [32]byte
	RecordIndex *big.Int
	Disputer    common.Address
	Timestamp   *big.Int
	Resolved    bool
}

// convert turns an unpacked ABI value into T. Generated anonymous structs
// are copied field by field.
func convert[T any](v any) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected ledger output %T: %v", v, r)
		}
	}()
	if direct, ok := v.(T); ok {
		return direct, nil
	}
	return *abi.ConvertType(v, new(T)).(*T), nil
}

func (r *Reader) one(ctx context.Context, c Contract, method string, args ...any) (any, error) {
	out, err := r.client.Read(ctx, c, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s returned no values", c, method)
	}
	return out[0], nil
}

func (r *Reader) bytes32(ctx context.Context, c Contract, method string, args ...any) (common.Hash, error) {
	v, err := r.one(ctx, c, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	b, err := convert[[32]byte](v)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(b), nil
}

func (r *Reader) uint256(ctx context.Context, c Contract, method string, args ...any) (*big.Int, error) {
	v, err := r.one(ctx, c, method, args...)
	if err != nil {
		return nil, err
	}
	n, err := convert[*big.Int](v)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return new(big.Int), nil
	}
	return n, nil
}

// AdminRole returns the identifier of the global admin role.
func (r *Reader) AdminRole(ctx context.Context) (common.Hash, error) {
	return r.bytes32(ctx, AccessManager, "GLOBAL_ADMIN_ROLE")
}

// DeviceManagerRole returns the identifier of the device manager role.
func (r *Reader) DeviceManagerRole(ctx context.Context) (common.Hash, error) {
	return r.bytes32(ctx, AccessManager, "DEVICE_MANAGER_ROLE")
}

// HasRole reports whether account holds role.
func (r *Reader) HasRole(ctx context.Context, role common.Hash, account common.Address) (bool, error) {
	v, err := r.one(ctx, AccessManager, "hasRole", role, account)
	if err != nil {
		return false, err
	}
	return convert[bool](v)
}

// UserBalance is the reward token balance of account.
func (r *Reader) UserBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.uint256(ctx, TokenRewards, "getUserBalance", account)
}

// SlashedBalance is the amount slashed from account.
func (r *Reader) SlashedBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.uint256(ctx, TokenRewards, "getSlashedBalance", account)
}

// CalculateRewards is the unclaimed reward of a device for operator.
func (r *Reader) CalculateRewards(ctx context.Context, deviceHash common.Hash, operator common.Address) (*big.Int, error) {
	return r.uint256(ctx, TokenRewards, "calculateRewards", deviceHash, operator)
}

// PendingDisputes lists the disputes the oracle has not resolved yet.
func (r *Reader) PendingDisputes(ctx context.Context) ([]model.Dispute, error) {
	v, err := r.one(ctx, OracleIntegration, "getPendingDisputes")
	if err != nil {
		return nil, err
	}
	tuples, err := convert[[]disputeTuple](v)
	if err != nil {
		return nil, err
	}

	disputes := make([]model.Dispute, 0, len(tuples))
	for _, d := range tuples {
		disputes = append(disputes, model.Dispute{
			DeviceHash:  common.Hash(d.DeviceHash).Hex(),
			RecordIndex: bigToUint64(d.RecordIndex),
			Disputer:    d.Disputer.Hex(),
			Timestamp:   unixTime(d.Timestamp),
			Resolved:    d.Resolved,
		})
	}
	return disputes, nil
}

// Records pages through the data records of a device.
func (r *Reader) Records(ctx context.Context, deviceHash common.Hash, start, count uint64) ([]model.LedgerRecord, error) {
	v, err := r.one(ctx, IoTDataLedger, "getRecords", deviceHash,
		new(big.Int).SetUint64(start), new(big.Int).SetUint64(count))
	if err != nil {
		return nil, err
	}
	tuples, err := convert[[]recordTuple](v)
	if err != nil {
		return nil, err
	}

	records := make([]model.LedgerRecord, 0, len(tuples))
	for _, t := range tuples {
		records = append(records, model.LedgerRecord{
			DataType:  common.Hash(t.DataType).Hex(),
			DataHash:  common.Hash(t.DataHash).Hex(),
			Timestamp: unixTime(t.Timestamp),
			Validated: t.Validated,
		})
	}
	return records, nil
}

// DevicesByOwner returns one page of device hashes owned by owner.
func (r *Reader) DevicesByOwner(ctx context.Context, owner common.Address, page, pageSize uint64) ([]common.Hash, error) {
	v, err := r.one(ctx, DeviceRegistry, "getDevicesByOwner", owner,
		new(big.Int).SetUint64(page), new(big.Int).SetUint64(pageSize))
	if err != nil {
		return nil, err
	}
	raw, err := convert[[][32]byte](v)
	if err != nil {
		return nil, err
	}
	hashes := make([]common.Hash, len(raw))
	for i, h := range raw {
		hashes[i] = h
	}
	return hashes, nil
}

// Device fetches the registry entry of a single device.
func (r *Reader) Device(ctx context.Context, deviceHash common.Hash) (model.DeviceRecord, error) {
	out, err := r.client.Read(ctx, DeviceRegistry, "getDevice", deviceHash)
	if err != nil {
		return model.DeviceRecord{}, err
	}
	if len(out) != 5 {
		return model.DeviceRecord{}, fmt.Errorf("%s.getDevice returned %d values", DeviceRegistry, len(out))
	}

	owner, err := convert[common.Address](out[0])
	if err != nil {
		return model.DeviceRecord{}, err
	}
	status, err := convert[uint8](out[1])
	if err != nil {
		return model.DeviceRecord{}, err
	}
	registered, err := convert[*big.Int](out[2])
	if err != nil {
		return model.DeviceRecord{}, err
	}
	updated, err := convert[*big.Int](out[3])
	if err != nil {
		return model.DeviceRecord{}, err
	}
	cid, err := convert[string](out[4])
	if err != nil {
		return model.DeviceRecord{}, err
	}

	return model.DeviceRecord{
		DeviceHash:    deviceHash.Hex(),
		Owner:         owner.Hex(),
		Status:        model.DeviceStatus(status),
		RegisteredAt:  unixTime(registered),
		LastUpdatedAt: unixTime(updated),
		MetadataCID:   cid,
	}, nil
}

func bigToUint64(n *big.Int) uint64 {
	if n == nil || !n.IsUint64() {
		return 0
	}
	return n.Uint64()
}

func unixTime(n *big.Int) time.Time {
	return time.Unix(int64(bigToUint64(n)), 0).UTC()
}
