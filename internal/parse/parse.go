package parse

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"iot-ledger-backend/internal/identity"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/units"
)

var bytes32Re = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// DefaultPageSize is used when a listing does not ask for a size.
const DefaultPageSize = 10

// MaxPageSize caps the page size a client may request.
const MaxPageSize = 100

// DeviceHash parses a 0x-prefixed 32-byte hex identifier.
func DeviceHash(raw string) (common.Hash, error) {
	s := strings.TrimSpace(raw)
	if !bytes32Re.MatchString(s) {
		return common.Hash{}, fmt.Errorf("invalid device hash %q", raw)
	}
	return common.HexToHash(s), nil
}

// Address parses a hex account address.
func Address(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(s), nil
}

// JobID accepts either 0x-prefixed hex of at most 32 bytes or a plain job
// name of at most 32 bytes. Both are right padded with zeros.
func JobID(raw string) (common.Hash, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return common.Hash{}, fmt.Errorf("job id is required")
	}
	if !strings.HasPrefix(s, "0x") {
		if len(s) > common.HashLength {
			return common.Hash{}, fmt.Errorf("job id %q is longer than %d bytes", raw, common.HashLength)
		}
		return identity.DeviceHash(s), nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid job id %q", raw)
	}
	var h common.Hash
	copy(h[:], b)
	return h, nil
}

// Fee parses a decimal token amount, e.g. "0.1", into its smallest unit.
func Fee(raw string) (*big.Int, error) {
	n, ok := units.ParseUnits(raw, units.EtherDecimals)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid fee format")
	}
	return n, nil
}

// Status accepts a status name or its numeric value.
func Status(raw string) (model.DeviceStatus, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		status := model.DeviceStatus(n)
		if !status.Valid() {
			return 0, fmt.Errorf("unknown device status %q", raw)
		}
		return status, nil
	}
	return model.ParseDeviceStatus(s)
}

// Page reads page and size query values. Missing or invalid values fall back
// to the first page and DefaultPageSize; sizes are capped at MaxPageSize.
func Page(pageRaw, sizeRaw string) (page, size int) {
	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 0 {
		page = 0
	}
	size, err = strconv.Atoi(sizeRaw)
	if err != nil || size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
