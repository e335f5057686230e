package ledger

import (
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"iot-ledger-backend/config"
)

// Contract names one of the deployed contracts the service talks to.
type Contract string

const (
	DeviceRegistry    Contract = "DeviceRegistry"
	AccessManager     Contract = "AccessManager"
	IoTDataLedger     Contract = "IoTDataLedger"
	TokenRewards      Contract = "TokenRewards"
	OracleIntegration Contract = "OracleIntegration"
)

// Contracts lists every contract in a stable order.
var Contracts = []Contract{DeviceRegistry, AccessManager, IoTDataLedger, TokenRewards, OracleIntegration}

//go:embed abi/*.json
var abiFiles embed.FS

// LoadABI parses the embedded ABI for c.
func LoadABI(c Contract) (abi.ABI, error) {
	f, err := abiFiles.Open("abi/" + string(c) + ".json")
	if err != nil {
		return abi.ABI{}, fmt.Errorf("no abi for %s: %w", c, err)
	}
	defer f.Close()

	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi for %s: %w", c, err)
	}
	return parsed, nil
}

// Addresses maps each contract to its configured deployment address.
func Addresses(cfg config.ContractsConfig) map[Contract]common.Address {
	return map[Contract]common.Address{
		DeviceRegistry:    common.HexToAddress(cfg.DeviceRegistry),
		AccessManager:     common.HexToAddress(cfg.AccessManager),
		IoTDataLedger:     common.HexToAddress(cfg.IoTDataLedger),
		TokenRewards:      common.HexToAddress(cfg.TokenRewards),
		OracleIntegration: common.HexToAddress(cfg.OracleIntegration),
	}
}
