package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validChain = `
chain:
  rpc_url: "ws://localhost:8546"
  chain_id: 11155111
  admin_address: "0x0E76194944d43BF027d786421fF3aA90ABDDeECe"
  contracts:
    device_registry: "0xE851a734e8f310951e6d27C3B087FE939E371Fbd"
    access_manager: "0x18C792C368279C490042E85fb4DCC2FB650CE44e"
    iot_data_ledger: "0xf6A7E3d41611FcAf815C6943807B690Ee9Bf8220"
    token_rewards: "0xca276186Eb9f3a58FCdfc4adA247Cbe8d935778a"
    oracle_integration: "0x48C20882E61Ca563E064376480D886870d1d695e"
`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validChain))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Chain.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, "https://api.web3.storage/upload", cfg.Storage.Endpoint)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("IOT_STORAGE_TOKEN", "env-token")
	t.Setenv("IOT_OPERATOR_KEY", "abcd")

	cfg, err := Load(writeConfig(t, validChain+"storage:\n  token: file-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Storage.Token)
	assert.Equal(t, "abcd", cfg.Chain.OperatorKey)
}

func TestLoad_RejectsBadAddresses(t *testing.T) {
	_, err := Load(writeConfig(t, "chain:\n  admin_address: nope\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.admin_address")
	assert.Contains(t, err.Error(), "chain.contracts.device_registry")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
