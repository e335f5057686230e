package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/api"
	"iot-ledger-backend/internal/db"
	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/identity"
	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/ledger/ledgertest"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/mw"
	"iot-ledger-backend/internal/session"
	"iot-ledger-backend/internal/storage"
	"iot-ledger-backend/internal/store"
)

const (
	operator   = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	deviceHash = "0x41413a42423a43433a44443a45453a4646000000000000000000000000000000"
	remoteCID  = "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku"
)

// registry is a minimal stateful device registry behind the fake ledger.
type registry struct {
	mu      sync.Mutex
	devices map[common.Hash]string
	order   []common.Hash
}

func (r *registry) write(ctx context.Context, c ledger.Contract, method string, args ...any) (common.Hash, error) {
	if method == "registerDevice" {
		r.mu.Lock()
		h := args[0].(common.Hash)
		r.devices[h] = args[1].(string)
		r.order = append(r.order, h)
		r.mu.Unlock()
	}
	return common.BytesToHash([]byte(method)), nil
}

func (r *registry) read(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch method {
	case "getDevicesByOwner":
		out := make([][32]byte, len(r.order))
		for i, h := range r.order {
			out[i] = h
		}
		return []any{out}, nil
	case "getDevice":
		cid := r.devices[args[0].(common.Hash)]
		return []any{common.HexToAddress(operator), uint8(0), big.NewInt(1700000000), big.NewInt(1700000000), cid}, nil
	}
	return nil, ledgertest.ErrUnavailable
}

type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recorder) Dispatch(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Message
	}
	return out
}

type stack struct {
	router *gin.Engine
	store  store.Store
	toasts *recorder
}

func newStack(t *testing.T, client ledger.Client, storageStatus int) *stack {
	gin.SetMode(gin.TestMode)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if storageStatus != http.StatusOK {
			w.WriteHeader(storageStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"cid": remoteCID})
	}))
	t.Cleanup(server.Close)

	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reader := ledger.NewReader(client)
	writer := ledger.NewWriter(client)
	toasts := &recorder{}
	sessions := session.NewManager(ctx, session.NewResolver("", reader, client), client, appStore, toasts)

	signer, err := identity.NewSigner("")
	require.NoError(t, err)
	publisher := storage.NewPublisher(config.StorageConfig{Endpoint: server.URL, Token: "secret", Timeout: 5 * time.Second})

	h := api.NewHandler(api.Deps{
		Sessions: sessions,
		Devices:  device.NewService(publisher, signer, writer, reader, appStore),
		Writer:   writer,
		Reader:   reader,
		Store:    appStore,
	})
	router := api.NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 1})
	t.Cleanup(func() { sessions.Close(context.Background()) })
	return &stack{router: router, store: appStore, toasts: toasts}
}

func (s *stack) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(mw.TokenHeader, token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) connect(t *testing.T) string {
	w := s.call(t, http.MethodPost, "/api/session/connect", "", gin.H{"account": operator})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

var smartSensor = gin.H{
	"name":       "Smart Sensor XYZ",
	"deviceType": "Temperature Sensor",
	"location":   "Building A, Room 101",
	"macAddress": "AA:BB:CC:DD:EE:FF",
	"firmware":   "v1.2.3",
}

type registration struct {
	Device   model.DeviceRecord `json:"device"`
	Metadata struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	} `json:"metadata"`
	Transaction struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	} `json:"transaction"`
}

type deviceList struct {
	Devices []model.DeviceRecord `json:"devices"`
	Source  string               `json:"source"`
}

// TestDeviceLifecycle drives a device from registration to data submission
// against a reachable ledger and storage service.
func TestDeviceLifecycle(t *testing.T) {
	reg := &registry{devices: make(map[common.Hash]string)}
	client := &ledgertest.Client{WriteFunc: reg.write, ReadFunc: reg.read}
	s := newStack(t, client, http.StatusOK)
	token := s.connect(t)

	w := s.call(t, http.MethodPost, "/api/devices", token, smartSensor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var r registration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, deviceHash, r.Device.DeviceHash)
	assert.Equal(t, "success", r.Metadata.Kind)
	assert.Equal(t, remoteCID, r.Metadata.Value)
	assert.Equal(t, "success", r.Transaction.Kind)
	assert.False(t, r.Device.Simulated)

	// The ledger now lists the device.
	w = s.call(t, http.MethodGet, "/api/devices", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list deviceList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "ledger", list.Source)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, remoteCID, list.Devices[0].MetadataCID)

	w = s.call(t, http.MethodPost, "/api/data", token, gin.H{"deviceHash": deviceHash, "dataType": 1, "value": "23.5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	stored, err := s.store.ListDataRecords(context.Background(), deviceHash, store.Page{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// A contract event reaches the notification queue of the session.
	client.Emit("DeviceRegistered", ledger.LogEntry{Args: map[string]any{"deviceHash": [32]byte(common.HexToHash(deviceHash))}})
	w = s.call(t, http.MethodGet, "/api/notifications", token, nil)
	assert.Contains(t, w.Body.String(), "New device registered: "+deviceHash)

	assert.Equal(t, []string{
		"Device Smart Sensor XYZ registered successfully on blockchain",
		device.MsgDataSubmitted,
		"New device registered: " + deviceHash,
	}, s.toasts.messages())

	w = s.call(t, http.MethodPost, "/api/session/disconnect", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	entries, err := s.store.WalletEntries(context.Background(), operator)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestOfflineRegistration covers the demo path: neither the ledger nor the
// storage service is reachable, yet exactly one device is registered.
func TestOfflineRegistration(t *testing.T) {
	s := newStack(t, ledger.Offline{Err: errors.New("dial tcp: connection refused")}, http.StatusBadGateway)
	token := s.connect(t)

	w := s.call(t, http.MethodPost, "/api/devices", token, smartSensor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var r registration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, deviceHash, r.Device.DeviceHash)
	assert.Equal(t, "fallback", r.Metadata.Kind)
	assert.NotEmpty(t, r.Device.MetadataCID)
	assert.Equal(t, "fallback", r.Transaction.Kind)
	assert.Len(t, r.Transaction.Value, 66)
	assert.True(t, r.Device.Simulated)

	w = s.call(t, http.MethodGet, "/api/devices", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list deviceList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "local", list.Source)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, r.Device.MetadataCID, list.Devices[0].MetadataCID)

	assert.Equal(t, []string{
		device.MsgFallbackCID,
		device.MsgSimulatedTx,
		"Device Smart Sensor XYZ registered successfully on blockchain",
	}, s.toasts.messages())

	// Writes without a fallback surface their failure.
	w = s.call(t, http.MethodPost, "/api/data", token, gin.H{"deviceHash": deviceHash, "dataType": 1, "value": "23.5"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
