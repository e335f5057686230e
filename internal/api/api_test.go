package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/db"
	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/identity"
	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/ledger/ledgertest"
	"iot-ledger-backend/internal/mw"
	"iot-ledger-backend/internal/session"
	"iot-ledger-backend/internal/storage"
	"iot-ledger-backend/internal/store"
)

const (
	adminAccount = "0x0E76194944d43BF027d786421fF3aA90ABDDeECe"
	userAccount  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	sampleHash   = "0x41413a42423a43433a44443a45453a4646000000000000000000000000000000"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	ledger  *ledgertest.Client
	store   store.Store
	uploads *int32
}

func newTestEnv(t *testing.T) *testEnv {
	var uploads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&uploads, 1)
		c, err := cid.V1Builder{Codec: cid.Raw, MhType: multihash.SHA2_256}.Sum([]byte("metadata"))
		if !assert.NoError(t, err) {
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"cid": c.String()})
	}))
	t.Cleanup(server.Close)

	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	st := store.NewGormStore(gormDB)

	fake := &ledgertest.Client{}
	reader := ledger.NewReader(fake)
	writer := ledger.NewWriter(fake)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	manager := session.NewManager(ctx, session.NewResolver(adminAccount, reader, fake), fake, st, nil)

	signer, err := identity.NewSigner("")
	require.NoError(t, err)
	publisher := storage.NewPublisher(config.StorageConfig{Endpoint: server.URL, Token: "secret", Timeout: 5 * time.Second})

	h := NewHandler(Deps{
		Sessions: manager,
		Devices:  device.NewService(publisher, signer, writer, reader, st),
		Writer:   writer,
		Reader:   reader,
		Store:    st,
	})
	router := NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 1})
	return &testEnv{router: router, ledger: fake, store: st, uploads: &uploads}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(mw.TokenHeader, token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) connect(t *testing.T, account string) string {
	w := e.do(http.MethodPost, "/api/session/connect", "", gin.H{"account": account})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp connectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func sampleForm() gin.H {
	return gin.H{
		"name":       "Smart Sensor XYZ",
		"deviceType": "Temperature Sensor",
		"location":   "Building A, Room 101",
		"macAddress": "AA:BB:CC:DD:EE:FF",
		"firmware":   "v1.2.3",
	}
}

func TestRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "unknown"} {
		w := env.do(http.MethodGet, "/api/devices", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"wallet not connected"}`, w.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/session/connect", "", gin.H{"account": "0x123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/session/connect", "", gin.H{"account": adminAccount})
	require.Equal(t, http.StatusOK, w.Code)
	var resp connectResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, session.Session{Account: adminAccount, Balance: "0.00", IsAdmin: true, IsConnected: true}, resp.Session)

	w = env.do(http.MethodGet, "/api/session", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/session/disconnect", resp.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/session", resp.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterDevice(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	w := env.do(http.MethodPost, "/api/devices", token, sampleForm())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reg struct {
		Device struct {
			DeviceHash  string `json:"deviceHash"`
			Owner       string `json:"owner"`
			Status      string `json:"status"`
			MetadataCID string `json:"metadataCid"`
		} `json:"device"`
		Transaction struct {
			Kind string `json:"kind"`
		} `json:"transaction"`
	}
	decode(t, w, &reg)
	assert.Equal(t, sampleHash, reg.Device.DeviceHash)
	assert.Equal(t, userAccount, reg.Device.Owner)
	assert.Equal(t, "online", reg.Device.Status)
	assert.NotEmpty(t, reg.Device.MetadataCID)
	assert.Equal(t, "success", reg.Transaction.Kind)

	// Ledger reads fail in the fake, so listing falls back to the mirror.
	w = env.do(http.MethodGet, "/api/devices", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list devicesResponse
	decode(t, w, &list)
	assert.Equal(t, "local", list.Source)
	assert.True(t, list.Simulated)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, sampleHash, list.Devices[0].DeviceHash)
}

func TestRegisterDevice_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	form := sampleForm()
	form["name"] = "X"
	form["macAddress"] = "AA:BB"
	w := env.do(http.MethodPost, "/api/devices", token, form)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"errors":{
		"name":"Device name must be at least 2 characters",
		"macAddress":"Invalid MAC address format (e.g. AA:BB:CC:DD:EE:FF)"
	}}`, w.Body.String())
	assert.Zero(t, atomic.LoadInt32(env.uploads))
	assert.Empty(t, env.ledger.Writes())
}

func TestRegisterDevice_Multipart(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	for k, v := range sampleForm() {
		require.NoError(t, mpw.WriteField(k, v.(string)))
	}
	part, err := mpw.CreateFormFile("attachments", "datasheet.txt")
	require.NoError(t, err)
	part.Write([]byte("calibration: 0.1"))
	require.NoError(t, mpw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/devices", &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set(mw.TokenHeader, token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(env.uploads))
}

func TestDeviceStatusAndTransfer(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/devices", token, sampleForm()).Code)

	w := env.do(http.MethodPatch, "/api/devices/"+sampleHash+"/status", token, gin.H{"status": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec, err := env.store.GetDevice(context.Background(), sampleHash)
	require.NoError(t, err)
	assert.Equal(t, "maintenance", rec.Status.String())

	w = env.do(http.MethodPatch, "/api/devices/"+sampleHash+"/status", token, gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPatch, "/api/devices/0x1234/status", token, gin.H{"status": "online"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/devices/"+sampleHash+"/transfer", token, gin.H{"newOwner": adminAccount})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec, err = env.store.GetDevice(context.Background(), sampleHash)
	require.NoError(t, err)
	assert.Equal(t, adminAccount, rec.Owner)
}

func TestSubmitData(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	w := env.do(http.MethodPost, "/api/data", token, gin.H{"deviceHash": sampleHash, "dataType": 1, "value": "23.5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/data", token, gin.H{"deviceHash": sampleHash})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errs struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, w, &errs)
	assert.Contains(t, errs.Errors, "dataType")
	assert.Contains(t, errs.Errors, "value")

	w = env.do(http.MethodPost, "/api/data/batch", token, gin.H{"readings": []gin.H{
		{"deviceHash": sampleHash, "dataType": 1, "value": "23.5"},
		{"deviceHash": sampleHash, "dataType": 2, "value": "41"},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/data/"+sampleHash+"/records?count=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records struct {
		Records   []map[string]any `json:"records"`
		Simulated bool             `json:"simulated"`
	}
	decode(t, w, &records)
	assert.True(t, records.Simulated)
	assert.Len(t, records.Records, 3)
}

func TestRecordsAndRewards_FreshAfterWrite(t *testing.T) {
	env := newTestEnv(t)
	balance := big.NewInt(1_000_000_000_000_000_000)
	env.ledger.ReadFunc = func(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
		switch method {
		case "getUserBalance":
			return []any{new(big.Int).Set(balance)}, nil
		case "getSlashedBalance", "calculateRewards":
			return []any{big.NewInt(0)}, nil
		}
		return nil, ledgertest.ErrUnavailable
	}
	token := env.connect(t, userAccount)
	path := "/api/data/" + sampleHash + "/records?count=10"

	countRecords := func() int {
		w := env.do(http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, w.Header().Get("X-Cache"))
		var records struct {
			Records []map[string]any `json:"records"`
		}
		decode(t, w, &records)
		return len(records.Records)
	}

	require.Equal(t, 0, countRecords())
	w := env.do(http.MethodPost, "/api/data", token, gin.H{"deviceHash": sampleHash, "dataType": 1, "value": "23.5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, countRecords())

	w = env.do(http.MethodGet, "/api/rewards", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"balance":"1"`)

	w = env.do(http.MethodPost, "/api/rewards/claim", token, gin.H{"deviceHash": sampleHash})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	balance.SetInt64(2_000_000_000_000_000_000)

	w = env.do(http.MethodGet, "/api/rewards", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), `"balance":"2"`)
}

func TestVerifyAndDisputes(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	w := env.do(http.MethodPost, "/api/data/"+sampleHash+"/verify", token, gin.H{"recordIndex": 0, "externalApi": "https://api.example.com/weather"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	writes := env.ledger.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "requestDataVerification", writes[0].Method)
	assert.Equal(t, "0", writes[0].Args[1].(*big.Int).String())

	w = env.do(http.MethodGet, "/api/disputes", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRewards(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.ReadFunc = func(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
		switch method {
		case "getUserBalance":
			return []any{big.NewInt(1_500_000_000_000_000_000)}, nil
		case "getSlashedBalance":
			return []any{big.NewInt(0)}, nil
		case "calculateRewards":
			return []any{big.NewInt(250_000_000_000_000_000)}, nil
		}
		return nil, ledgertest.ErrUnavailable
	}
	token := env.connect(t, userAccount)

	w := env.do(http.MethodGet, "/api/rewards?device="+sampleHash, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"balance":"1.5","slashed":"0","pending":"0.25"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/rewards/claim", token, gin.H{"deviceHash": sampleHash})
	assert.Equal(t, http.StatusAccepted, w.Code)

	env.ledger.WriteFunc = func(ctx context.Context, c ledger.Contract, method string, args ...any) (common.Hash, error) {
		return common.Hash{}, ledger.ErrNoSigner
	}
	w = env.do(http.MethodPost, "/api/rewards/claim", token, gin.H{"deviceHash": sampleHash})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	role := common.HexToHash("0xa49807205ce4d355092ef5a8a18f56e8913cf4a201fbe287825b095693c21775")
	env.ledger.ReadFunc = func(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
		if method == "GLOBAL_ADMIN_ROLE" {
			return []any{[32]byte(role)}, nil
		}
		if method == "hasRole" {
			return []any{false}, nil
		}
		return nil, ledgertest.ErrUnavailable
	}
	user := env.connect(t, userAccount)
	admin := env.connect(t, adminAccount)

	t.Run("non-admins are rejected", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/admin/roles/grant", user, gin.H{"account": userAccount})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"error":"access denied"}`, w.Body.String())
	})

	t.Run("grant and revoke", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/admin/roles/grant", admin, gin.H{"account": userAccount})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"message":"Admin role granted to `+userAccount+`"}`, w.Body.String())

		w = env.do(http.MethodPost, "/api/admin/roles/revoke", admin, gin.H{"account": userAccount})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Admin role revoked from `+userAccount+`"}`, w.Body.String())

		writes := env.ledger.Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, "grantRole", writes[0].Method)
		assert.Equal(t, role, writes[0].Args[0])
		assert.Equal(t, "revokeRole", writes[1].Method)
	})

	t.Run("oracle config", func(t *testing.T) {
		w := env.do(http.MethodPut, "/api/admin/oracle", admin, gin.H{"oracle": userAccount, "jobId": "weather", "fee": "ten"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid fee format"}`, w.Body.String())

		w = env.do(http.MethodPut, "/api/admin/oracle", admin, gin.H{"oracle": userAccount, "jobId": "weather", "fee": "0.1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		writes := env.ledger.Writes()
		last := writes[len(writes)-1]
		assert.Equal(t, "updateOracleConfig", last.Method)
		assert.Equal(t, identity.DeviceHash("weather"), last.Args[1])
		assert.Equal(t, "100000000000000000", last.Args[2].(*big.Int).String())
	})

	t.Run("resolve dispute", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/admin/disputes/resolve", admin, gin.H{"deviceHash": sampleHash, "recordIndex": 2, "valid": false})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		writes := env.ledger.Writes()
		last := writes[len(writes)-1]
		assert.Equal(t, "resolveDispute", last.Method)
		assert.Equal(t, false, last.Args[2])

		w = env.do(http.MethodPost, "/api/admin/disputes/resolve", admin, gin.H{"deviceHash": sampleHash, "recordIndex": 2})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	token := env.connect(t, userAccount)

	deviceHash := common.HexToHash(sampleHash)
	for i := 0; i < 3; i++ {
		env.ledger.Emit("DataRecorded", ledger.LogEntry{Args: map[string]any{"deviceHash": [32]byte(deviceHash)}})
	}

	w := env.do(http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Notifications []struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		} `json:"notifications"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Notifications, 3)
	assert.Equal(t, "info", resp.Notifications[0].Level)
	assert.Equal(t, "New data recorded for device "+sampleHash, resp.Notifications[0].Message)

	w = env.do(http.MethodDelete, "/api/notifications", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/notifications", token, nil)
	assert.JSONEq(t, `{"notifications":[]}`, w.Body.String())
}

func TestVAPIDPublicKey(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
