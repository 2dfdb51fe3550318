package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/handler"
	"github.com/keywarden/keywarden/internal/service"
	"github.com/keywarden/keywarden/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.KeyService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	policy := service.NewCooldownPolicy(&config.CooldownConfig{
		FastTrack: 1 * time.Second,
		Booster:   12 * time.Hour,
		Premium:   60 * time.Hour,
	})
	svc := service.NewKeyService(
		memstorage.NewKeyRepository(),
		memstorage.NewUserRepository(),
		policy,
		service.NopAuditRecorder{},
		100,
		zap.NewNop(),
	)

	keyHandler := handler.NewKeyHandler(svc, zap.NewNop())
	verifyHandler := handler.NewVerifyHandler(svc, zap.NewNop())

	router := gin.New()
	router.POST("/api/keys/create", keyHandler.Create)
	router.GET("/api/keys/check/:key", keyHandler.Check)
	router.GET("/api/keys/list", keyHandler.List)
	router.POST("/api/keys/blacklist", keyHandler.Blacklist)
	router.GET("/api/stats", keyHandler.Stats)
	router.POST("/api/verify", verifyHandler.Verify)

	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestKeyHandler_Create(t *testing.T) {
	t.Run("mints requested batch", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/keys/create", gin.H{"quantity": 3, "duration": 7})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Success bool `json:"success"`
			Count   int  `json:"count"`
			Keys    []struct {
				Key     string     `json:"key"`
				Expires *time.Time `json:"expires"`
			} `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 3, resp.Count)
		require.Len(t, resp.Keys, 3)
		for _, k := range resp.Keys {
			assert.Len(t, k.Key, 32)
			assert.NotNil(t, k.Expires)
		}
	})

	t.Run("lifetime keys omit expiry", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/keys/create", gin.H{"quantity": 1})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Keys []struct {
				Expires *time.Time `json:"expires"`
			} `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Keys, 1)
		assert.Nil(t, resp.Keys[0].Expires)
	})

	t.Run("validation failures", func(t *testing.T) {
		router, _ := newTestRouter(t)

		for _, body := range []gin.H{
			{},
			{"quantity": 0},
			{"quantity": 101},
			{"quantity": 1, "duration": -1},
		} {
			rec := doJSON(t, router, http.MethodPost, "/api/keys/create", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
		}
	})
}

func TestKeyHandler_Check(t *testing.T) {
	router, svc := newTestRouter(t)
	keys, err := svc.CreateKeys(context.Background(), 1, 0, "api")
	require.NoError(t, err)
	token := keys[0].Key

	t.Run("found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/keys/check/"+token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Key       string `json:"key"`
			Active    bool   `json:"active"`
			IsExpired bool   `json:"isExpired"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, token, resp.Key)
		assert.True(t, resp.Active)
		assert.False(t, resp.IsExpired)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/keys/check/DEADBEEF", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestKeyHandler_List(t *testing.T) {
	router, svc := newTestRouter(t)
	_, err := svc.CreateKeys(context.Background(), 4, 0, "api")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/keys/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int               `json:"count"`
		Keys  []json.RawMessage `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Count)
	assert.Len(t, resp.Keys, 4)
}

func TestKeyHandler_Blacklist(t *testing.T) {
	router, svc := newTestRouter(t)
	keys, err := svc.CreateKeys(context.Background(), 1, 0, "api")
	require.NoError(t, err)
	token := keys[0].Key

	t.Run("blacklists key", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/keys/blacklist", gin.H{"key": token})
		require.Equal(t, http.StatusOK, rec.Code)

		k, err := svc.CheckKey(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, k.Active)
	})

	t.Run("second attempt conflicts", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/keys/blacklist", gin.H{"key": token})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/keys/blacklist", gin.H{"key": "DEADBEEF"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing key field", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/keys/blacklist", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestKeyHandler_Stats(t *testing.T) {
	router, svc := newTestRouter(t)
	ctx := context.Background()

	keys, err := svc.CreateKeys(ctx, 3, 0, "api")
	require.NoError(t, err)
	_, err = svc.RedeemKey(ctx, keys[0].Key, "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Blacklist(ctx, keys[1].Key, "api"))

	rec := doJSON(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalKeys  int64 `json:"totalKeys"`
		ActiveKeys int64 `json:"activeKeys"`
		TotalUsers int64 `json:"totalUsers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.TotalKeys)
	assert.Equal(t, int64(2), resp.ActiveKeys)
	assert.Equal(t, int64(1), resp.TotalUsers)
}
