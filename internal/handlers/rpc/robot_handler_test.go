package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botlink/internal/core/domain"
	"botlink/internal/core/robot"
	"botlink/internal/core/services"
	"botlink/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testShared() *robot.Shared {
	return robot.NewShared(robot.NewLocalRobot(&domain.ConfigResponse{
		Components: []domain.ComponentConfig{
			{Name: "arm1", Type: "arm", Model: "fake"},
			{Name: "base1", Type: "base", Model: "fake"},
		},
	}))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Cloud.RobotID = "robot-1"
	cfg.Cloud.Secret = "secret"
	cfg.RPC.RequestsPerSecond = 1000
	cfg.RPC.Burst = 1000
	return cfg
}

func newTestHandler(cfg *config.Config, tokens services.TokenService) http.Handler {
	gin.SetMode(gin.TestMode)
	return NewHandlerFactory(cfg, tokens, zap.NewNop().Sugar())(testShared())
}

func post(t *testing.T, h http.Handler, method, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, ServicePrefix+"/"+method, strings.NewReader(body))
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, ServicePrefix+"/"+method, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRobotHandler_ResourceNames(t *testing.T) {
	h := newTestHandler(testConfig(), services.NewTokenService("secret", time.Hour))

	w := post(t, h, "ResourceNames", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Resources []domain.ResourceName `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Resources, 2)
	assert.Equal(t, "arm1", resp.Resources[0].Name)
	assert.Equal(t, "arm", resp.Resources[0].Subtype)
}

func TestRobotHandler_GetStatus(t *testing.T) {
	h := newTestHandler(testConfig(), services.NewTokenService("secret", time.Hour))

	t.Run("all", func(t *testing.T) {
		w := post(t, h, "GetStatus", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Status []domain.ResourceStatus `json:"status"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Status, 2)
	})

	t.Run("unknown resource", func(t *testing.T) {
		w := post(t, h, "GetStatus", `{"resource_names":[{"name":"ghost"}]}`, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := post(t, h, "GetStatus", `{"resource_names":`, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRobotHandler_DoCommand(t *testing.T) {
	h := newTestHandler(testConfig(), services.NewTokenService("secret", time.Hour))

	w := post(t, h, "DoCommand", `{"name":"arm1","command":{"move":"home"}}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "home", resp.Result["move"])
	assert.Equal(t, "arm1", resp.Result["resource"])

	w = post(t, h, "DoCommand", `{"command":{}}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, "DoCommand", `{"name":"ghost"}`, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerFactory_RequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.RPC.RequireAuth = true
	tokens := services.NewTokenService("secret", time.Hour)
	h := newTestHandler(cfg, tokens)

	w := post(t, h, "ResourceNames", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := tokens.GenerateToken("robot-2")
	require.NoError(t, err)
	w = post(t, h, "ResourceNames", "", other)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	good, err := tokens.GenerateToken("robot-1")
	require.NoError(t, err)
	w = post(t, h, "ResourceNames", "", good)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerFactory_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RPC.RequestsPerSecond = 1
	cfg.RPC.Burst = 1
	h := newTestHandler(cfg, services.NewTokenService("secret", time.Hour))

	assert.Equal(t, http.StatusOK, post(t, h, "ResourceNames", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, "ResourceNames", "", "").Code)
}
