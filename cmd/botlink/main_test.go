package main

import (
	"testing"
	"time"

	"botlink/internal/infrastructure/mdns"
	"botlink/pkg/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Cloud.RobotID = "robot-1"
	cfg.Cloud.Secret = "secret"
	return cfg
}

func TestOrchestratorOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Orchestrator.IdleDelay = 42 * time.Millisecond
	cfg.WebRTC.ICETimeout = 3 * time.Second
	cfg.HTTP2.StreamWindowSize = 4096
	cfg.Cloud.CallTimeout = 7 * time.Second

	o := orchestratorOptions(cfg)
	assert.Equal(t, 42*time.Millisecond, o.IdleDelay)
	assert.Equal(t, 3*time.Second, o.ICETimeout)
	assert.Equal(t, int32(4096), o.HTTP2.StreamWindowSize)
	assert.Equal(t, 7*time.Second, o.CallTimeout)
	assert.Equal(t, cfg.HTTP2.MaxConcurrentStreams, o.HTTP2.MaxConcurrentStreams)
}

func TestAppClientConfig(t *testing.T) {
	cfg := testConfig()
	ac := appClientConfig(cfg)
	assert.Equal(t, "robot-1", ac.RobotID)
	assert.Nil(t, ac.IP)

	cfg.MDNS.IP = "192.168.1.20"
	ac = appClientConfig(cfg)
	assert.Equal(t, "192.168.1.20", ac.IP.String())
}

func TestFetchRetryConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cloud.FetchAttempts = 4
	cfg.Cloud.FetchDelay = time.Second

	rc := fetchRetryConfig(cfg)
	assert.True(t, rc.Enabled)
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, time.Second, rc.InitialDelay)
}

func TestWebRTCConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WebRTC.ICEServers = []config.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	cfg.WebRTC.PortRange.Min = 50000
	cfg.WebRTC.PortRange.Max = 50100

	wc := webrtcConfig(cfg)
	assert.Len(t, wc.ICEServers, 1)
	assert.Equal(t, "stun:stun.example.com:3478", wc.ICEServers[0].URLs[0])
	assert.Equal(t, uint16(50000), wc.PortRange.Min)
}

func TestNewAdvertiser(t *testing.T) {
	cfg := testConfig()
	log := zap.NewNop().Sugar()

	cfg.MDNS.Enabled = false
	_, ok := newAdvertiser(cfg, log).(*mdns.NoopAdvertiser)
	assert.True(t, ok)

	cfg.MDNS.Enabled = true
	_, ok = newAdvertiser(cfg, log).(*mdns.ZeroconfAdvertiser)
	assert.True(t, ok)
}
