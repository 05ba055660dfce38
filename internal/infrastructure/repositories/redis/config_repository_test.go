package redis

import (
	"encoding/json"
	"testing"

	"botlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKey(t *testing.T) {
	assert.Equal(t, "botlink:config:robot-1", configKey("robot-1"))
	assert.Equal(t, "botlink:config:robots", configIndexKey)
	assert.Equal(t, "botlink:schema:version", schemaVersionKey)
}

func TestWrapLegacyConfig(t *testing.T) {
	legacy, err := json.Marshal(domain.ConfigResponse{
		Cloud: domain.CloudConfig{ID: "robot-1", FQDN: "robot.cloud"},
	})
	require.NoError(t, err)

	wrapped, err := wrapLegacyConfig(legacy)
	require.NoError(t, err)
	require.NotNil(t, wrapped)

	var stored storedConfig
	require.NoError(t, json.Unmarshal(wrapped, &stored))
	assert.Equal(t, "robot.cloud", stored.Config.Cloud.FQDN)

	again, err := wrapLegacyConfig(wrapped)
	require.NoError(t, err)
	assert.Nil(t, again, "already wrapped values are left alone")

	_, err = wrapLegacyConfig([]byte("not json"))
	assert.Error(t, err)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := getMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotNil(t, m.Up)
	}
	assert.Equal(t, currentSchemaVersion, migrations[len(migrations)-1].Version)
}
