package robot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
)

func testConfig() *domain.ConfigResponse {
	return &domain.ConfigResponse{
		Components: []domain.ComponentConfig{
			{Name: "right", Type: "motor", Model: "gpio"},
			{Name: "left", Type: "motor", Model: "gpio"},
			{Name: "", Type: "board"},
		},
	}
}

func TestLocalRobot_ResourceNamesSorted(t *testing.T) {
	r := NewLocalRobot(testConfig())

	names := r.ResourceNames()
	require.Len(t, names, 2)
	assert.Equal(t, "left", names[0].Name)
	assert.Equal(t, "rdk", names[0].Namespace)
	assert.Equal(t, "motor", names[0].Subtype)
	assert.Error(t, r.BuildError())
}

func TestLocalRobot_Status(t *testing.T) {
	r := NewLocalRobot(testConfig())

	all, err := r.Status(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = r.Status(context.Background(), []domain.ResourceName{{Name: "arm"}})
	assert.True(t, errors.Is(err, domain.ErrResourceNotFound))
}

func TestLocalRobot_DoCommandEchoes(t *testing.T) {
	r := NewLocalRobot(testConfig())

	resp, err := r.DoCommand(context.Background(), "left", map[string]interface{}{"power": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, resp["power"])
	assert.Equal(t, "left", resp["resource"])

	_, err = r.DoCommand(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestShared_SerializesAccess(t *testing.T) {
	shared := NewShared(NewLocalRobot(nil))

	var (
		inside  int
		maxSeen int
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = shared.Do(func(ports.Robot) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
