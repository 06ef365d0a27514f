package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/bandit-router/router"
)

func TestNewEnvironment_SameSeedSameWorld(t *testing.T) {
	a := NewEnvironment(DefaultConfig())
	b := NewEnvironment(DefaultConfig())

	for i := 0; i < 20; i++ {
		key := Key(i)
		assert.Equal(t, a.Features(key), b.Features(key))
		for _, arm := range a.Arms() {
			assert.Equal(t, a.ExpectedReward(arm.ID, key), b.ExpectedReward(arm.ID, key))
		}
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.NextKey(), b.NextKey())
	}
}

func TestNewEnvironment_ArmsAndKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArmIDs = []string{"east", "west"}
	env := NewEnvironment(cfg)

	arms := env.Arms()
	require.Len(t, arms, 2)
	assert.Equal(t, "east", arms[0].ID)
	assert.Equal(t, router.HealthHealthy, arms[1].Health)
	assert.Len(t, env.Features(Key(cfg.Keys-1)), cfg.Dim)
	assert.Nil(t, env.Features("nope"))
	assert.Zero(t, env.ExpectedReward("ghost", Key(0)))
}

func TestNewEnvironment_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { NewEnvironment(Config{Arms: 0, Keys: 1}) })
	assert.Panics(t, func() { NewEnvironment(Config{Arms: 1, Keys: 0}) })
	assert.Panics(t, func() { NewEnvironment(Config{Arms: 1, Keys: 1, Dim: -1}) })
}

func TestReward_WithinUnitInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseStdDev = 2
	env := NewEnvironment(cfg)

	for i := 0; i < 500; i++ {
		r := env.Reward("arm-0", env.NextKey())
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}

func TestBestArm_MaximizesExpectedReward(t *testing.T) {
	env := NewEnvironment(DefaultConfig())
	key := Key(7)

	best, reward := env.BestArm(key, env.Arms())

	for _, a := range env.Arms() {
		assert.LessOrEqual(t, env.ExpectedReward(a.ID, key), reward, a.ID)
	}
	assert.Equal(t, reward, env.ExpectedReward(best, key))
}

func TestFeatureStore_ServesFeatures(t *testing.T) {
	env := NewEnvironment(DefaultConfig())
	store := env.FeatureStore()

	c, err := store.FetchContext(context.Background(), Key(3))
	require.NoError(t, err)
	assert.Equal(t, env.Features(Key(3)), c.Features)

	_, err = store.FetchContext(context.Background(), "unknown")
	assert.True(t, errors.Is(err, router.ErrContextUnavailable))
}

func TestFeatureStore_FaultsAlwaysFailWithinDeadline(t *testing.T) {
	// GIVEN every lookup faults
	cfg := DefaultConfig()
	cfg.FaultRate = 1
	store := NewEnvironment(cfg).FeatureStore()

	// WHEN lookups run under a short deadline
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := store.FetchContext(ctx, Key(i))
		cancel()

		// THEN each one fails with ErrContextUnavailable
		assert.True(t, errors.Is(err, router.ErrContextUnavailable))
	}
}

func TestFlap_KeepsOneHealthyArm(t *testing.T) {
	// GIVEN an environment that flaps on every call
	cfg := DefaultConfig()
	cfg.Arms = 3
	cfg.FlapRate = 1
	env := NewEnvironment(cfg)
	reg, err := router.NewRegistry(env.Arms()...)
	require.NoError(t, err)

	// WHEN flapping many times
	toggled := 0
	for i := 0; i < 200; i++ {
		if env.Flap(reg) != "" {
			toggled++
		}
		// THEN at least one arm stays routable
		require.NotEmpty(t, reg.ListHealthy())
	}
	assert.Positive(t, toggled)
}

func TestFlap_Disabled(t *testing.T) {
	env := NewEnvironment(DefaultConfig())
	reg, err := router.NewRegistry(env.Arms()...)
	require.NoError(t, err)

	assert.Empty(t, env.Flap(reg))
	assert.Len(t, reg.ListHealthy(), len(env.Arms()))
}
