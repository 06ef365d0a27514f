package router

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/bandit-router/router/metrics"
)

func TestNewRegistry_DefaultsHealthAndSortsSnapshot(t *testing.T) {
	// GIVEN arms registered out of order without an explicit health
	reg, err := NewRegistry(Arm{ID: "b", Target: "b:1"}, Arm{ID: "a", Target: "a:1"})
	require.NoError(t, err)

	// WHEN listing healthy arms
	got := reg.ListHealthy()

	// THEN both arms are healthy and sorted by id
	want := []Arm{
		{ID: "a", Target: "a:1", Health: HealthHealthy},
		{ID: "b", Target: "b:1", Health: HealthHealthy},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListHealthy() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRegistry_RejectsDuplicateAndEmptyIDs(t *testing.T) {
	_, err := NewRegistry(Arm{ID: "a"}, Arm{ID: "a"})
	assert.Error(t, err)

	_, err = NewRegistry(Arm{ID: ""})
	assert.Error(t, err)

	_, err = NewRegistry(Arm{ID: "a", Health: "sick"})
	assert.ErrorIs(t, err, ErrInvalidHealth)
}

func TestRegistry_MarkHealth_VisibleToNextListOnly(t *testing.T) {
	// GIVEN a snapshot taken before a health transition
	reg := mustRegistry(t, "a", "b", "c")
	before := reg.ListHealthy()

	// WHEN b is degraded and c excluded
	require.NoError(t, reg.MarkHealth("b", HealthDegraded))
	require.NoError(t, reg.MarkHealth("c", HealthExcluded))

	// THEN the old snapshot is untouched and the next one holds only a
	assert.Len(t, before, 3)
	after := reg.ListHealthy()
	require.Len(t, after, 1)
	assert.Equal(t, "a", after[0].ID)

	// THEN List still reports every arm with its state
	all := reg.List()
	require.Len(t, all, 3)
	assert.Equal(t, HealthDegraded, all[1].Health)
	assert.Equal(t, HealthExcluded, all[2].Health)
}

func TestRegistry_MarkHealth_Errors(t *testing.T) {
	reg := mustRegistry(t, "a")

	err := reg.MarkHealth("zzz", HealthDegraded)
	assert.True(t, errors.Is(err, ErrUnknownArm), "got %v", err)

	err = reg.MarkHealth("a", HealthState("flaky"))
	assert.True(t, errors.Is(err, ErrInvalidHealth), "got %v", err)

	a, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, HealthHealthy, a.Health, "failed transition must not change state")
}

func TestRegistry_UpsertRemoveGet(t *testing.T) {
	reg := mustRegistry(t, "a")

	require.NoError(t, reg.Upsert(Arm{ID: "a", Target: "new:1", CostWeight: 2}))
	a, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new:1", a.Target)
	assert.Equal(t, 2.0, a.CostWeight)

	assert.True(t, reg.Remove("a"))
	assert.False(t, reg.Remove("a"))
	_, ok = reg.Get("a")
	assert.False(t, ok)
	assert.Empty(t, reg.ListHealthy())
}

func TestRegistry_HealthCounts_PublishedAsGauge(t *testing.T) {
	// GIVEN three arms, one of which is degraded
	reg := mustRegistry(t, "a", "b", "c")
	require.NoError(t, reg.MarkHealth("c", HealthDegraded))

	// THEN counts and the arms gauge agree
	counts := reg.HealthCounts()
	assert.Equal(t, 2, counts[HealthHealthy])
	assert.Equal(t, 1, counts[HealthDegraded])
	assert.Equal(t, 0, counts[HealthExcluded])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArmHealthGauge(string(HealthDegraded))))
}

func TestIsValidHealthState(t *testing.T) {
	for _, s := range []string{"healthy", "degraded", "excluded"} {
		assert.True(t, IsValidHealthState(s), s)
	}
	assert.False(t, IsValidHealthState(""))
	assert.False(t, IsValidHealthState("down"))
}
