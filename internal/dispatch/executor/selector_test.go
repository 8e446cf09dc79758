package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/G-Research/hpcdispatch/pkg/api"
)

func tieredPool(t *testing.T) *Pool {
	pool, err := NewPool(AxisMemory,
		Descriptor{Name: "small", Kind: KindBatch, Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("2G")}},
		Descriptor{Name: "medium", Kind: KindBatch, Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("4G")}},
		Descriptor{Name: "large", Kind: KindBatch, Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("8G")}},
	)
	assert.NoError(t, err)
	return pool
}

func memorySpec(value string) api.ResourceSpec {
	return api.ResourceSpec{Cores: 1, Memory: api.MustParseQuantity(value)}
}

func TestSelect_PicksLowestFittingTier(t *testing.T) {
	pool := tieredPool(t)

	assert.Equal(t, "small", pool.Select(memorySpec("1G")))
	assert.Equal(t, "medium", pool.Select(memorySpec("3G")))
	assert.Equal(t, "large", pool.Select(memorySpec("5G")))
}

func TestSelect_RequestAtCeilingFits(t *testing.T) {
	pool := tieredPool(t)

	assert.Equal(t, "small", pool.Select(memorySpec("2G")))
	assert.Equal(t, "medium", pool.Select(memorySpec("4G")))
	assert.Equal(t, "large", pool.Select(memorySpec("8G")))
}

func TestSelect_OverflowGoesToLargestTier(t *testing.T) {
	pool := tieredPool(t)

	assert.Equal(t, "large", pool.Select(memorySpec("10G")))
	assert.Equal(t, "large", pool.Select(memorySpec("500G")))
}

func TestSelect_EqualCeilingsPickEarlierTier(t *testing.T) {
	pool, err := NewPool(AxisMemory,
		Descriptor{Name: "first", Kind: KindBatch, Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("4G")}},
		Descriptor{Name: "second", Kind: KindBatch, Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("4G")}},
	)
	assert.NoError(t, err)

	assert.Equal(t, "first", pool.Select(memorySpec("3G")))
	assert.Equal(t, "first", pool.Select(memorySpec("4G")))
	// Overflow still spills to the last tier.
	assert.Equal(t, "second", pool.Select(memorySpec("5G")))
}

func TestSelect_MissingRequestPicksFirstTier(t *testing.T) {
	pool := tieredPool(t)

	assert.Equal(t, "small", pool.Select(api.ResourceSpec{Cores: 1}))
}

func TestSelect_IsDeterministic(t *testing.T) {
	pool := tieredPool(t)

	spec := memorySpec("3G")
	first := pool.Select(spec)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, pool.Select(spec))
	}
}

func TestSelect_SingleExecutorTakesEverything(t *testing.T) {
	pool, err := NewPool(AxisMemory, Descriptor{Name: "only", Kind: KindBatch})
	assert.NoError(t, err)

	assert.Equal(t, "only", pool.Select(memorySpec("1G")))
	assert.Equal(t, "only", pool.Select(memorySpec("900G")))
	assert.Equal(t, "only", pool.Select(api.ResourceSpec{}))
}

func TestSelect_CoresAxis(t *testing.T) {
	pool, err := NewPool(AxisCores,
		Descriptor{Name: "narrow", Kind: KindBatch, Ceiling: api.ResourceSpec{Cores: 4}},
		Descriptor{Name: "wide", Kind: KindBatch, Ceiling: api.ResourceSpec{Cores: 32}},
	)
	assert.NoError(t, err)

	assert.Equal(t, "narrow", pool.Select(api.ResourceSpec{Cores: 2}))
	assert.Equal(t, "wide", pool.Select(api.ResourceSpec{Cores: 16}))
	assert.Equal(t, "wide", pool.Select(api.ResourceSpec{Cores: 64}))
}

func TestSelect_WalltimeAxis(t *testing.T) {
	pool, err := NewPool(AxisWalltime,
		Descriptor{Name: "short", Kind: KindBatch, Ceiling: api.ResourceSpec{Walltime: time.Hour}},
		Descriptor{Name: "long", Kind: KindBatch, Ceiling: api.ResourceSpec{Walltime: 40 * time.Hour}},
	)
	assert.NoError(t, err)

	assert.Equal(t, "short", pool.Select(api.ResourceSpec{Walltime: 10 * time.Minute}))
	assert.Equal(t, "long", pool.Select(api.ResourceSpec{Walltime: 12 * time.Hour}))
}

func TestNewPool_RejectsEmptyPool(t *testing.T) {
	_, err := NewPool(AxisMemory)
	assert.Error(t, err)
}

func TestNewPool_RejectsDuplicateNames(t *testing.T) {
	_, err := NewPool(AxisMemory,
		Descriptor{Name: "a", Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("2G")}},
		Descriptor{Name: "a", Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("4G")}},
	)
	assert.Error(t, err)
}

func TestNewPool_RejectsUnboundedTierInTieredPool(t *testing.T) {
	_, err := NewPool(AxisMemory,
		Descriptor{Name: "small", Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("2G")}},
		Descriptor{Name: "unbounded"},
	)
	assert.Error(t, err)
}

func TestNewPool_RejectsDecreasingCeilings(t *testing.T) {
	_, err := NewPool(AxisMemory,
		Descriptor{Name: "big", Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("8G")}},
		Descriptor{Name: "small", Ceiling: api.ResourceSpec{Memory: api.MustParseQuantity("2G")}},
	)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	pool := tieredPool(t)

	medium, ok := pool.Lookup("medium")
	assert.True(t, ok)
	assert.Equal(t, "medium", medium.Name)

	_, ok = pool.Lookup("missing")
	assert.False(t, ok)
}

func TestParseAxis(t *testing.T) {
	axis, err := ParseAxis("memory")
	assert.NoError(t, err)
	assert.Equal(t, AxisMemory, axis)

	_, err = ParseAxis("gpus")
	assert.Error(t, err)
}
