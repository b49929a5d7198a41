package algorithm

import (
	"math/rand/v2"
	"testing"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) IntN {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).IntN
}

func TestSelector_EmptyPool(t *testing.T) {
	selector := NewSelector(model.ReportThreshold, seeded(1))

	item, err := selector.Select(nil)

	assert.Nil(t, item)
	assert.ErrorIs(t, err, ErrNoEligibleItems)
}

func TestSelector_AllReported(t *testing.T) {
	selector := NewSelector(model.ReportThreshold, seeded(1))
	items := []*model.Item{
		{ID: "a", ReportCount: 3},
		{ID: "b", ReportCount: 7},
	}

	_, err := selector.Select(items)

	assert.ErrorIs(t, err, ErrNoEligibleItems)
}

func TestSelector_NeverReturnsReportedItem(t *testing.T) {
	selector := NewSelector(model.ReportThreshold, seeded(42))
	x := &model.Item{ID: "x", ReportCount: 3}
	y := &model.Item{ID: "y", ReportCount: 2}

	for i := 0; i < 1000; i++ {
		item, err := selector.Select([]*model.Item{x, y})
		require.NoError(t, err)
		assert.Equal(t, "y", item.ID)
	}
}

func TestSelector_DoesNotMutatePool(t *testing.T) {
	selector := NewSelector(model.ReportThreshold, seeded(7))
	items := []*model.Item{{ID: "a"}, {ID: "b", ReportCount: 1}}

	for i := 0; i < 10; i++ {
		_, err := selector.Select(items)
		require.NoError(t, err)
	}

	assert.Len(t, items, 2)
	assert.Equal(t, 0, items[0].ReportCount)
	assert.Equal(t, 1, items[1].ReportCount)
}

func TestSelector_Uniform(t *testing.T) {
	selector := NewSelector(model.ReportThreshold, seeded(2024))

	const m = 5
	const draws = 50000
	items := make([]*model.Item, 0, m+1)
	for i := 0; i < m; i++ {
		items = append(items, &model.Item{ID: string(rune('a' + i))})
	}
	items = append(items, &model.Item{ID: "reported", ReportCount: model.ReportThreshold})

	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		item, err := selector.Select(items)
		require.NoError(t, err)
		counts[item.ID]++
	}

	assert.Zero(t, counts["reported"])
	require.Len(t, counts, m)

	// Chi-square with m-1 = 4 degrees of freedom; 18.47 is the 0.999 quantile.
	expected := float64(draws) / m
	chi := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}
	assert.Less(t, chi, 18.47)
}

func TestEligible(t *testing.T) {
	items := []*model.Item{
		{ID: "a", ReportCount: 0},
		nil,
		{ID: "b", ReportCount: 3},
		{ID: "c", ReportCount: 2},
	}

	eligible := Eligible(items, 3)

	require.Len(t, eligible, 2)
	assert.Equal(t, "a", eligible[0].ID)
	assert.Equal(t, "c", eligible[1].ID)
}
