package algorithm

import (
	"errors"
	"math/rand/v2"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
)

// ErrNoEligibleItems is returned when every item is at or above the report threshold
var ErrNoEligibleItems = errors.New("no eligible items")

// IntN returns a uniformly distributed int in [0, n)
type IntN func(n int) int

// Selector draws items uniformly at random from the eligible subset of a pool
type Selector struct {
	threshold int
	intn      IntN
}

// NewSelector creates a selector. A nil intn uses math/rand/v2, which is safe
// for concurrent use.
func NewSelector(threshold int, intn IntN) *Selector {
	if intn == nil {
		intn = rand.IntN
	}
	return &Selector{
		threshold: threshold,
		intn:      intn,
	}
}

// Select returns one item with ReportCount below the threshold. The pool is
// not modified.
func (s *Selector) Select(items []*model.Item) (*model.Item, error) {
	eligible := Eligible(items, s.threshold)
	if len(eligible) == 0 {
		return nil, ErrNoEligibleItems
	}
	return eligible[s.intn(len(eligible))], nil
}

// Eligible filters the items below the report threshold, preserving order
func Eligible(items []*model.Item, threshold int) []*model.Item {
	eligible := make([]*model.Item, 0, len(items))
	for _, item := range items {
		if item != nil && item.ReportCount < threshold {
			eligible = append(eligible, item)
		}
	}
	return eligible
}
