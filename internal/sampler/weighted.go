package sampler

import "math/rand/v2"

// Source supplies the uniform randomness every draw consumes.
type Source interface {
	// Float64 returns a value in [0,1).
	Float64() float64
	// IntN returns a value in [0,n).
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource returns the process-wide generator, safe for concurrent use.
func DefaultSource() Source {
	return globalSource{}
}

// Weighted pairs an item with its selection weight.
type Weighted[T any] struct {
	Item   T
	Weight float64
}

// Pick draws one item with probability proportional to its weight. The draw is
// uniform in [0,total) and weights are subtracted in order until the remainder
// is no longer positive. When the total is not positive, or floating-point
// drift leaves the remainder positive after the last item, the first item is
// returned. Pick reports false only for an empty list.
func Pick[T any](items []Weighted[T], source Source) (T, bool) {
	if len(items) == 0 {
		var zero T
		return zero, false
	}

	total := 0.0
	for _, item := range items {
		total += item.Weight
	}
	if total <= 0 {
		return items[0].Item, true
	}

	remaining := source.Float64() * total
	for _, item := range items {
		remaining -= item.Weight
		if remaining <= 0 {
			return item.Item, true
		}
	}
	return items[0].Item, true
}

// Uniform returns one element chosen uniformly, or false for an empty slice.
func Uniform[T any](items []T, source Source) (T, bool) {
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[source.IntN(len(items))], true
}
