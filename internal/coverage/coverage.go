// Package coverage tracks how often each category has been probed and
// picks the next one so that coverage stays balanced.
package coverage

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/abhisek/twinly/internal/catalog"
)

// Counts maps a category name to how many questions it has produced.
// Absent keys count as zero.
type Counts map[string]int

// Increment bumps the count for name, allocating the map if needed.
func (c *Counts) Increment(name string) {
	if *c == nil {
		*c = make(Counts)
	}
	(*c)[name]++
}

// Min returns the lowest count across categories.
func (c Counts) Min(categories []catalog.Category) int {
	low := -1
	for _, cat := range categories {
		if n := c[cat.Name]; low < 0 || n < low {
			low = n
		}
	}
	if low < 0 {
		return 0
	}
	return low
}

// Tracker picks the least-probed category.
type Tracker struct {
	categories []catalog.Category

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRand sets the random source used to break ties.
func WithRand(r *rand.Rand) Option {
	return func(t *Tracker) { t.rng = r }
}

// New creates a Tracker over categories. It panics on an empty catalog.
func New(categories []catalog.Category, opts ...Option) *Tracker {
	if len(categories) == 0 {
		panic("coverage: empty category catalog")
	}
	t := &Tracker{categories: categories}
	for _, o := range opts {
		o(t)
	}
	if t.rng == nil {
		seed := uint64(time.Now().UnixNano())
		t.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return t
}

// Pick returns a category with the minimum count, chosen uniformly among ties.
func (t *Tracker) Pick(counts Counts) catalog.Category {
	low := counts.Min(t.categories)

	tied := make([]catalog.Category, 0, len(t.categories))
	for _, cat := range t.categories {
		if counts[cat.Name] == low {
			tied = append(tied, cat)
		}
	}

	t.mu.Lock()
	i := t.rng.IntN(len(tied))
	t.mu.Unlock()
	return tied[i]
}
