// internal/query/generator.go
package query

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

var (
	// ErrEmptyPool is returned when a generator has no terms to draw from.
	ErrEmptyPool = errors.New("word pool is empty")
	// ErrArityExceedsPool is returned when more distinct terms are requested than the pool holds.
	ErrArityExceedsPool = errors.New("requested more terms than the pool holds")
)

// Generator samples distinct terms from a fixed pool. It is safe for
// concurrent use; all sessions of a run share one.
type Generator struct {
	pool []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator over the de-duplicated, non-blank terms of pool.
func NewGenerator(pool []string, seed uint64) *Generator {
	return &Generator{
		pool: Normalize(pool),
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Normalize trims terms and drops blanks and duplicates, keeping first-seen order.
func Normalize(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, w := range pool {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Size reports the number of distinct terms.
func (g *Generator) Size() int { return len(g.pool) }

// Terms returns k distinct terms chosen uniformly without replacement. It
// runs a partial Fisher-Yates shuffle over an index slice: exactly k swaps,
// so it terminates even when k equals the pool size.
func (g *Generator) Terms(k int) ([]string, error) {
	n := len(g.pool)
	if n == 0 {
		return nil, ErrEmptyPool
	}
	if k < 0 || k > n {
		return nil, fmt.Errorf("%w: k=%d, pool=%d", ErrArityExceedsPool, k, n)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	g.mu.Lock()
	for i := 0; i < k; i++ {
		j := i + g.rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	g.mu.Unlock()

	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = g.pool[idx[i]]
	}
	return out, nil
}

// Phrase returns k distinct terms joined by single spaces.
func (g *Generator) Phrase(k int) (string, error) {
	terms, err := g.Terms(k)
	if err != nil {
		return "", err
	}
	return strings.Join(terms, " "), nil
}
