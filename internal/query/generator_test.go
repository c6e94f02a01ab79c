// internal/query/generator_test.go
package query

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%02d", i)
	}
	return out
}

func TestTermsAreDistinctMembers(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for k := 0; k <= n; k++ {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				p := pool(n)
				g := NewGenerator(p, uint64(n*100+k))
				members := make(map[string]bool, n)
				for _, w := range p {
					members[w] = true
				}

				for round := 0; round < 25; round++ {
					terms, err := g.Terms(k)
					require.NoError(t, err)
					require.Len(t, terms, k)

					seen := make(map[string]bool, k)
					for _, term := range terms {
						assert.True(t, members[term], "term %q not in pool", term)
						assert.False(t, seen[term], "duplicate term %q", term)
						seen[term] = true
					}
				}
			})
		}
	}
}

func TestWholePoolIsAPermutation(t *testing.T) {
	p := pool(50)
	g := NewGenerator(p, 7)

	terms, err := g.Terms(len(p))
	require.NoError(t, err)
	assert.ElementsMatch(t, p, terms)
}

func TestErrors(t *testing.T) {
	_, err := NewGenerator(nil, 1).Terms(1)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = NewGenerator([]string{" ", ""}, 1).Phrase(1)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = NewGenerator(pool(2), 1).Terms(3)
	assert.ErrorIs(t, err, ErrArityExceedsPool)

	_, err = NewGenerator(pool(2), 1).Terms(-1)
	assert.ErrorIs(t, err, ErrArityExceedsPool)
}

func TestNormalizeDropsDuplicates(t *testing.T) {
	g := NewGenerator([]string{"sea", " sea ", "ocean", "", "sea"}, 1)
	assert.Equal(t, 2, g.Size())

	// Two distinct words survive, so asking for both always succeeds.
	terms, err := g.Terms(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sea", "ocean"}, terms)
}

func TestPhrase(t *testing.T) {
	g := NewGenerator([]string{"ocean", "sea", "marine", "tide"}, 3)
	phrase, err := g.Phrase(3)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(phrase), 3)
}

func TestSeededGeneratorsAgree(t *testing.T) {
	a, err := NewGenerator(pool(30), 42).Phrase(3)
	require.NoError(t, err)
	b, err := NewGenerator(pool(30), 42).Phrase(3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConcurrentUse(t *testing.T) {
	g := NewGenerator(pool(20), 9)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				terms, err := g.Terms(3)
				if assert.NoError(t, err) {
					assert.Len(t, terms, 3)
				}
			}
		}()
	}
	wg.Wait()
}
