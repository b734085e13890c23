package idgen

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDIncreasesWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	g := NewULIDWithSource(func() time.Time { return at }, rand.New(rand.NewSource(1)))

	prev := g.Generate()
	for i := 0; i < 100; i++ {
		next := g.Generate()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestULIDClockStepBack(t *testing.T) {
	at := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	g := NewULIDWithSource(func() time.Time { return at }, rand.New(rand.NewSource(2)))

	first := g.Generate()
	at = at.Add(-time.Minute)
	second := g.Generate()

	assert.Greater(t, second, first)
	created, err := Time(second)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC), created.UTC())
}

func TestULIDConcurrentUnique(t *testing.T) {
	g := NewULID()

	const workers, perWorker = 8, 200
	ids := make([]string, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids[w*perWorker+i] = g.Generate()
			}
		}(w)
	}
	wg.Wait()

	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		require.NotEqual(t, ids[i-1], ids[i])
	}
	assert.Len(t, ids[0], 26)
}

func TestTimeRejectsMalformed(t *testing.T) {
	_, err := Time("JE-202610-000001")
	assert.Error(t, err)
}
