package download

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoardSetGet(t *testing.T) {
	b := NewBoard()

	_, ok := b.Get("t1")
	assert.False(t, ok)

	b.Set("t1", "transferred 10.00%")
	line, ok := b.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, "transferred 10.00%", line)

	b.Set("t1", "transferred 20.00%")
	line, _ = b.Get("t1")
	assert.Equal(t, "transferred 20.00%", line)
	assert.Equal(t, 1, b.Len())
}

func TestBoardSnapshotIsACopy(t *testing.T) {
	b := NewBoard()
	b.Set("t1", "a")

	snap := b.Snapshot()
	snap["t1"] = "mutated"
	snap["t2"] = "added"

	line, _ := b.Get("t1")
	assert.Equal(t, "a", line)
	assert.Equal(t, 1, b.Len())
}

func TestBoardConcurrentWriters(t *testing.T) {
	b := NewBoard()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", w)
			for i := 0; i < 100; i++ {
				b.Set(id, fmt.Sprintf("update %d", i))
				b.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8, b.Len())
	for w := 0; w < 8; w++ {
		line, ok := b.Get(fmt.Sprintf("t%d", w))
		assert.True(t, ok)
		assert.Equal(t, "update 99", line)
	}
}
