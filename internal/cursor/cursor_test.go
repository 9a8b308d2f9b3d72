package cursor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor_ClampedSet(t *testing.T) {
	c := New()
	c.ClampTo(3)

	c.Set(2)
	assert.Equal(t, 2, c.Get())

	c.Set(10)
	assert.Equal(t, 3, c.Get())

	c.Set(-4)
	assert.Equal(t, 0, c.Get())
}

func TestCursor_ClampToShrinks(t *testing.T) {
	c := New()
	c.ClampTo(5)
	c.Set(5)

	c.ClampTo(2)
	assert.Equal(t, 2, c.Get())
	assert.Equal(t, 2, c.Len())

	c.ClampTo(-1)
	assert.Equal(t, 0, c.Get())
}

func TestCursor_AdvanceAfterInsert(t *testing.T) {
	c := New()
	c.ClampTo(3)
	c.Set(1)

	c.Advance(1)
	assert.Equal(t, 2, c.Get())
	assert.Equal(t, 4, c.Len())

	// consecutive inserts at the cursor land one after another
	c.Advance(c.Get())
	assert.Equal(t, 3, c.Get())
}

func TestCursor_OnRemove(t *testing.T) {
	tests := []struct {
		name    string
		pos     int
		removed int
		want    int
	}{
		{"before cursor", 3, 1, 2},
		{"at cursor", 3, 3, 3},
		{"after cursor", 1, 3, 1},
		{"cursor at end", 4, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.ClampTo(4)
			c.Set(tt.pos)
			c.OnRemove(tt.removed)
			assert.Equal(t, tt.want, c.Get())
			assert.Equal(t, 3, c.Len())
		})
	}
}

func TestCursor_OnRemoveEmpty(t *testing.T) {
	c := New()
	c.OnRemove(0)
	assert.Equal(t, 0, c.Get())
	assert.Equal(t, 0, c.Len())
}

func TestCursor_Concurrent(t *testing.T) {
	c := New()
	c.ClampTo(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(i * j)
				_ = c.Get()
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Get(), 100)
}
