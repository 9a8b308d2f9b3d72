package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/hybridseq/internal/item"
)

func TestItemHelpers(t *testing.T) {
	items := []item.Item{
		Item("q", "a", 1000),
		Item("q", "B-1", 2000),
		Item("q", "b1", 3000),
	}

	assert.Equal(t, []string{"a", "B-1", "b1"}, IDs(items))
	assert.Equal(t, 2, CountID(items, "b1"))
	assert.True(t, UniqueOrderKeys(items))

	items[2].OrderKey = 1000
	assert.False(t, UniqueOrderKeys(items))
}
