package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferWrapsAround(t *testing.T) {
	rb := NewRingBuffer[int](3)
	assert.Empty(t, rb.GetAll())

	rb.Append(1)
	rb.Append(2)
	assert.Equal(t, []int{1, 2}, rb.GetAll())
	assert.False(t, rb.IsFull())

	rb.Append(3)
	rb.Append(4)
	assert.True(t, rb.IsFull())
	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, []int{2, 3, 4}, rb.GetAll())
	assert.Equal(t, []int{3, 4}, rb.GetLatest(2))
	assert.Equal(t, []int{2, 3, 4}, rb.GetLatest(10))
	assert.Empty(t, rb.GetLatest(0))

	rb.Clear()
	assert.Equal(t, 0, rb.Size())
	assert.Equal(t, 3, rb.Capacity())
}
