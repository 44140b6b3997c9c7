package traffic

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachOnlyOnce(t *testing.T) {
	t.Parallel()

	req := NewRequest()
	first := &Response{URL: "a"}
	second := &Response{URL: "b"}

	assert.False(t, req.Attach(nil))
	assert.True(t, req.Attach(first))
	assert.False(t, req.Attach(second))
	assert.Same(t, first, req.Response())
}

func TestNewFailedResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		errText, blocked, want string
	}{
		{"net::ERR_FAILED", "", "error: net::ERR_FAILED"},
		{"", "inspector", "blocked_reason: inspector"},
		{"net::ERR_BLOCKED_BY_CLIENT", "inspector", "error: net::ERR_BLOCKED_BY_CLIENT, blocked_reason: inspector"},
	}
	for _, tt := range tests {
		r := NewFailedResponse("1", "https://x", tt.errText, tt.blocked)
		assert.True(t, r.Failed())
		assert.Equal(t, tt.want, r.StatusText)
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	t.Parallel()

	h := make(Header)
	h.Set("Content-Type", "application/json")
	assert.Equal(t, "application/json", h.Get("content-type"))
	var empty Header
	assert.Empty(t, empty.Get("x"))
}

func TestResponseQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewResponseQueue()
	_, ok := q.Pop()
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		q.Push(&Response{RequestID: fmt.Sprint(i)})
	}
	require.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		r, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), r.RequestID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestResponseQueueConcurrent(t *testing.T) {
	t.Parallel()

	q := NewResponseQueue()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(&Response{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())

	popped := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		popped++
	}
	assert.Equal(t, 800, popped)
	q.Push(&Response{})
	q.Drain()
	assert.Equal(t, 0, q.Len())
}
