package session

import (
	"sync/atomic"
	"testing"

	"parser2gis/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSession struct {
	id      string
	stopped atomic.Int32
}

func (f *fakeSession) Stop()            { f.stopped.Add(1) }
func (f *fakeSession) TargetID() string { return f.id }

func TestManagerLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(nil)
	a, b := &fakeSession{id: "A"}, &fakeSession{id: "B"}

	idA, ok := m.Register(a)
	require.True(t, ok)
	idB, ok := m.Register(b)
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)
	assert.Len(t, m.List(), 2)

	assert.Contains(t, m.List(), idA)

	m.Delete(idA)
	assert.Equal(t, []model.SessionID{idB}, m.List())
	assert.Zero(t, a.stopped.Load(), "注销不停止会话")

	m.StopAll()
	assert.Equal(t, int32(1), b.stopped.Load())
	assert.Empty(t, m.List())
	assert.True(t, m.Closed())
}

func TestRegisterAfterStopAll(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	m.StopAll()

	late := &fakeSession{id: "late"}
	_, ok := m.Register(late)
	assert.False(t, ok)
	assert.Equal(t, int32(1), late.stopped.Load())
	assert.Empty(t, m.List())
}
