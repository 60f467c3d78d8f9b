package mb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocksim/flock/mem"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	require.NoError(t, m.RegisterMessage("location"))
	require.NoError(t, m.DeclareVar("location", "x", mem.TypeDouble))
	require.NoError(t, m.RegisterMessage("signal"))
	require.NoError(t, m.DeclareVar("signal", "v", mem.TypeInt))
	return m
}

func TestManagerRegistry(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.Exists("location"))
	assert.False(t, m.Exists("ghost"))
	assert.Equal(t, []string{"location", "signal"}, m.MessageNames())

	assert.ErrorIs(t, m.RegisterMessage("location"), ErrDuplicateName)

	_, err := m.Board("ghost")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = m.Writer("ghost")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = m.Iterator("ghost")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.ErrorIs(t, m.Sync("ghost"), ErrUnknownMessage)
	assert.ErrorIs(t, m.Clear("ghost"), ErrUnknownMessage)
	_, err = m.CommittedCount("ghost")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestProxyCapabilities(t *testing.T) {
	m := newTestManager(t)
	p := NewProxy(m)

	require.NoError(t, p.AllowRead("location"))
	require.NoError(t, p.AllowRead("location")) // idempotent
	require.NoError(t, p.AllowPost("signal"))

	assert.True(t, p.CanRead("location"))
	assert.True(t, p.CanPost("signal"))

	// read and post on the same message conflict
	assert.ErrorIs(t, p.AllowPost("location"), ErrInvalidOperation)
	assert.ErrorIs(t, p.AllowRead("signal"), ErrInvalidOperation)

	assert.ErrorIs(t, p.AllowRead("ghost"), ErrUnknownMessage)
	assert.ErrorIs(t, p.AllowPost("ghost"), ErrUnknownMessage)
}

func TestClientAccessControl(t *testing.T) {
	m := newTestManager(t)
	p := NewProxy(m)
	require.NoError(t, p.AllowRead("location"))
	require.NoError(t, p.AllowPost("signal"))

	c := p.Client()

	_, err := c.GetMessages("location")
	require.NoError(t, err)
	_, err = c.GetMessages("signal")
	assert.ErrorIs(t, err, ErrNoReadAccess)

	w, err := c.GetWriter("signal")
	require.NoError(t, err)
	_, err = c.GetWriter("location")
	assert.ErrorIs(t, err, ErrNoPostAccess)

	// writer is cached per client
	w2, err := c.GetWriter("signal")
	require.NoError(t, err)
	assert.Same(t, w, w2)

	msg, err := c.NewMessage("signal")
	require.NoError(t, err)
	require.NoError(t, msg.SetInt("v", 7))
	require.NoError(t, msg.Post())
}

func TestClientWriterReacquiredAfterSync(t *testing.T) {
	m := newTestManager(t)
	p := NewProxy(m)
	require.NoError(t, p.AllowPost("signal"))

	c := p.Client()
	w, err := c.GetWriter("signal")
	require.NoError(t, err)

	require.NoError(t, m.Sync("signal"))
	assert.False(t, w.Connected())

	w2, err := c.GetWriter("signal")
	require.NoError(t, err)
	assert.NotSame(t, w, w2)
	assert.True(t, w2.Connected())
}

func TestClientsAreIsolated(t *testing.T) {
	m := newTestManager(t)
	p := NewProxy(m)
	require.NoError(t, p.AllowPost("signal"))

	c1 := p.Client()
	c2 := p.Client()

	w1, err := c1.GetWriter("signal")
	require.NoError(t, err)
	w2, err := c2.GetWriter("signal")
	require.NoError(t, err)
	assert.NotSame(t, w1, w2)

	// a post through one client is invisible to the other until sync
	msg := w1.NewMessage()
	require.NoError(t, msg.SetInt("v", 1))
	require.NoError(t, msg.Post())

	n, err := m.CommittedCount("signal")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, m.Sync("signal"))
	n, err = m.CommittedCount("signal")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
