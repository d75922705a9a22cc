package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/channel"
)

func TestChannelRegistryRegisterLookupRemove(t *testing.T) {
	r := NewChannelRegistry()
	ch := channel.NewMemChannel("TEST:PV1", 0)

	r.Register("TEST:PV1", ch)
	got, ok := r.Lookup("TEST:PV1")
	require.True(t, ok)
	assert.Same(t, ch, got)
	assert.Equal(t, 1, r.Size())

	r.Remove("TEST:PV1")
	_, ok = r.Lookup("TEST:PV1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestChannelRegistryClearEmptiesRegistry(t *testing.T) {
	r := NewChannelRegistry()
	r.Register("A", channel.NewMemChannel("A", 0))
	r.Register("B", channel.NewMemChannel("B", 1))
	require.Equal(t, 2, r.Size())

	r.Clear()
	assert.Equal(t, 0, r.Size())
	assert.Empty(t, r.Snapshot())
}

func TestChannelRegistryForEachVisitsAllEntries(t *testing.T) {
	r := NewChannelRegistry()
	r.Register("A", channel.NewMemChannel("A", 0))
	r.Register("B", channel.NewMemChannel("B", 1))

	seen := make(map[string]bool)
	r.ForEach(func(baseName string, ch channel.ArchiveChannel) {
		seen[baseName] = true
	})
	assert.Equal(t, map[string]bool{"A": true, "B": true}, seen)
}

func TestControllingPVRegistryStopAllAndClear(t *testing.T) {
	r := NewControllingPVRegistry()
	a := channel.NewMemChannel("CTRL:A", 0)
	b := channel.NewMemChannel("CTRL:B", 0)
	r.Register("CTRL:A", a)
	r.Register("CTRL:B", b)
	require.Equal(t, 2, r.Size())

	errs := r.StopAllAndClear()
	assert.Empty(t, errs)
	assert.Equal(t, 0, r.Size())
	assert.True(t, a.Stopped())
	assert.True(t, b.Stopped())
}
