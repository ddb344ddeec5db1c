package kvdoc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/index"
)

func TestDoc_SetGetDelete(t *testing.T) {
	d := New("d1", "C1")
	assert.Equal(t, index.Version(0), d.Version())

	d.Set("milk", "2")
	d.Set("eggs", "12")
	d.Delete("milk")

	assert.Equal(t, index.Version(3), d.Version())
	_, ok := d.Get("milk")
	assert.False(t, ok)
	v, ok := d.Get("eggs")
	require.True(t, ok)
	assert.Equal(t, "12", v)
	assert.Equal(t, map[string]string{"eggs": "12"}, d.Values())

	entries := d.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "eggs", entries[0].Key)
	assert.True(t, entries[1].Deleted)
}

func TestDoc_ChangesSince(t *testing.T) {
	d := New("d1", "C1")
	d.Set("a", "1")
	d.Set("b", "2")

	all := decode(t, d, nil)
	assert.Len(t, all.Entries, 2)
	assert.Nil(t, all.FromVersion)
	assert.Equal(t, index.Version(2), all.Version)

	tail := decode(t, d, index.VersionPtr(1))
	require.Len(t, tail.Entries, 1)
	assert.Equal(t, "b", tail.Entries[0].Key)

	empty := decode(t, d, index.VersionPtr(2))
	assert.Empty(t, empty.Entries)
}

func TestDoc_ChangesSince_Deterministic(t *testing.T) {
	d := New("d1", "C1")
	d.Set("z", "1")
	d.Set("a", "2")

	first, err := d.ChangesSince(nil)
	require.NoError(t, err)
	second, err := d.ChangesSince(nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDoc_ApplyForeign(t *testing.T) {
	c1 := New("d1", "C1")
	c1.Set("a", "1")
	c1.Set("b", "2")

	c2 := New("d1", "C2")
	require.NoError(t, c2.ApplyChanges(changes(t, c1, nil)))

	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, c2.Values())
	assert.Equal(t, index.Version(2), c2.Version(), "the version catches up with the sender")
	state, ok := c2.ClientState("C1")
	require.True(t, ok)
	assert.Equal(t, index.Version(2), state)

	// Re-applying is a no-op.
	require.NoError(t, c2.ApplyChanges(changes(t, c1, nil)))
	assert.Equal(t, index.Version(2), c2.Version())
}

func TestDoc_ApplyForeign_Restamps(t *testing.T) {
	c1 := New("d1", "C1")
	c1.Set("a", "1")

	c2 := New("d1", "C2")
	c2.Set("x", "local")
	require.NoError(t, c2.ApplyChanges(changes(t, c1, nil)))

	// Entries accepted from C1 are re-shared as part of C2's history.
	tail := decode(t, c2, index.VersionPtr(1))
	require.Len(t, tail.Entries, 1)
	assert.Equal(t, "a", tail.Entries[0].Key)
	assert.Equal(t, "C1", tail.Entries[0].Origin)
}

func TestDoc_ApplyForeign_RaisesVersion(t *testing.T) {
	c2 := New("d1", "C2")
	c2.Set("k", "mine")

	// A stale write from C1@5 loses, yet the version still catches up.
	stale := &Changes{
		DocumentID: "d1",
		ClientID:   "C1",
		Version:    5,
		Entries:    []Entry{{Key: "k", Value: "old", Lamport: 1, Origin: "A0"}},
	}
	require.NoError(t, c2.apply(stale))
	assert.Equal(t, index.Version(5), c2.Version())
	v, _ := c2.Get("k")
	assert.Equal(t, "mine", v)

	// An accepted batch from a client behind us still moves forward.
	require.NoError(t, c2.ApplyChanges(foreign(t, "d1", "C3", 2)))
	assert.Equal(t, index.Version(6), c2.Version())
}

func TestDoc_LastWriterWins(t *testing.T) {
	c1 := New("d1", "C1")
	c2 := New("d1", "C2")
	c1.Set("k", "from-c1")
	c2.Set("k", "from-c2")

	// Same lamport time: the higher origin id wins on both sides.
	require.NoError(t, c1.ApplyChanges(changes(t, c2, nil)))
	require.NoError(t, c2.ApplyChanges(changes(t, c1, nil)))

	v1, _ := c1.Get("k")
	v2, _ := c2.Get("k")
	assert.Equal(t, "from-c2", v1)
	assert.Equal(t, v1, v2)

	// A write after witnessing the other side wins.
	c1.Set("k", "later")
	require.NoError(t, c2.ApplyChanges(changes(t, c1, nil)))
	v2, _ = c2.Get("k")
	assert.Equal(t, "later", v2)
}

func TestDoc_Commutative(t *testing.T) {
	c1 := New("d1", "C1")
	c1.Set("a", "1")
	c1.Delete("b")
	c3 := New("d1", "C3")
	c3.Set("b", "3")
	c3.Set("a", "3")

	p1, p3 := changes(t, c1, nil), changes(t, c3, nil)

	x := New("d1", "X")
	require.NoError(t, x.ApplyChanges(p1))
	require.NoError(t, x.ApplyChanges(p3))

	y := New("d1", "Y")
	require.NoError(t, y.ApplyChanges(p3))
	require.NoError(t, y.ApplyChanges(p1))

	assert.Equal(t, x.Values(), y.Values())
}

func TestDoc_ApplyWrongDocument(t *testing.T) {
	other := New("d2", "C1")
	other.Set("a", "1")

	d := New("d1", "C2")
	err := d.ApplyChanges(changes(t, other, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrongDocument))
}

func TestDoc_ApplyGarbage(t *testing.T) {
	d := New("d1", "C1")
	assert.Error(t, d.ApplyChanges([]byte(`not json`)))
	assert.Error(t, d.ApplyChanges([]byte(`{}`)))
}

func TestLoad_ResumesOwnHistory(t *testing.T) {
	src := New("d1", "C1")
	src.Set("a", "1")
	src.Set("b", "2")
	src.AddPeer("P1", index.Ref{URL: "mem://p/master", LastReceived: 4})
	require.NoError(t, src.ApplyChanges(foreign(t, "d1", "C9", 7)))

	first := changes(t, src, nil)
	src.Set("c", "3")
	second := changes(t, src, index.VersionPtr(7))

	d, err := Load(first, "")
	require.NoError(t, err)
	require.NoError(t, d.ApplyChanges(second))

	assert.Equal(t, "C1", d.ClientID())
	assert.Equal(t, src.Version(), d.Version())
	assert.Equal(t, src.Values(), d.Values())
	assert.Equal(t, src.ClientStates(), d.ClientStates())
	assert.Equal(t, src.Peers(), d.Peers())
	assert.Equal(t, src.Entries(), d.Entries())

	// The restored replica keeps writing after the source's clock.
	d.Set("d", "4")
	for _, e := range d.Entries() {
		if e.Key == "d" {
			assert.Greater(t, e.Lamport, uint64(8))
		}
	}
}

func TestLoad_Fork(t *testing.T) {
	src := New("d1", "C1")
	src.Set("a", "1")

	d, err := Load(changes(t, src, nil), "C2")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID())
	assert.Equal(t, "C2", d.ClientID())
	assert.Equal(t, map[string]string{"a": "1"}, d.Values())
	state, ok := d.ClientState("C1")
	require.True(t, ok)
	assert.Equal(t, index.Version(1), state)
}

func TestDoc_AddPeer_KeepsNewest(t *testing.T) {
	d := New("d1", "C1")
	d.AddPeer("P1", index.Ref{URL: "u1", LastReceived: 5})
	d.AddPeer("P1", index.Ref{URL: "u2", LastReceived: 3, Label: "bob"})

	p := d.Peers()["P1"]
	assert.Equal(t, index.Version(5), p.LastReceived)
	assert.Equal(t, "u2", p.URL)
	assert.Equal(t, "bob", p.Label)
}

func TestState_RoundTrip(t *testing.T) {
	d := New("d1", "C1")
	d.Set("a", "1")
	d.Delete("b")
	d.AddPeer("P1", index.Ref{URL: "u"})
	require.NoError(t, d.ApplyChanges(foreign(t, "d1", "C2", 3)))

	data, err := d.MarshalState()
	require.NoError(t, err)
	got, err := UnmarshalState(data)
	require.NoError(t, err)

	assert.Equal(t, d.ID(), got.ID())
	assert.Equal(t, d.ClientID(), got.ClientID())
	assert.Equal(t, d.Version(), got.Version())
	assert.Equal(t, d.Entries(), got.Entries())
	assert.Equal(t, d.ClientStates(), got.ClientStates())
	assert.Equal(t, d.Peers(), got.Peers())
	assert.Equal(t, d.clock.Current(), got.clock.Current())

	_, err = UnmarshalState([]byte(`{"documentID":"d1"}`))
	assert.Error(t, err)
}

func changes(t *testing.T, d *Doc, from *index.Version) []byte {
	t.Helper()
	data, err := d.ChangesSince(from)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, d *Doc, from *index.Version) *Changes {
	t.Helper()
	c, err := decodeChanges(changes(t, d, from))
	require.NoError(t, err)
	return c
}

// foreign builds a payload from clientID at version with a single entry.
func foreign(t *testing.T, documentID, clientID string, version index.Version) []byte {
	t.Helper()
	d := New(documentID, clientID)
	for d.Version() < version {
		d.Set("from-"+clientID, "x")
	}
	return changes(t, d, nil)
}
