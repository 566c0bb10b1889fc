package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/krakguard/internal/domain"
)

func newMedia(id int64, file string, h, w, size any) *domain.Media {
	m := &domain.Media{ID: id}
	m.SetValue(domain.PropertyFile, file)
	if h != nil {
		m.SetValue(domain.PropertyHeight, h)
	}
	if w != nil {
		m.SetValue(domain.PropertyWidth, w)
	}
	if size != nil {
		m.SetValue(domain.PropertySize, size)
	}
	return m
}

func TestReadInt(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 100, 100},
		{"int64", int64(5000), 5000},
		{"uint32", uint32(7), 7},
		{"numeric string", "250", 250},
		{"padded string", " 42 ", 42},
		{"garbage string", "abc", 0},
		{"empty string", "", 0},
		{"whole float", float64(640), 640},
		{"fractional float", 1.5, 0},
		{"json number", json.Number("1234"), 1234},
		{"negative", -3, 0},
		{"bool", true, 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &domain.Media{}
			m.SetValue(domain.PropertyHeight, tt.value)
			assert.Equal(t, tt.want, ReadInt(m, domain.PropertyHeight))
		})
	}
}

func TestReadInt_MissingProperty(t *testing.T) {
	assert.Equal(t, int64(0), ReadInt(&domain.Media{}, domain.PropertyWidth))
	assert.Equal(t, int64(0), ReadInt(nil, domain.PropertyWidth))
}

func TestTake_GarbageHeightDefaultsToZero(t *testing.T) {
	m := newMedia(7, "/media/1/a.jpg", "abc", 100, "5000")

	var snap AssetSnapshot
	require.NotPanics(t, func() { snap = Take(m) })

	assert.Equal(t, int64(7), snap.ID())
	assert.Equal(t, "/media/1/a.jpg", snap.FileRef())
	assert.Equal(t, int64(0), snap.Height())
	assert.Equal(t, int64(100), snap.Width())
	assert.Equal(t, int64(5000), snap.Size())
}

func TestTake_NilAsset(t *testing.T) {
	var m *domain.Media
	assert.Equal(t, AssetSnapshot{}, Take(m))
	assert.Equal(t, AssetSnapshot{}, Take(nil))
}

func TestTake_IsolatedFromLaterMutation(t *testing.T) {
	m := newMedia(1, "a.jpg", 100, 100, 5000)
	snap := Take(m)

	m.SetValue(domain.PropertySize, 6000)

	assert.Equal(t, int64(5000), snap.Size())
}

func TestBuild_PreservesOrderAndSkipsNil(t *testing.T) {
	set := Build([]domain.Asset{
		newMedia(3, "c.jpg", 1, 1, 1),
		nil,
		newMedia(1, "a.jpg", 1, 1, 1),
	})

	require.Equal(t, 2, set.Len())
	assert.Equal(t, int64(3), set.snapshots[0].ID())
	assert.Equal(t, int64(1), set.snapshots[1].ID())
}

func TestHasChanged(t *testing.T) {
	before := newMedia(10, "a.jpg", 100, 100, 5000)
	set := Build([]domain.Asset{before})

	tests := []struct {
		name  string
		after *domain.Media
		want  bool
	}{
		{"identical", newMedia(10, "a.jpg", 100, 100, 5000), false},
		{"identical via strings", newMedia(10, "a.jpg", "100", "100", "5000"), false},
		{"size changed", newMedia(10, "a.jpg", 100, 100, 6000), true},
		{"height changed", newMedia(10, "a.jpg", 101, 100, 5000), true},
		{"width changed", newMedia(10, "a.jpg", 100, 99, 5000), true},
		{"file changed", newMedia(10, "b.jpg", 100, 100, 5000), true},
		{"not in set", newMedia(11, "z.jpg", 1, 1, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, set.HasChanged(tt.after))
		})
	}
}

func TestHasChanged_NilInputs(t *testing.T) {
	set := Build([]domain.Asset{newMedia(1, "a.jpg", 1, 1, 1)})
	assert.False(t, set.HasChanged(nil))

	var empty *Set
	assert.False(t, empty.HasChanged(newMedia(1, "b.jpg", 1, 1, 1)))
}

func TestHasChanged_NewAssetHasPlaceholderID(t *testing.T) {
	// Assets created in this save carry ID 0 before and a real ID after.
	set := Build([]domain.Asset{newMedia(0, "new.jpg", 10, 10, 10)})
	assert.False(t, set.HasChanged(newMedia(42, "new.jpg", 20, 20, 20)))
}

func TestHasChanged_DuplicateIDsFirstWins(t *testing.T) {
	set := Build([]domain.Asset{
		newMedia(5, "first.jpg", 1, 1, 1),
		newMedia(5, "second.jpg", 2, 2, 2),
	})

	assert.False(t, set.HasChanged(newMedia(5, "first.jpg", 1, 1, 1)))
	assert.True(t, set.HasChanged(newMedia(5, "second.jpg", 2, 2, 2)))
}

func TestLookup(t *testing.T) {
	set := Build([]domain.Asset{newMedia(2, "a.jpg", 1, 2, 3)})

	snap, ok := set.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Width())

	_, ok = set.Lookup(99)
	assert.False(t, ok)
}
