package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimal() Snapshot {
	return Snapshot{
		Scalars: []float64{0, 0, 0, 1.5},
		Colors:  []Color{{}},
	}
}

func TestResetFromRequiresReservedSlots(t *testing.T) {
	s, err := New(minimal())
	require.NoError(t, err)

	err = s.ResetFrom(Snapshot{Scalars: []float64{0, 0}, Colors: []Color{{}}})
	assert.True(t, errors.Is(err, ErrReservedSlots))

	err = s.ResetFrom(Snapshot{Scalars: []float64{0, 0, 0}})
	assert.True(t, errors.Is(err, ErrReservedSlots))

	// untouched after a rejected reset
	assert.Equal(t, 1.5, s.Scalar(3))
	assert.Equal(t, uint64(1), s.Generation())
}

func TestResetFromReplacesWholesale(t *testing.T) {
	s, err := New(Snapshot{
		Scalars:    []float64{0, 0, 0, 7},
		Colors:     []Color{{}, {R: 9}},
		RealColors: []RealColor{{R: 1}},
		Data:       []Data{{1, 2, 3}},
	})
	require.NoError(t, err)

	require.NoError(t, s.ResetFrom(minimal()))
	assert.Equal(t, Counts{Scalars: 4, Colors: 1}, s.Counts())
	assert.Equal(t, 1.5, s.Scalar(3))
	assert.Equal(t, uint64(2), s.Generation())
}

func TestResetFromCopiesInput(t *testing.T) {
	snap := Snapshot{
		Scalars: []float64{0, 0, 0},
		Colors:  []Color{{}},
		Data:    []Data{{1, 2, 3}},
	}
	s, err := New(snap)
	require.NoError(t, err)

	snap.Scalars[0] = 42
	snap.Data[0][0] = 9
	assert.Equal(t, 0.0, s.Scalar(0))
	assert.Equal(t, Data{1, 2, 3}, s.Data(0))
}

func TestOutOfRangeIsFailSafe(t *testing.T) {
	s, err := New(minimal())
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Scalar(99))
	assert.False(t, s.SetScalar(-1, 3))
	assert.Equal(t, Position{}, s.Position(0))
	assert.False(t, s.SetColor(5, Color{R: 1}))
	assert.Equal(t, RealColor{}, s.RealColor(2))
	assert.Nil(t, s.Data(0))
	assert.False(t, s.SetData(0, Data{1}))
	assert.Equal(t, uint64(7), s.Misses())

	assert.True(t, s.SetScalar(3, 2))
	assert.Equal(t, 2.0, s.Scalar(3))
	assert.Equal(t, uint64(7), s.Misses())
}

func TestSnapshotDocumentKeys(t *testing.T) {
	raw := `{
		"float": [0, 0, 0, 0.25],
		"position": [{"x": 1, "y": 2}],
		"color": [{"r": 1, "g": 2, "b": 3}],
		"rcolor": [{"r": 0.5, "g": 0, "b": 1}],
		"data": ["AQID"]
	}`
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))

	s, err := New(snap)
	require.NoError(t, err)
	assert.Equal(t, 0.25, s.Scalar(3))
	assert.Equal(t, Position{X: 1, Y: 2}, s.Position(0))
	assert.Equal(t, Color{R: 1, G: 2, B: 3}, s.Color(0))
	assert.Equal(t, RealColor{R: 0.5, B: 1}, s.RealColor(0))
	assert.Equal(t, Data{1, 2, 3}, s.Data(0))
}
