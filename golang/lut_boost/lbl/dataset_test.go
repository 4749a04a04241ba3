package lbl

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewQDataSet(t *testing.T) {
	targets := mat.NewDense(3, 2, []float64{1, -1, -1, 1, 1, 1})
	ds, err := NewQDataSet([]uint16{0, 1, 3, 2, 2, 0}, []int{4, 3}, targets, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.NFeatures())
	assert.Equal(t, 3, ds.NSamples())
	assert.Equal(t, 2, ds.NOutputs())
	assert.Equal(t, 7, ds.NFValues())
	assert.Equal(t, 3, ds.NBuckets(1))
	assert.Equal(t, uint16(3), ds.Value(0, 2))
	assert.Equal(t, uint16(0), ds.Value(1, 2))
	assert.Equal(t, []float64{-1, 1}, ds.Targets(1))
	assert.Equal(t, 1.0, ds.Cost(0))

	targets.Set(0, 0, 100)
	assert.Equal(t, 1.0, ds.Targets(0)[0])
}

func TestNewQDataSetRejectsBadExtents(t *testing.T) {
	targets := mat.NewDense(2, 1, []float64{1, -1})

	cases := map[string]struct {
		values  []uint16
		buckets []int
		costs   []float64
	}{
		"values length":   {values: []uint16{0, 1, 0}, buckets: []int{2, 2}},
		"value too large": {values: []uint16{0, 2}, buckets: []int{2}},
		"no buckets":      {values: []uint16{0, 0}, buckets: []int{0}},
		"costs length":    {values: []uint16{0, 1}, buckets: []int{2}, costs: []float64{1}},
		"negative cost":   {values: []uint16{0, 1}, buckets: []int{2}, costs: []float64{1, -1}},
		"no features":     {values: nil, buckets: nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewQDataSet(tc.values, tc.buckets, targets, tc.costs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDimension), "%v", err)
		})
	}
}

func TestReadQDataSetFromNpy(t *testing.T) {
	dir := t.TempDir()
	valuesPath := filepath.Join(dir, "values.npy")
	targetsPath := filepath.Join(dir, "targets.npy")
	costsPath := filepath.Join(dir, "costs.npy")

	require.NoError(t, WriteNpy(valuesPath, mat.NewDense(3, 2, []float64{0, 2, 1, 0, 3, 1})))
	require.NoError(t, WriteNpy(targetsPath, mat.NewDense(3, 1, []float64{1, -1, 1})))
	require.NoError(t, WriteNpy(costsPath, mat.NewDense(3, 1, []float64{1, 2, 3})))

	ds, err := ReadQDataSet(valuesPath, targetsPath, costsPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NFeatures())
	assert.Equal(t, 4, ds.NBuckets(0))
	assert.Equal(t, 3, ds.NBuckets(1))
	assert.Equal(t, uint16(3), ds.Value(0, 2))
	assert.Equal(t, uint16(2), ds.Value(1, 0))
	assert.Equal(t, 2.0, ds.Cost(1))

	ds, err = ReadQDataSet(valuesPath, targetsPath, "", []int{8, 8})
	require.NoError(t, err)
	assert.Equal(t, 16, ds.NFValues())
	assert.Equal(t, 1.0, ds.Cost(1))

	_, err = ReadQDataSet(valuesPath, targetsPath, "", []int{8})
	assert.True(t, errors.Is(err, ErrDimension))

	require.NoError(t, WriteNpy(valuesPath, mat.NewDense(1, 2, []float64{0.5, 1})))
	_, err = ReadQDataSet(valuesPath, targetsPath, "", nil)
	assert.Error(t, err)
}
