package lbl

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSplitRange(t *testing.T) {
	assert.Equal(t, []Range{{0, 4}, {4, 8}, {8, 10}}, SplitRange(10, 3))
	assert.Equal(t, []Range{{0, 1}, {1, 2}, {2, 2}, {2, 2}}, SplitRange(2, 4))
	assert.Equal(t, []Range{{0, 7}}, SplitRange(7, 0))

	ranges := SplitRange(2, 4)
	assert.Equal(t, 1, ranges[0].Len())
	assert.True(t, ranges[3].Empty())
}

func TestForkJoinVisitsEverySampleOnce(t *testing.T) {
	const n = 1003
	for _, threads := range []int{1, 3, 8, 2000} {
		visits := make([]int32, n)
		forkJoin(SplitRange(n, threads), func(_ int, r Range) {
			for s := r.Begin; s < r.End; s++ {
				atomic.AddInt32(&visits[s], 1)
			}
		})
		for s, count := range visits {
			require.EqualValues(t, 1, count, "threads %d sample %d", threads, s)
		}
	}
}

func TestRowBlock(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	block := rowBlock(m, Range{1, 3})
	assert.Equal(t, []float64{2, 3, 4, 5}, block)

	block[0] = 20
	assert.Equal(t, 20.0, m.At(1, 0))
	assert.Empty(t, rowBlock(m, Range{4, 4}))
}
