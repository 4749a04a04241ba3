package lbl

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
)

//Range is a half interval [Begin, End) of sample indices owned by one worker.
type Range struct {
	Begin, End int
}

//Len returns the number of samples in the range.
func (r Range) Len() int {
	if r.End <= r.Begin {
		return 0
	}
	return r.End - r.Begin
}

//Empty checks whether the range holds no samples.
func (r Range) Empty() bool {
	return r.Len() == 0
}

//SplitRange splits [0, n) into threads contiguous chunks of ceil(n/threads) samples.
//The last chunk absorbs the remainder, so trailing chunks may be short or empty
//when there are more threads than samples.
func SplitRange(n, threads int) []Range {
	if threads < 1 {
		threads = 1
	}
	size := (n + threads - 1) / threads

	ranges := make([]Range, threads)
	for t := 0; t < threads; t++ {
		begin := min(t*size, n)
		end := min(begin+size, n)
		if t == threads-1 {
			end = n
		}
		ranges[t] = Range{Begin: begin, End: end}
	}
	return ranges
}

//defaultThreads resolves a non-positive thread count to the number of CPUs.
func defaultThreads(threads int) int {
	if threads > 0 {
		return threads
	}
	return runtime.NumCPU()
}

//forkJoin runs fn for every non-empty range on its own goroutine and blocks until all of them return.
//Workers must write only inside their own range; chunk is the index of the range and
//addresses the worker's slot for partial results.
func forkJoin(ranges []Range, fn func(chunk int, r Range)) {
	if len(ranges) == 1 {
		if !ranges[0].Empty() {
			fn(0, ranges[0])
		}
		return
	}

	var wg sync.WaitGroup
	for chunk, r := range ranges {
		if r.Empty() {
			continue
		}
		wg.Add(1)
		go func(chunk int, r Range) {
			defer wg.Done()
			fn(chunk, r)
		}(chunk, r)
	}
	wg.Wait()
}

//rowBlock returns the backing storage of rows [r.Begin, r.End) of m.
//m must be allocated by mat.NewDense so that its stride equals its width.
func rowBlock(m *mat.Dense, r Range) []float64 {
	raw := m.RawMatrix()
	return raw.Data[r.Begin*raw.Stride : r.End*raw.Stride]
}
