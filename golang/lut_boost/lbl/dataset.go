package lbl

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//DataSet is a read-only store of quantized samples.
//Implementations must be safe for concurrent reads.
type DataSet interface {
	NFeatures() int
	NSamples() int
	NOutputs() int
	//NFValues is the total number of (feature, bucket) entries.
	NFValues() int
	NBuckets(f int) int
	Value(f, s int) uint16
	Targets(s int) []float64
	Cost(s int) float64
}

//QDataSet keeps quantized feature values in memory, feature by feature.
type QDataSet struct {
	values      []uint16 // values[f*nSamples+s]
	buckets     []int
	nFValues    int
	targets     *mat.Dense
	costs       []float64
	nSamples    int
	Description *string
}

//NewQDataSet validates the extents of the arrays and unites them into one data set.
//values is feature-major, targets has one row per sample and one column per output,
//and nil costs mean that every sample weighs 1.
func NewQDataSet(values []uint16, buckets []int, targets *mat.Dense, costs []float64) (*QDataSet, error) {
	if targets == nil || targets.IsEmpty() {
		return nil, dimensionError("empty targets")
	}
	h, _ := targets.Dims()
	w := len(buckets)
	if w == 0 {
		return nil, dimensionError("no features")
	}
	if len(values) != w*h {
		return nil, dimensionError("got %d quantized values, want %d features x %d samples", len(values), w, h)
	}

	nFValues := 0
	for f, count := range buckets {
		if count < 1 || count > math.MaxUint16+1 {
			return nil, dimensionError("feature %d has %d buckets", f, count)
		}
		nFValues += count
		for s := 0; s < h; s++ {
			if int(values[f*h+s]) >= count {
				return nil, dimensionError("sample %d has value %d for feature %d with %d buckets", s, values[f*h+s], f, count)
			}
		}
	}

	if costs == nil {
		costs = make([]float64, h)
		for s := range costs {
			costs[s] = 1.0
		}
	}
	if len(costs) != h {
		return nil, dimensionError("the costs length %d is not equal to the number of samples %d", len(costs), h)
	}
	for s, cost := range costs {
		if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
			return nil, dimensionError("sample %d has invalid cost %g", s, cost)
		}
	}

	return &QDataSet{
		values:   append([]uint16(nil), values...),
		buckets:  append([]int(nil), buckets...),
		nFValues: nFValues,
		targets:  mat.DenseCopyOf(targets),
		costs:    append([]float64(nil), costs...),
		nSamples: h,
	}, nil
}

//SetDescription sets a description for a data set, it shows up in the logs.
func (ds *QDataSet) SetDescription(description string) {
	ds.Description = &description
}

func (ds *QDataSet) NFeatures() int { return len(ds.buckets) }
func (ds *QDataSet) NSamples() int  { return ds.nSamples }
func (ds *QDataSet) NFValues() int  { return ds.nFValues }

func (ds *QDataSet) NOutputs() int {
	_, w := ds.targets.Dims()
	return w
}

func (ds *QDataSet) NBuckets(f int) int {
	return ds.buckets[f]
}

func (ds *QDataSet) Value(f, s int) uint16 {
	return ds.values[f*ds.nSamples+s]
}

//Targets returns the target row of a sample. The slice aliases the data set and must not be modified.
func (ds *QDataSet) Targets(s int) []float64 {
	return ds.targets.RawRowView(s)
}

func (ds *QDataSet) Cost(s int) float64 {
	return ds.costs[s]
}

//ReadQDataSet reads quantized values (samples x features), targets (samples x outputs) and
//optional costs (samples x 1) from npy files. When buckets is nil the bucket count of each
//feature is its largest value plus one.
func ReadQDataSet(fileNameValues, fileNameTargets, fileNameCosts string, buckets []int) (*QDataSet, error) {
	log.Info().Str("path", fileNameValues).Msg("load quantized values")
	rawValues, err := ReadNpy(fileNameValues)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", fileNameTargets).Msg("load targets")
	targets, err := ReadNpy(fileNameTargets)
	if err != nil {
		return nil, err
	}

	var costs []float64
	if fileNameCosts != "" {
		log.Info().Str("path", fileNameCosts).Msg("load costs")
		rawCosts, err := ReadNpy(fileNameCosts)
		if err != nil {
			return nil, err
		}
		h, w := rawCosts.Dims()
		if w != 1 {
			return nil, dimensionError("the width of costs should be 1 not %d", w)
		}
		costs = make([]float64, h)
		for s := range costs {
			costs[s] = rawCosts.At(s, 0)
		}
	}

	h, w := rawValues.Dims()
	if targetH, _ := targets.Dims(); targetH != h {
		return nil, dimensionError("the targets height %d is not equal to the values height %d", targetH, h)
	}
	if buckets != nil && len(buckets) != w {
		return nil, dimensionError("got %d bucket counts for %d features", len(buckets), w)
	}

	values := make([]uint16, w*h)
	derived := make([]int, w)
	for f := 0; f < w; f++ {
		for s := 0; s < h; s++ {
			v := rawValues.At(s, f)
			if v < 0 || v > math.MaxUint16 || v != math.Trunc(v) {
				return nil, dimensionError("sample %d feature %d is not a bucket index: %g", s, f, v)
			}
			values[f*h+s] = uint16(v)
			derived[f] = max(derived[f], int(v)+1)
		}
	}
	if buckets == nil {
		buckets = derived
	}

	ds, err := NewQDataSet(values, buckets, targets, costs)
	if err != nil {
		return nil, err
	}
	log.Info().Int("samples", h).Int("features", w).Int("outputs", ds.NOutputs()).Msg("data set loaded")
	return ds, nil
}

//ReadNpy reads the content of npy file
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header of %s", fileName)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, errors.Wrapf(err, "read npy data of %s", fileName)
	}
	return denseMat, nil
}

//WriteNpy writes a matrix into npy file
func WriteNpy(fileName string, m mat.Matrix) (err error) {
	dst, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "create %s", fileName)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", fileName)
		}
	}()
	return errors.Wrapf(npyio.Write(dst, m), "write npy %s", fileName)
}
