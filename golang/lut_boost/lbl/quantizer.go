package lbl

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

//Quantizer computes the quantized feature values a model is scored on.
//Features are indexed by their (dy, dx) offset inside the Rows x Cols model window.
type Quantizer interface {
	Name() string
	NFeatures() int
	NBuckets(f int) int
	Describe(f int) string
	//Preprocess keeps the image that Get reads from.
	Preprocess(image *mat.Dense) error
	//Get returns the value of feature f for the window whose top-left corner is (x, y).
	Get(f, x, y int) uint16
	//SaveState and LoadState persist the model specific state after the LUTs.
	SaveState(w RecordWriter) error
	LoadState(r RecordReader) error
}

type window struct {
	rows, cols int
	image      *mat.Dense
}

func (w *window) NFeatures() int { return w.rows * w.cols }

func (w *window) offset(f int) (dx, dy int) {
	return f % w.cols, f / w.cols
}

func (w *window) Preprocess(image *mat.Dense) error {
	if image == nil || image.IsEmpty() {
		return dimensionError("empty image")
	}
	w.image = image
	return nil
}

//pixel returns the image value at (x, y) clamped to the image borders.
func (w *window) pixel(x, y int) float64 {
	h, wd := w.image.Dims()
	x = min(max(x, 0), wd-1)
	y = min(max(y, 0), h-1)
	return w.image.At(y, x)
}

//pixelQuantizer buckets the intensity of every pixel of the window.
type pixelQuantizer struct {
	window
	thresholds []float64 // ascending, len == bins-1
}

func newPixelQuantizer(param Param) (Quantizer, error) {
	if param.Bins < 2 || param.Bins > 1<<16 {
		return nil, dimensionError("pixel model needs 2..65536 bins, got %d", param.Bins)
	}
	q := &pixelQuantizer{window: window{rows: param.Rows, cols: param.Cols}}
	q.thresholds = make([]float64, param.Bins-1)
	step := 256.0 / float64(param.Bins)
	for ind := range q.thresholds {
		q.thresholds[ind] = float64(ind+1) * step
	}
	return q, nil
}

func (q *pixelQuantizer) Name() string { return "pixel" }

func (q *pixelQuantizer) NBuckets(int) int { return len(q.thresholds) + 1 }

func (q *pixelQuantizer) Describe(f int) string {
	dx, dy := q.offset(f)
	return fmt.Sprintf("pixel(dx=%d, dy=%d)", dx, dy)
}

func (q *pixelQuantizer) Get(f, x, y int) uint16 {
	dx, dy := q.offset(f)
	return q.bucket(q.pixel(x+dx, y+dy))
}

//bucket counts the thresholds not above v.
func (q *pixelQuantizer) bucket(v float64) uint16 {
	return uint16(sort.Search(len(q.thresholds), func(ind int) bool { return q.thresholds[ind] > v }))
}

//SetThresholds replaces the bin thresholds, e.g. with quantiles of the training images.
func (q *pixelQuantizer) SetThresholds(thresholds []float64) error {
	if len(thresholds) != len(q.thresholds) {
		return dimensionError("got %d thresholds for %d bins", len(thresholds), len(q.thresholds)+1)
	}
	if !sort.Float64sAreSorted(thresholds) {
		return errors.New("pixel thresholds must be ascending")
	}
	copy(q.thresholds, thresholds)
	return nil
}

func (q *pixelQuantizer) SaveState(w RecordWriter) error {
	if err := w.WriteInt(len(q.thresholds)); err != nil {
		return err
	}
	for _, t := range q.thresholds {
		if err := w.WriteFloat(t); err != nil {
			return err
		}
	}
	return w.EndRecord()
}

func (q *pixelQuantizer) LoadState(r RecordReader) error {
	n, err := r.ReadInt()
	if err != nil {
		return err
	}
	if n != len(q.thresholds) {
		return dimensionError("stored %d thresholds, the model has %d bins", n, len(q.thresholds)+1)
	}
	thresholds := make([]float64, n)
	for ind := range thresholds {
		if thresholds[ind], err = r.ReadFloat(); err != nil {
			return err
		}
	}
	return q.SetThresholds(thresholds)
}

//lbpQuantizer codes every pixel of the window with its 8-neighbour local binary pattern.
type lbpQuantizer struct {
	window
	radius int
}

var lbpNeighbours = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}}

func newLBPQuantizer(param Param) (Quantizer, error) {
	if param.Radius < 1 {
		return nil, dimensionError("lbp model needs a positive radius, got %d", param.Radius)
	}
	return &lbpQuantizer{window: window{rows: param.Rows, cols: param.Cols}, radius: param.Radius}, nil
}

func (q *lbpQuantizer) Name() string { return "lbp" }

func (q *lbpQuantizer) NBuckets(int) int { return 256 }

func (q *lbpQuantizer) Describe(f int) string {
	dx, dy := q.offset(f)
	return fmt.Sprintf("lbp(dx=%d, dy=%d, r=%d)", dx, dy, q.radius)
}

func (q *lbpQuantizer) Get(f, x, y int) uint16 {
	dx, dy := q.offset(f)
	cx, cy := x+dx, y+dy
	center := q.pixel(cx, cy)

	code := uint16(0)
	for bit, n := range lbpNeighbours {
		if q.pixel(cx+n[0]*q.radius, cy+n[1]*q.radius) >= center {
			code |= 1 << bit
		}
	}
	return code
}

func (q *lbpQuantizer) SaveState(w RecordWriter) error {
	if err := w.WriteInt(q.radius); err != nil {
		return err
	}
	return w.EndRecord()
}

func (q *lbpQuantizer) LoadState(r RecordReader) error {
	radius, err := r.ReadInt()
	if err != nil {
		return err
	}
	if radius < 1 {
		return dimensionError("stored lbp radius %d", radius)
	}
	q.radius = radius
	return nil
}
