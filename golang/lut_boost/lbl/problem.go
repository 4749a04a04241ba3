package lbl

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

//Problem greedily trains LUTs in boosting rounds on a quantized data set.
//
//A round runs UpdateLossDeriv, Select, LineSearch and UpdateScores in this order.
//Every parallel step splits the samples into the same contiguous ranges, one per
//worker, and a worker writes only the score rows of its range.
type Problem struct {
	data    DataSet
	param   Param
	loss    Loss
	obj     objective
	sharing string
	threads int
	ranges  []Range

	offsets []int     // first entry of every feature
	weights []float64 // normalized sample costs
	support []float64 // sum of weights per (feature, bucket) entry
	umasks  *mat.Dense

	mluts  [][]LUT   // trained model
	luts   []LUT     // candidates of the current round
	scales []float64 // per output scales of the last line search, NaN when unset

	sscores *mat.Dense // strong learner scores: (sample, output)
	wscores *mat.Dense // weak learner scores: (sample, output)
	cscores *mat.Dense // strong + scale*weak: (sample, output)
	grads   *mat.Dense // loss derivatives: (sample, output)

	value, err float64
	memo       linesearchMemo
}

//NewProblem allocates the score matrices and the entry masks for a data set.
//threads bounds the number of workers, a non-positive value uses all CPUs.
func NewProblem(data DataSet, param Param, threads int, reg *Registry) (*Problem, error) {
	h, w, outputs := data.NSamples(), data.NFeatures(), data.NOutputs()
	if h < 1 || w < 1 || outputs < 1 {
		return nil, dimensionError("data set with %d samples, %d features and %d outputs", h, w, outputs)
	}
	if param.Sharing != SharingShared && param.Sharing != SharingIndependent {
		return nil, unknownKind("sharing", param.Sharing)
	}
	loss, err := reg.MakeLoss(param)
	if err != nil {
		return nil, err
	}
	obj, err := newObjective(param)
	if err != nil {
		return nil, err
	}

	threads = defaultThreads(threads)
	p := &Problem{
		data:    data,
		param:   param,
		loss:    loss,
		obj:     obj,
		sharing: param.Sharing,
		threads: threads,
		ranges:  SplitRange(h, threads),
		mluts:   make([][]LUT, outputs),
		luts:    make([]LUT, outputs),
		sscores: mat.NewDense(h, outputs, nil),
		wscores: mat.NewDense(h, outputs, nil),
		cscores: mat.NewDense(h, outputs, nil),
		grads:   mat.NewDense(h, outputs, nil),
	}
	if err := p.prepareEntries(); err != nil {
		return nil, err
	}
	return p, nil
}

//prepareEntries normalizes the costs and masks out (feature, bucket) entries
//with fewer than MinSupport samples.
func (p *Problem) prepareEntries() error {
	h, w := p.NSamples(), p.NFeatures()

	total := 0.0
	for s := 0; s < h; s++ {
		total += p.data.Cost(s)
	}
	if total <= 0 {
		return errors.New("the sample costs sum to zero")
	}
	p.weights = make([]float64, h)
	for s := range p.weights {
		p.weights[s] = p.data.Cost(s) / total
	}

	p.offsets = make([]int, w)
	maxBuckets, entries := 0, 0
	for f := 0; f < w; f++ {
		p.offsets[f] = entries
		entries += p.data.NBuckets(f)
		maxBuckets = max(maxBuckets, p.data.NBuckets(f))
	}
	if entries != p.data.NFValues() {
		return dimensionError("the features have %d buckets in total, the data set reports %d", entries, p.data.NFValues())
	}

	p.support = make([]float64, entries)
	counts := make([]int, entries)
	for f := 0; f < w; f++ {
		for s := 0; s < h; s++ {
			e := p.offsets[f] + int(p.data.Value(f, s))
			p.support[e] += p.weights[s]
			counts[e]++
		}
	}

	p.umasks = mat.NewDense(w, maxBuckets, nil)
	for f := 0; f < w; f++ {
		for b := 0; b < p.data.NBuckets(f); b++ {
			if counts[p.offsets[f]+b] >= max(p.param.MinSupport, 1) {
				p.umasks.Set(f, b, 1)
			}
		}
	}
	return nil
}

func (p *Problem) NEntries() int  { return p.data.NFValues() }
func (p *Problem) NFeatures() int { return p.data.NFeatures() }
func (p *Problem) NSamples() int  { return p.data.NSamples() }
func (p *Problem) NOutputs() int  { return p.data.NOutputs() }
func (p *Problem) Threads() int   { return p.threads }

func (p *Problem) FValue(f, s int) uint16      { return p.data.Value(f, s) }
func (p *Problem) Target(s int) []float64      { return p.data.Targets(s) }
func (p *Problem) Cost(s int) float64          { return p.data.Cost(s) }
func (p *Problem) Masked(f, b int) bool        { return p.umasks.At(f, b) == 0 }
func (p *Problem) Strong() mat.Matrix          { return p.sscores }
func (p *Problem) Weak() mat.Matrix            { return p.wscores }
func (p *Problem) MLuts() [][]LUT              { return p.mluts }
func (p *Problem) LUTs() []LUT                 { return p.luts }
func (p *Problem) Candidate(o int) (LUT, bool) { return p.luts[o], !p.luts[o].Empty() }

//Scales returns one scale per output accepted by the last successful LineSearch;
//outputs without a candidate get NaN.
func (p *Problem) Scales() []float64 { return append([]float64(nil), p.scales...) }

//Value returns the objective of the committed scores.
func (p *Problem) Value() float64 { return p.value }

//Error returns the weighted empirical error of the committed scores.
func (p *Problem) Error() float64 { return p.err }

//HasCandidate checks whether the last Select found an improving LUT for any output.
func (p *Problem) HasCandidate() bool {
	for _, lut := range p.luts {
		if !lut.Empty() {
			return true
		}
	}
	return false
}

//Append records the LUTs of an accepted round in the trained model.
func (p *Problem) Append(luts []LUT) error {
	if len(luts) != p.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "got %d LUTs for %d outputs", len(luts), p.NOutputs())
	}
	for o, lut := range luts {
		if !lut.Empty() {
			p.mluts[o] = append(p.mluts[o], lut.Clone())
		}
	}
	return nil
}

//accumulate evaluates the loss of every sample at the given scores. When grads is
//not nil the raw loss derivatives are stored in it and the losses in losses.
func (p *Problem) accumulate(scores *mat.Dense, grads *mat.Dense, losses []float64) moments {
	outputs := p.NOutputs()
	partials := make([]moments, len(p.ranges))
	for chunk := range partials {
		partials[chunk] = newMoments(outputs)
	}

	forkJoin(p.ranges, func(chunk int, r Range) {
		part := &partials[chunk]
		for s := r.Begin; s < r.End; s++ {
			targets, row := p.data.Targets(s), scores.RawRowView(s)
			var l float64
			if grads != nil {
				l = p.loss.Deriv(targets, row, grads.RawRowView(s))
				losses[s] = l
			} else {
				l = p.loss.Value(targets, row)
			}
			weight := p.weights[s]
			part.sum += weight * l
			part.sumSq += weight * l * l
			part.err += weight * p.loss.Error(targets, row)
		}
	})
	return reduceMoments(partials, outputs)
}

//UpdateLossDeriv recomputes the objective and its derivatives w.r.t. the committed scores.
func (p *Problem) UpdateLossDeriv() {
	losses := make([]float64, p.NSamples())
	m := p.accumulate(p.sscores, p.grads, losses)
	p.value, p.err = p.obj.value(&m), m.err

	forkJoin(p.ranges, func(_ int, r Range) {
		for s := r.Begin; s < r.End; s++ {
			scale := p.weights[s] * p.obj.sampleFactor(&m, losses[s])
			row := p.grads.RawRowView(s)
			for o := range row {
				row[o] *= scale
			}
		}
	})
}

//UpdateLoss recomputes only the objective and the error of the committed scores.
func (p *Problem) UpdateLoss() {
	m := p.accumulate(p.sscores, nil, nil)
	p.value, p.err = p.obj.value(&m), m.err
}

//UpdateScores adds the outputs of the LUTs to the committed scores. Unset LUTs are skipped.
//Nothing is written when a LUT does not fit the data set.
func (p *Problem) UpdateScores(luts []LUT) error {
	if len(luts) != p.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "got %d LUTs for %d outputs", len(luts), p.NOutputs())
	}
	for o, lut := range luts {
		if lut.Empty() {
			continue
		}
		if lut.Feature < 0 || lut.Feature >= p.NFeatures() {
			return dimensionError("output %d: feature %d out of %d", o, lut.Feature, p.NFeatures())
		}
		if len(lut.Entries) != p.data.NBuckets(lut.Feature) {
			return dimensionError("output %d: LUT has %d entries, feature %d has %d buckets",
				o, len(lut.Entries), lut.Feature, p.data.NBuckets(lut.Feature))
		}
	}

	outputs := p.NOutputs()
	forkJoin(p.ranges, func(_ int, r Range) {
		block := rowBlock(p.sscores, r)
		for s := r.Begin; s < r.End; s++ {
			row := block[(s-r.Begin)*outputs : (s-r.Begin+1)*outputs]
			for o, lut := range luts {
				if !lut.Empty() {
					row[o] += lut.At(p.data.Value(lut.Feature, s))
				}
			}
		}
	})
	p.memo.invalidate()
	return nil
}
