package lbl

import (
	"github.com/cockroachdb/errors"
	"gorgonia.org/tensor"
)

//gradientHistograms sums the loss derivatives of every output over the samples falling
//in each (feature, bucket) entry. Workers fill one (output, entry) slab each and the slabs
//are reduced over the chunk axis in ascending chunk order.
func (p *Problem) gradientHistograms() ([]float64, error) {
	outputs, entries, w := p.NOutputs(), p.NEntries(), p.NFeatures()
	slab := outputs * entries
	backing := make([]float64, len(p.ranges)*slab)

	forkJoin(p.ranges, func(chunk int, r Range) {
		hist := backing[chunk*slab : (chunk+1)*slab]
		for s := r.Begin; s < r.End; s++ {
			grad := p.grads.RawRowView(s)
			for f := 0; f < w; f++ {
				e := p.offsets[f] + int(p.data.Value(f, s))
				for o, g := range grad {
					hist[o*entries+e] += g
				}
			}
		}
	})

	if len(p.ranges) == 1 {
		return backing, nil
	}
	partials := tensor.New(tensor.WithShape(len(p.ranges), outputs, entries), tensor.WithBacking(backing))
	total, err := partials.Sum(0)
	if err != nil {
		return nil, errors.Wrap(err, "reduce gradient histograms")
	}
	switch data := total.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	}
	return nil, errors.Newf("unexpected histogram storage %T", total.Data())
}

//scanFeature computes the LUT of feature f for output o that best fits the negative
//gradient and returns its gain. entries may be nil when only the gain is needed.
func (p *Problem) scanFeature(hist []float64, o, f int, entries []float64) (gain float64) {
	base := o*p.NEntries() + p.offsets[f]
	for b := 0; b < p.data.NBuckets(f); b++ {
		support := p.support[p.offsets[f]+b]
		if p.Masked(f, b) || support <= 0 {
			if entries != nil {
				entries[b] = 0
			}
			continue
		}
		g := hist[base+b]
		gain += g * g / support
		if entries != nil {
			entries[b] = -g / support
		}
	}
	return gain
}

func (p *Problem) fitLUT(hist []float64, o, f int) LUT {
	lut := NewLUT(f, p.data.NBuckets(f))
	p.scanFeature(hist, o, f, lut.Entries)
	return lut
}

//Select picks the feature whose LUT decreases the objective the most along the current
//gradient, either independently per output or shared by all outputs. Ties go to the lowest
//feature index. Outputs without an improving feature are left unset.
func (p *Problem) Select() error {
	hist, err := p.gradientHistograms()
	if err != nil {
		return err
	}
	outputs, w := p.NOutputs(), p.NFeatures()

	switch p.sharing {
	case SharingIndependent:
		for o := 0; o < outputs; o++ {
			bestFeature, bestGain := -1, 0.0
			for f := 0; f < w; f++ {
				if gain := p.scanFeature(hist, o, f, nil); gain > bestGain {
					bestFeature, bestGain = f, gain
				}
			}
			p.luts[o] = LUT{}
			if bestFeature >= 0 {
				p.luts[o] = p.fitLUT(hist, o, bestFeature)
			}
		}
	case SharingShared:
		bestFeature, bestGain := -1, 0.0
		for f := 0; f < w; f++ {
			gain := 0.0
			for o := 0; o < outputs; o++ {
				gain += p.scanFeature(hist, o, f, nil)
			}
			if gain > bestGain {
				bestFeature, bestGain = f, gain
			}
		}
		for o := 0; o < outputs; o++ {
			p.luts[o] = LUT{}
			if bestFeature >= 0 {
				p.luts[o] = p.fitLUT(hist, o, bestFeature)
			}
		}
	default:
		return unknownKind("sharing", p.sharing)
	}

	p.updateWeakScores()
	return nil
}

//updateWeakScores evaluates the candidate LUTs on every sample.
func (p *Problem) updateWeakScores() {
	outputs := p.NOutputs()
	forkJoin(p.ranges, func(_ int, r Range) {
		block := rowBlock(p.wscores, r)
		for s := r.Begin; s < r.End; s++ {
			row := block[(s-r.Begin)*outputs : (s-r.Begin+1)*outputs]
			for o, lut := range p.luts {
				row[o] = 0
				if !lut.Empty() {
					row[o] = lut.At(p.data.Value(lut.Feature, s))
				}
			}
		}
	})
	p.memo.invalidate()
}
