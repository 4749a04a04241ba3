package lbl

import (
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/optimize"
)

//linesearchMemo remembers the last point evaluated by Linesearch, the optimizer asks
//for the value and the gradient at the same point separately. Select and UpdateScores invalidate it.
type linesearchMemo struct {
	valid bool
	x, g  []float64
	value float64
}

func (lm *linesearchMemo) invalidate() {
	lm.valid = false
}

func (lm *linesearchMemo) lookup(x, g []float64) (float64, bool) {
	if !lm.valid || len(x) != len(lm.x) {
		return 0, false
	}
	for ind := range x {
		if x[ind] != lm.x[ind] {
			return 0, false
		}
	}
	copy(g, lm.g)
	return lm.value, true
}

func (lm *linesearchMemo) store(x, g []float64, value float64) {
	lm.x = append(lm.x[:0], x...)
	lm.g = append(lm.g[:0], g...)
	lm.value = value
	lm.valid = true
}

//Linesearch evaluates the objective at the scores strong + x*weak and stores its gradient
//w.r.t. the per-output scales x in g. Only the scratch scores are written.
func (p *Problem) Linesearch(x, g []float64) float64 {
	if value, ok := p.memo.lookup(x, g); ok {
		return value
	}

	outputs := p.NOutputs()
	partials := make([]moments, len(p.ranges))
	for chunk := range partials {
		partials[chunk] = newMoments(outputs)
	}

	forkJoin(p.ranges, func(chunk int, r Range) {
		current, strong, weak := rowBlock(p.cscores, r), rowBlock(p.sscores, r), rowBlock(p.wscores, r)
		for ind := range current {
			current[ind] = strong[ind] + x[ind%outputs]*weak[ind]
		}

		part := &partials[chunk]
		grad := make([]float64, outputs)
		for s := r.Begin; s < r.End; s++ {
			at := (s - r.Begin) * outputs
			row, weakRow := current[at:at+outputs], weak[at:at+outputs]
			l := p.loss.Deriv(p.data.Targets(s), row, grad)
			weight := p.weights[s]
			part.sum += weight * l
			part.sumSq += weight * l * l
			for o := range grad {
				d := weight * grad[o] * weakRow[o]
				part.a[o] += d
				part.b[o] += l * d
			}
		}
	})

	m := reduceMoments(partials, outputs)
	value := p.obj.value(&m)
	p.obj.scaleGradient(&m, g)
	p.memo.store(x, g, value)
	return value
}

//LineSearch optimizes the scales of the candidate LUTs with L-BFGS starting from 1.
//On success the candidate entries and their weak scores are multiplied by the scales, so
//a repeated call refines the scaled candidates, and the caller may commit them with UpdateScores.
func (p *Problem) LineSearch() bool {
	if !p.HasCandidate() {
		return false
	}
	outputs := p.NOutputs()
	scratch := make([]float64, outputs)

	start := p.Linesearch(make([]float64, outputs), scratch)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return p.Linesearch(x, scratch)
		},
		Grad: func(grad, x []float64) {
			p.Linesearch(x, grad)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   max(p.param.LineSearchIters, 1),
		GradientThreshold: math.Max(p.param.Tolerance, 1e-12),
		Converger: &optimize.FunctionConverge{
			Absolute:   math.Max(p.param.Tolerance, 1e-12),
			Iterations: 8,
		},
	}
	x0 := make([]float64, outputs)
	for o := range x0 {
		x0[o] = 1.0
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		log.Warn().Err(err).Msg("line search failed")
		return false
	}
	if err != nil {
		log.Debug().Err(err).Stringer("status", result.Status).Msg("line search stopped early")
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) || !(result.F < start) {
		log.Debug().Float64("start", start).Float64("best", result.F).Msg("line search found no improving scale")
		return false
	}

	scales := make([]float64, outputs)
	p.scales = make([]float64, outputs)
	for o, lut := range p.luts {
		scales[o], p.scales[o] = 1, math.NaN()
		if !lut.Empty() {
			p.luts[o] = lut.Scaled(result.X[o])
			scales[o], p.scales[o] = result.X[o], result.X[o]
		}
	}
	//weak scores follow the scaled candidates
	forkJoin(p.ranges, func(_ int, r Range) {
		weak := rowBlock(p.wscores, r)
		for ind := range weak {
			weak[ind] *= scales[ind%outputs]
		}
	})
	p.memo.invalidate()
	log.Debug().Floats64("scales", result.X).Float64("start", start).Float64("best", result.F).
		Int("evaluations", result.FuncEvaluations).Msg("line search")
	return true
}
