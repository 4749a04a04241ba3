package lbl

//Trainer kinds select how per-sample losses aggregate into the training objective.
const (
	TrainerExpectation = "ept"
	TrainerVariational = "var"
)

//moments are the weighted sums accumulated by one worker over its rows.
//a and b are only filled during line search: a[o] = sum w*dl/df_o*weak_o, b[o] = sum w*l*dl/df_o*weak_o.
type moments struct {
	sum, sumSq, err float64
	a, b            []float64
}

func newMoments(outputs int) moments {
	return moments{a: make([]float64, outputs), b: make([]float64, outputs)}
}

func (m *moments) add(other *moments) {
	m.sum += other.sum
	m.sumSq += other.sumSq
	m.err += other.err
	for o := range m.a {
		m.a[o] += other.a[o]
		m.b[o] += other.b[o]
	}
}

//reduceMoments combines per-chunk partial sums in ascending chunk order.
func reduceMoments(partials []moments, outputs int) moments {
	total := newMoments(outputs)
	for chunk := range partials {
		total.add(&partials[chunk])
	}
	return total
}

//objective is the closed set of loss families: expectation and expectation plus variance.
type objective interface {
	name() string
	//value of the objective for the accumulated moments.
	value(m *moments) float64
	//scaleGradient fills g with the derivative of the objective w.r.t. the per-output scales.
	scaleGradient(m *moments, g []float64)
	//sampleFactor multiplies w_s*dl_s/df to obtain the derivative of the objective w.r.t. the scores of s.
	sampleFactor(m *moments, loss float64) float64
}

type expectation struct{}

func (expectation) name() string { return TrainerExpectation }

func (expectation) value(m *moments) float64 { return m.sum }

func (expectation) scaleGradient(m *moments, g []float64) {
	copy(g, m.a)
}

func (expectation) sampleFactor(*moments, float64) float64 { return 1.0 }

//variational penalizes the variance of the sample losses: E + lambda*(E[l^2] - E^2).
type variational struct {
	lambda float64
}

func (v variational) name() string { return TrainerVariational }

func (v variational) value(m *moments) float64 {
	return m.sum + v.lambda*(m.sumSq-m.sum*m.sum)
}

func (v variational) scaleGradient(m *moments, g []float64) {
	for o := range g {
		g[o] = m.a[o] + 2.0*v.lambda*(m.b[o]-m.sum*m.a[o])
	}
}

func (v variational) sampleFactor(m *moments, loss float64) float64 {
	return 1.0 + 2.0*v.lambda*(loss-m.sum)
}

func newObjective(param Param) (objective, error) {
	switch param.Trainer {
	case TrainerExpectation:
		return expectation{}, nil
	case TrainerVariational:
		return variational{lambda: param.VarianceWeight}, nil
	}
	return nil, unknownKind("trainer", param.Trainer)
}
