package lbl

import (
	"math"
)

//Loss evaluates the loss of one sample given its per-output targets and scores.
//Implementations are stateless and safe to share between workers.
type Loss interface {
	Name() string
	//Value returns the loss.
	Value(targets, scores []float64) float64
	//Deriv fills grad with the derivative of the loss w.r.t. scores and returns the loss.
	Deriv(targets, scores, grad []float64) float64
	//Error returns the empirical error in [0, 1] for classification losses.
	Error(targets, scores []float64) float64
}

//DiagExpLoss is the exponential loss summed over outputs, targets are +1/-1.
type DiagExpLoss struct{}

func (DiagExpLoss) Name() string { return "diag_exp" }

func (DiagExpLoss) Value(targets, scores []float64) float64 {
	value := 0.0
	for o, y := range targets {
		value += math.Exp(-y * scores[o])
	}
	return value
}

func (DiagExpLoss) Deriv(targets, scores, grad []float64) float64 {
	value := 0.0
	for o, y := range targets {
		e := math.Exp(-y * scores[o])
		value += e
		grad[o] = -y * e
	}
	return value
}

func (DiagExpLoss) Error(targets, scores []float64) float64 {
	return signError(targets, scores)
}

//DiagLogLoss is the logistic loss summed over outputs, targets are +1/-1.
type DiagLogLoss struct{}

func (DiagLogLoss) Name() string { return "diag_log" }

func (DiagLogLoss) Value(targets, scores []float64) float64 {
	value := 0.0
	for o, y := range targets {
		value += softplus(-y * scores[o])
	}
	return value
}

func (DiagLogLoss) Deriv(targets, scores, grad []float64) float64 {
	value := 0.0
	for o, y := range targets {
		z := -y * scores[o]
		value += softplus(z)
		grad[o] = -y * sigmoid(z)
	}
	return value
}

func (DiagLogLoss) Error(targets, scores []float64) float64 {
	return signError(targets, scores)
}

//DiagSquaredLoss is half of the squared residual summed over outputs.
type DiagSquaredLoss struct{}

func (DiagSquaredLoss) Name() string { return "diag_sq" }

func (DiagSquaredLoss) Value(targets, scores []float64) float64 {
	value := 0.0
	for o, y := range targets {
		d := scores[o] - y
		value += 0.5 * d * d
	}
	return value
}

func (DiagSquaredLoss) Deriv(targets, scores, grad []float64) float64 {
	value := 0.0
	for o, y := range targets {
		d := scores[o] - y
		value += 0.5 * d * d
		grad[o] = d
	}
	return value
}

//Error is the mean absolute residual.
func (DiagSquaredLoss) Error(targets, scores []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	sum := 0.0
	for o, y := range targets {
		sum += math.Abs(scores[o] - y)
	}
	return sum / float64(len(targets))
}

func signError(targets, scores []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	wrong := 0
	for o, y := range targets {
		if y*scores[o] <= 0 {
			wrong++
		}
	}
	return float64(wrong) / float64(len(targets))
}

//softplus computes log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}
