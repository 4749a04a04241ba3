package lbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLossDerivMatchesFiniteDifferences(t *testing.T) {
	targets := []float64{1, -1, 1}
	scores := []float64{0.3, 0.8, -1.7}
	const h = 1e-6

	for _, loss := range []Loss{DiagExpLoss{}, DiagLogLoss{}, DiagSquaredLoss{}} {
		t.Run(loss.Name(), func(t *testing.T) {
			grad := make([]float64, len(scores))
			value := loss.Deriv(targets, scores, grad)
			assert.InDelta(t, loss.Value(targets, scores), value, 1e-12)

			for o := range scores {
				plus := append([]float64(nil), scores...)
				minus := append([]float64(nil), scores...)
				plus[o] += h
				minus[o] -= h
				numeric := (loss.Value(targets, plus) - loss.Value(targets, minus)) / (2 * h)
				assert.InDelta(t, numeric, grad[o], 1e-6, "output %d", o)
			}
		})
	}
}

func TestLossErrors(t *testing.T) {
	targets := []float64{1, -1, 1, -1}
	scores := []float64{0.5, 0.5, -2, -3}

	assert.InDelta(t, 0.5, DiagLogLoss{}.Error(targets, scores), 1e-12)
	assert.InDelta(t, 0.5, DiagExpLoss{}.Error(targets, scores), 1e-12)
	assert.InDelta(t, (0.5+1.5+3+2)/4, DiagSquaredLoss{}.Error(targets, scores), 1e-12)
	assert.Zero(t, signError(nil, nil))
}

func TestSoftplusIsStable(t *testing.T) {
	assert.InDelta(t, 800.0, softplus(800), 1e-9)
	assert.InDelta(t, 0.0, softplus(-800), 1e-300)
	assert.InDelta(t, 0.6931471805599453, softplus(0), 1e-15)
	assert.InDelta(t, 1.0, sigmoid(800), 1e-15)
	assert.InDelta(t, 0.0, sigmoid(-800), 1e-15)
}
