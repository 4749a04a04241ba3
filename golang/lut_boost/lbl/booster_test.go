package lbl

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//boosterFixture pairs a pixel model of 1x3 features with 4 buckets and a matching data set.
func boosterFixture(t *testing.T, rounds int) (*Problem, *Model, Param) {
	t.Helper()
	param := DefaultParam()
	param.Model, param.Rows, param.Cols, param.Bins = "pixel", 1, 3, 4
	param.Rounds = rounds
	param.Tolerance = 0

	reg := DefaultRegistry()
	model, err := NewModel(param, reg)
	require.NoError(t, err)
	problem, err := NewProblem(randomData(t, 11, 120, 3, 4, 1), param, 3, reg)
	require.NoError(t, err)
	return problem, model, param
}

func TestBoosterDecreasesLoss(t *testing.T) {
	problem, model, param := boosterFixture(t, 8)
	problem.UpdateLoss()
	initial := problem.Value()

	metrics := NewTrainMetrics()
	booster := NewBooster(param, metrics)
	require.NoError(t, booster.Train(context.Background(), problem, model))

	require.NotEmpty(t, booster.History)
	assert.Less(t, booster.History[0].Loss, initial)
	previous := initial
	for _, info := range booster.History {
		assert.Less(t, info.Loss, previous+1e-12, "round %d", info.Round)
		previous = info.Loss
	}
	assert.Equal(t, len(booster.History), model.NLuts(0))
	assert.Equal(t, problem.MLuts(), model.MLuts())
	assert.InDelta(t, float64(len(booster.History)), testutil.ToFloat64(metrics.Rounds), 0)
	assert.InDelta(t, previous, testutil.ToFloat64(metrics.Loss), 1e-12)

	//the model reproduces the committed scores of the trainer
	for s := 0; s < problem.NSamples(); s += 17 {
		score := 0.0
		for _, lut := range model.LUTs(0) {
			score += lut.At(problem.FValue(lut.Feature, s))
		}
		assert.InDelta(t, problem.Strong().At(s, 0), score, 1e-9)
	}
}

func TestBoosterStopsWithoutCandidate(t *testing.T) {
	param := DefaultParam()
	param.Model, param.Rows, param.Cols, param.Bins = "pixel", 1, 1, 2
	param.Loss = "diag_sq"
	reg := DefaultRegistry()
	model, err := NewModel(param, reg)
	require.NoError(t, err)
	data := newTestData(t, [][]uint16{{0, 1}}, []int{2}, [][]float64{{0}, {0}}, nil)
	problem, err := NewProblem(data, param, 1, reg)
	require.NoError(t, err)

	booster := NewBooster(param, nil)
	_, err = booster.Round(problem, model)
	assert.True(t, errors.Is(err, ErrNoCandidate))
	require.NoError(t, booster.Train(context.Background(), problem, model))
	assert.Empty(t, booster.History)
	assert.Zero(t, model.NLuts(0))
}

func TestBoosterHonoursCancellation(t *testing.T) {
	problem, model, param := boosterFixture(t, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	booster := NewBooster(param, nil)
	err := booster.Train(ctx, problem, model)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
	assert.Zero(t, model.NLuts(0))
}

func TestBoosterRejectsMismatchedModel(t *testing.T) {
	problem, _, param := boosterFixture(t, 1)
	param.Tagger = "object_type"
	param.Labels = []string{"a", "b"}
	model, err := NewModel(param, DefaultRegistry())
	require.NoError(t, err)
	err = NewBooster(param, nil).Train(context.Background(), problem, model)
	assert.True(t, errors.Is(err, ErrOutputMismatch))

	param = DefaultParam()
	model, err = NewModel(param, DefaultRegistry())
	require.NoError(t, err)
	err = NewBooster(param, nil).Train(context.Background(), problem, model)
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestDumpLearningCurve(t *testing.T) {
	problem, model, param := boosterFixture(t, 3)
	booster := NewBooster(param, nil)
	require.NoError(t, booster.Train(context.Background(), problem, model))
	require.NotEmpty(t, booster.History)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "curve.json")
	require.NoError(t, booster.DumpLearningCurve(jsonPath))
	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var dump LearningCurveDump
	require.NoError(t, json.Unmarshal(raw, &dump))
	assert.Equal(t, []string{"loss", "error"}, dump.Titles)
	assert.Len(t, dump.Values, len(booster.History))

	npyPath := filepath.Join(dir, "curve.npy")
	require.NoError(t, booster.DumpLearningCurve(npyPath))
	curve, err := ReadNpy(npyPath)
	require.NoError(t, err)
	rows, cols := curve.Dims()
	assert.Equal(t, [2]int{len(booster.History), 2}, [2]int{rows, cols})
	assert.InDelta(t, booster.History[0].Loss, curve.At(0, 0), 1e-12)

	assert.Error(t, NewBooster(param, nil).DumpLearningCurve(npyPath))
}

func TestTrainMetricsTextfile(t *testing.T) {
	problem, model, param := boosterFixture(t, 2)
	metrics := NewTrainMetrics()
	require.NoError(t, NewBooster(param, metrics).Train(context.Background(), problem, model))

	path := filepath.Join(t.TempDir(), "train.prom")
	require.NoError(t, metrics.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "lut_boost_rounds_total")
	assert.Contains(t, string(raw), "lut_boost_line_search_scale_bucket")

	var nilMetrics *TrainMetrics
	assert.NoError(t, nilMetrics.WriteTextfile(path))
}
