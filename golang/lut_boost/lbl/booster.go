package lbl

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

//RoundInfo is one row of the learning curve.
type RoundInfo struct {
	Round    int
	Loss     float64
	Error    float64
	Features int
	Duration time.Duration
}

//Booster drives the boosting rounds of a Problem and appends the accepted LUTs to a Model.
type Booster struct {
	rounds    int
	tolerance float64
	metrics   *TrainMetrics
	History   []RoundInfo
}

//NewBooster creates a driver for param.Rounds rounds. metrics may be nil.
func NewBooster(param Param, metrics *TrainMetrics) *Booster {
	return &Booster{
		rounds:    param.Rounds,
		tolerance: param.Tolerance,
		metrics:   metrics,
		History:   make([]RoundInfo, 0, param.Rounds),
	}
}

//Round runs one boosting round. It returns ErrNoCandidate when neither the selection nor
//the line search finds a LUT that decreases the objective; nothing is committed then.
func (b *Booster) Round(problem *Problem, model *Model) (RoundInfo, error) {
	started := time.Now()
	problem.UpdateLossDeriv()

	if err := problem.Select(); err != nil {
		return RoundInfo{}, err
	}
	if !problem.HasCandidate() {
		return RoundInfo{}, errors.Wrap(ErrNoCandidate, "selection")
	}
	if !problem.LineSearch() {
		return RoundInfo{}, errors.Wrap(ErrNoCandidate, "line search")
	}

	luts := cloneLUTs(problem.LUTs())
	if err := problem.UpdateScores(luts); err != nil {
		return RoundInfo{}, err
	}
	if err := problem.Append(luts); err != nil {
		return RoundInfo{}, err
	}
	if err := model.AddRound(luts); err != nil {
		return RoundInfo{}, err
	}
	problem.UpdateLoss()

	info := RoundInfo{
		Round:    len(b.History) + 1,
		Loss:     problem.Value(),
		Error:    problem.Error(),
		Features: len(model.Features()),
		Duration: time.Since(started),
	}
	b.History = append(b.History, info)
	b.metrics.observeRound(info, problem.Scales(), info.Duration)

	selected := make([]int, len(luts))
	for o, lut := range luts {
		selected[o] = -1
		if !lut.Empty() {
			selected[o] = lut.Feature
		}
	}
	log.Info().Int("round", info.Round).Float64("loss", info.Loss).Float64("error", info.Error).
		Ints("features", selected).Floats64("scales", problem.Scales()).Dur("elapsed", info.Duration).
		Msg("boosting round")
	return info, nil
}

//Train boosts until the number of rounds is reached, no LUT improves the objective or the
//relative improvement of a round drops below the tolerance. Cancelling ctx stops the
//training between rounds; the rounds committed so far stay in the model.
func (b *Booster) Train(ctx context.Context, problem *Problem, model *Model) error {
	if problem.NOutputs() != model.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "data set has %d outputs, model has %d", problem.NOutputs(), model.NOutputs())
	}
	if problem.NFeatures() != model.NFeatures() {
		return dimensionError("data set has %d features, model has %d", problem.NFeatures(), model.NFeatures())
	}
	for f := 0; f < problem.NFeatures(); f++ {
		if problem.data.NBuckets(f) != model.NBuckets(f) {
			return dimensionError("feature %d has %d buckets in the data set and %d in the model",
				f, problem.data.NBuckets(f), model.NBuckets(f))
		}
	}

	problem.UpdateLoss()
	previous := problem.Value()
	log.Info().Int("samples", problem.NSamples()).Int("features", problem.NFeatures()).
		Int("outputs", problem.NOutputs()).Int("threads", problem.Threads()).
		Float64("loss", previous).Float64("error", problem.Error()).Msg("start boosting")

	for round := 0; round < b.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "training stopped after %d rounds", len(b.History))
		}

		info, err := b.Round(problem, model)
		if errors.Is(err, ErrNoCandidate) {
			b.metrics.observeRejected()
			log.Info().Int("round", round+1).Err(err).Msg("no improving LUT, stop boosting")
			return nil
		}
		if err != nil {
			return err
		}

		if previous-info.Loss <= b.tolerance*math.Max(math.Abs(previous), 1) {
			log.Info().Int("round", info.Round).Float64("improvement", previous-info.Loss).
				Msg("improvement below tolerance, stop boosting")
			return nil
		}
		previous = info.Loss
	}
	return nil
}

//LearningCurveDump is the JSON form of the learning curve.
type LearningCurveDump struct {
	Titles []string
	Values [][]float64
}

//DumpLearningCurve writes the (loss, error) of every round. A .json path gets a
//LearningCurveDump, any other path a (rounds x 2) npy matrix.
func (b *Booster) DumpLearningCurve(fileName string) error {
	if strings.EqualFold(filepath.Ext(fileName), ".json") {
		dump := LearningCurveDump{Titles: []string{"loss", "error"}, Values: make([][]float64, 0, len(b.History))}
		for _, info := range b.History {
			dump.Values = append(dump.Values, []float64{info.Loss, info.Error})
		}
		bytesResult, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode learning curve")
		}
		return errors.Wrapf(os.WriteFile(fileName, bytesResult, 0o644), "write learning curve %s", fileName)
	}

	if len(b.History) == 0 {
		return errors.New("empty learning curve")
	}
	curve := mat.NewDense(len(b.History), 2, nil)
	for ind, info := range b.History {
		curve.Set(ind, 0, info.Loss)
		curve.Set(ind, 1, info.Error)
	}
	return WriteNpy(fileName, curve)
}
