package lbl

import (
	"github.com/cockroachdb/errors"
)

var (
	//ErrDimension reports extents that disagree with the configured counts.
	ErrDimension = errors.New("dimension mismatch")

	//ErrOutputMismatch reports a per-output LUT set whose size differs from the model outputs.
	ErrOutputMismatch = errors.New("number of LUT sequences differs from the number of outputs")

	//ErrModelIO marks failures to open, write or read a persisted model.
	//Callers may retry with another path when errors.Is(err, ErrModelIO).
	ErrModelIO = errors.New("model i/o failure")

	//ErrUnknownKind reports a loss, tagger, model, trainer or sharing name that is not registered.
	ErrUnknownKind = errors.New("unknown kind")

	//ErrNoCandidate reports a round in which no LUT decreases the objective.
	ErrNoCandidate = errors.New("no improving LUT")
)

func dimensionError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrDimension)
}

func unknownKind(what, name string) error {
	return errors.Mark(errors.Newf("unknown %s %q", what, name), ErrUnknownKind)
}
