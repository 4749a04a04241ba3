package lbl

import (
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

//featureMemo caches the sorted set of features used by a model.
//Every mutation of the LUTs must call invalidate.
type featureMemo struct {
	mu       sync.Mutex
	valid    bool
	features []int
}

func (fm *featureMemo) invalidate() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.valid = false
	fm.features = nil
}

func (fm *featureMemo) get(build func() []int) []int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if !fm.valid {
		fm.features = build()
		fm.valid = true
	}
	return append([]int(nil), fm.features...)
}

//Model is the trained ensemble: one ordered sequence of LUTs per output.
type Model struct {
	param     Param
	reg       *Registry
	tagger    Tagger
	quantizer Quantizer
	mluts     [][]LUT
	features  featureMemo
}

//NewModel creates an empty model for the parameters; the registry decides the number of
//outputs (tagger) and how features are computed (quantizer).
func NewModel(param Param, reg *Registry) (*Model, error) {
	model := &Model{reg: reg}
	if err := model.Reset(param); err != nil {
		return nil, err
	}
	return model, nil
}

//Reset switches to new parameters and clears the LUTs of every output.
func (m *Model) Reset(param Param) error {
	tagger, err := m.reg.MakeTagger(param)
	if err != nil {
		return err
	}
	quantizer, err := m.reg.MakeQuantizer(param)
	if err != nil {
		return err
	}

	m.param = param
	m.tagger = tagger
	m.quantizer = quantizer
	m.mluts = make([][]LUT, tagger.NOutputs())
	m.features.invalidate()
	return nil
}

func (m *Model) Param() Param            { return m.param }
func (m *Model) Quantizer() Quantizer    { return m.quantizer }
func (m *Model) NOutputs() int           { return len(m.mluts) }
func (m *Model) OutputName(o int) string { return m.tagger.OutputName(o) }
func (m *Model) NLuts(o int) int         { return len(m.mluts[o]) }
func (m *Model) LUTs(o int) []LUT        { return m.mluts[o] }
func (m *Model) MLuts() [][]LUT          { return cloneMLUTs(m.mluts) }
func (m *Model) Describe(f int) string   { return m.quantizer.Describe(f) }
func (m *Model) NBuckets(f int) int      { return m.quantizer.NBuckets(f) }
func (m *Model) NFeatures() int          { return m.quantizer.NFeatures() }
func (m *Model) Registry() *Registry     { return m.reg }
func (m *Model) validOutput(o int) bool  { return o >= 0 && o < len(m.mluts) }

//checkLUT tests that a LUT on feature with size entries can be scored by the quantizer.
func (m *Model) checkLUT(o, feature, size int) error {
	if feature < 0 || feature >= m.NFeatures() || size != m.NBuckets(feature) {
		return dimensionError("output %d: LUT on feature %d with %d entries does not fit the model", o, feature, size)
	}
	return nil
}

//Set replaces the LUTs of all outputs. The model is left unchanged when
//the number of sequences differs from the number of outputs or a LUT does not fit the quantizer.
func (m *Model) Set(mluts [][]LUT) error {
	if len(mluts) != m.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "got %d sequences for %d outputs", len(mluts), m.NOutputs())
	}
	for o, luts := range mluts {
		for _, lut := range luts {
			if err := m.checkLUT(o, lut.Feature, len(lut.Entries)); err != nil {
				return err
			}
		}
	}
	m.mluts = cloneMLUTs(mluts)
	m.features.invalidate()
	return nil
}

//AddRound appends the LUTs of one accepted boosting round; unset LUTs are skipped.
func (m *Model) AddRound(luts []LUT) error {
	if len(luts) != m.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "got %d LUTs for %d outputs", len(luts), m.NOutputs())
	}
	for o, lut := range luts {
		if lut.Empty() {
			continue
		}
		if err := m.checkLUT(o, lut.Feature, len(lut.Entries)); err != nil {
			return err
		}
	}
	for o, lut := range luts {
		if !lut.Empty() {
			m.mluts[o] = append(m.mluts[o], lut.Clone())
		}
	}
	m.features.invalidate()
	return nil
}

//Preprocess prepares the feature computation on a new image.
func (m *Model) Preprocess(image *mat.Dense) error {
	return m.quantizer.Preprocess(image)
}

//Score sums the outputs of all LUTs of output o for the window at (x, y).
func (m *Model) Score(o, x, y int) float64 {
	return m.ScoreRange(o, 0, m.NLuts(o), x, y)
}

//ScoreRange sums the LUTs of rounds [rbegin, rend) only, so a cascade can stop early.
func (m *Model) ScoreRange(o, rbegin, rend, x, y int) float64 {
	sum := 0.0
	for _, lut := range m.mluts[o][rbegin:rend] {
		sum += lut.At(m.quantizer.Get(lut.Feature, x, y))
	}
	return sum
}

//ScoreMap scores output o at every window position of the image.
func (m *Model) ScoreMap(image *mat.Dense, o int) (*mat.Dense, error) {
	if !m.validOutput(o) {
		return nil, dimensionError("output %d of %d", o, m.NOutputs())
	}
	if err := m.Preprocess(image); err != nil {
		return nil, err
	}
	h, w := image.Dims()
	mapH, mapW := h-m.param.Rows+1, w-m.param.Cols+1
	if mapH < 1 || mapW < 1 {
		return nil, dimensionError("image %dx%d is smaller than the model window %dx%d", h, w, m.param.Rows, m.param.Cols)
	}

	scores := mat.NewDense(mapH, mapW, nil)
	for y := 0; y < mapH; y++ {
		for x := 0; x < mapW; x++ {
			scores.Set(y, x, m.Score(o, x, y))
		}
	}
	return scores, nil
}

//Features returns the sorted set of features used by any LUT of any output.
func (m *Model) Features() []int {
	return m.features.get(func() []int {
		seen := make(map[int]struct{})
		result := make([]int, 0)
		for _, luts := range m.mluts {
			for _, lut := range luts {
				if _, ok := seen[lut.Feature]; !ok {
					seen[lut.Feature] = struct{}{}
					result = append(result, lut.Feature)
				}
			}
		}
		sort.Ints(result)
		return result
	})
}

func (m *Model) encode(w RecordWriter) error {
	if err := m.param.save(w); err != nil {
		return err
	}
	if err := w.WriteInt(len(m.mluts)); err != nil {
		return err
	}
	for _, luts := range m.mluts {
		if err := w.WriteInt(len(luts)); err != nil {
			return err
		}
		for _, lut := range luts {
			if err := w.WriteInt(lut.Feature); err != nil {
				return err
			}
			if err := w.WriteInt(len(lut.Entries)); err != nil {
				return err
			}
			for _, entry := range lut.Entries {
				if err := w.WriteFloat(entry); err != nil {
					return err
				}
			}
			if err := w.EndRecord(); err != nil {
				return err
			}
		}
	}
	return m.quantizer.SaveState(w)
}

//decodeLUTs reads the LUT sequences into m. Sizes are checked against the model before
//allocating; the number of LUTs grows with the stream, which ends a bogus count at EOF.
func (m *Model) decodeLUTs(r RecordReader) error {
	n, err := r.ReadInt()
	if err != nil {
		return err
	}
	if n != m.NOutputs() {
		return errors.Wrapf(ErrOutputMismatch, "stored %d sequences for %d outputs", n, m.NOutputs())
	}
	mluts := make([][]LUT, n)
	for o := range mluts {
		count, err := r.ReadInt()
		if err != nil {
			return err
		}
		if count < 0 {
			return errors.Newf("negative number of LUTs %d", count)
		}
		for ind := 0; ind < count; ind++ {
			feature, err := r.ReadInt()
			if err != nil {
				return err
			}
			size, err := r.ReadInt()
			if err != nil {
				return err
			}
			if err := m.checkLUT(o, feature, size); err != nil {
				return err
			}
			lut := NewLUT(feature, size)
			for e := range lut.Entries {
				if lut.Entries[e], err = r.ReadFloat(); err != nil {
					return err
				}
			}
			mluts[o] = append(mluts[o], lut)
		}
	}
	m.mluts = mluts
	m.features.invalidate()
	return nil
}

func ioFailure(err error, op, path string, format Format) error {
	log.Error().Err(err).Str("path", path).Stringer("format", format).Msgf("failed to %s the model", op)
	return errors.Mark(errors.Wrapf(err, "%s model %s", op, path), ErrModelIO)
}

//Save writes the parameters, the LUTs of every output and the model state to path.
//The format follows the file extension (see FormatFromPath).
func (m *Model) Save(path string) (err error) {
	format := FormatFromPath(path)
	dest, err := os.Create(path)
	if err != nil {
		return ioFailure(err, "save", path, format)
	}
	defer func() {
		if cerr := dest.Close(); cerr != nil && err == nil {
			err = ioFailure(cerr, "save", path, format)
		}
	}()

	enc := openWriter(dest, format)
	if err := m.encode(enc); err != nil {
		return ioFailure(err, "save", path, format)
	}
	if err := enc.Close(); err != nil {
		return ioFailure(err, "save", path, format)
	}
	return nil
}

//Load restores a model saved by Save. The parameters stored in the file replace the current ones;
//the model is left unchanged on failure.
func (m *Model) Load(path string) error {
	format := FormatFromPath(path)
	source, err := os.Open(path)
	if err != nil {
		return ioFailure(err, "load", path, format)
	}
	defer func() { _ = source.Close() }()

	dec, err := openReader(source, format)
	if err != nil {
		return ioFailure(err, "load", path, format)
	}
	defer func() { _ = dec.Close() }()

	param, err := loadParam(dec)
	if err != nil {
		return ioFailure(err, "load", path, format)
	}
	loaded, err := NewModel(param, m.reg)
	if err != nil {
		return ioFailure(err, "load", path, format)
	}
	if err := loaded.decodeLUTs(dec); err != nil {
		return ioFailure(err, "load", path, format)
	}
	if err := loaded.quantizer.LoadState(dec); err != nil {
		return ioFailure(err, "load", path, format)
	}

	m.param = loaded.param
	m.tagger = loaded.tagger
	m.quantizer = loaded.quantizer
	m.mluts = loaded.mluts
	m.features.invalidate()
	return nil
}

//LoadModel reads only the parameter record of path, builds the model those parameters
//describe and then loads the whole file into it.
func LoadModel(path string, reg *Registry) (*Model, error) {
	format := FormatFromPath(path)
	source, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(err, "load", path, format)
	}
	dec, err := openReader(source, format)
	if err != nil {
		_ = source.Close()
		return nil, ioFailure(err, "load", path, format)
	}
	param, err := loadParam(dec)
	_ = dec.Close()
	_ = source.Close()
	if err != nil {
		return nil, ioFailure(err, "load", path, format)
	}

	model, err := NewModel(param, reg)
	if err != nil {
		return nil, ioFailure(err, "load", path, format)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
