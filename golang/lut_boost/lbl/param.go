package lbl

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//Feature sharing policies.
const (
	SharingShared      = "shared"
	SharingIndependent = "indep"
)

//Param is the parameter record of a model. It is persisted first in every model file
//and decides which model, tagger, loss and trainer variants are built.
type Param struct {
	Rows            int      `yaml:"rows"`
	Cols            int      `yaml:"cols"`
	Model           string   `yaml:"model"`
	Bins            int      `yaml:"bins"`
	Radius          int      `yaml:"radius"`
	Tagger          string   `yaml:"tagger"`
	Labels          []string `yaml:"labels"`
	Loss            string   `yaml:"loss"`
	Trainer         string   `yaml:"trainer"`
	VarianceWeight  float64  `yaml:"variance_weight"`
	Sharing         string   `yaml:"sharing"`
	Rounds          int      `yaml:"rounds"`
	LineSearchIters int      `yaml:"linesearch_iters"`
	Tolerance       float64  `yaml:"tolerance"`
	MinSupport      int      `yaml:"min_support"`
}

//DefaultParam returns the parameters of a small LBP object classifier.
func DefaultParam() Param {
	return Param{
		Rows:            24,
		Cols:            20,
		Model:           "lbp",
		Bins:            16,
		Radius:          1,
		Tagger:          "object_detect",
		Loss:            "diag_log",
		Trainer:         TrainerExpectation,
		VarianceWeight:  0.1,
		Sharing:         SharingShared,
		Rounds:          64,
		LineSearchIters: 50,
		Tolerance:       1e-9,
		MinSupport:      1,
	}
}

//Validate checks sizes and that every named variant is known to the registry.
func (p Param) Validate(reg *Registry) error {
	if p.Rows < 1 || p.Cols < 1 {
		return dimensionError("model window %dx%d", p.Rows, p.Cols)
	}
	if p.Rounds < 0 || p.LineSearchIters < 0 || p.MinSupport < 0 {
		return dimensionError("negative rounds %d, line search iterations %d or min support %d",
			p.Rounds, p.LineSearchIters, p.MinSupport)
	}
	if p.Sharing != SharingShared && p.Sharing != SharingIndependent {
		return unknownKind("sharing", p.Sharing)
	}
	if _, err := newObjective(p); err != nil {
		return err
	}
	if _, err := reg.MakeLoss(p); err != nil {
		return err
	}
	if _, err := reg.MakeTagger(p); err != nil {
		return err
	}
	_, err := reg.MakeQuantizer(p)
	return err
}

func (p Param) save(w RecordWriter) error {
	ints := []int{p.Rows, p.Cols, p.Bins, p.Radius}
	for _, v := range ints {
		if err := w.WriteInt(v); err != nil {
			return err
		}
	}
	for _, s := range []string{p.Model, p.Tagger} {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	if err := w.WriteInt(len(p.Labels)); err != nil {
		return err
	}
	for _, label := range p.Labels {
		if err := w.WriteString(label); err != nil {
			return err
		}
	}
	for _, s := range []string{p.Loss, p.Trainer, p.Sharing} {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	if err := w.WriteFloat(p.VarianceWeight); err != nil {
		return err
	}
	for _, v := range []int{p.Rounds, p.LineSearchIters, p.MinSupport} {
		if err := w.WriteInt(v); err != nil {
			return err
		}
	}
	if err := w.WriteFloat(p.Tolerance); err != nil {
		return err
	}
	return w.EndRecord()
}

func loadParam(r RecordReader) (p Param, err error) {
	for _, v := range []*int{&p.Rows, &p.Cols, &p.Bins, &p.Radius} {
		if *v, err = r.ReadInt(); err != nil {
			return p, err
		}
	}
	for _, s := range []*string{&p.Model, &p.Tagger} {
		if *s, err = r.ReadString(); err != nil {
			return p, err
		}
	}
	n, err := r.ReadInt()
	if err != nil {
		return p, err
	}
	if n < 0 {
		return p, errors.Newf("negative number of labels %d", n)
	}
	for ind := 0; ind < n; ind++ {
		label, err := r.ReadString()
		if err != nil {
			return p, err
		}
		p.Labels = append(p.Labels, label)
	}
	for _, s := range []*string{&p.Loss, &p.Trainer, &p.Sharing} {
		if *s, err = r.ReadString(); err != nil {
			return p, err
		}
	}
	if p.VarianceWeight, err = r.ReadFloat(); err != nil {
		return p, err
	}
	for _, v := range []*int{&p.Rounds, &p.LineSearchIters, &p.MinSupport} {
		if *v, err = r.ReadInt(); err != nil {
			return p, err
		}
	}
	p.Tolerance, err = r.ReadFloat()
	return p, err
}

//TrainConfig describes one training run: the parameters plus input and output files.
type TrainConfig struct {
	Param                 Param  `yaml:"param"`
	FileNameValues        string `yaml:"filename_values"`
	FileNameTargets       string `yaml:"filename_targets"`
	FileNameCosts         string `yaml:"filename_costs"`
	FileNameModel         string `yaml:"filename_model"`
	FileNameMetrics       string `yaml:"filename_metrics"`
	FileNameLearningCurve string `yaml:"filename_learning_curve"`
	ThreadsNum            int    `yaml:"threads_num"`
}

//NewTrainConfig returns a configuration with default parameters.
func NewTrainConfig() TrainConfig {
	return TrainConfig{Param: DefaultParam()}
}

//DecodeConfig decodes a YAML (or JSON) configuration file into out.
//Fields absent from the file keep the values already stored in out.
func DecodeConfig(srcConfig string, out interface{}) error {
	file, err := os.Open(srcConfig)
	if err != nil {
		return errors.Wrapf(err, "open config %s", srcConfig)
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return errors.Wrapf(err, "decode config %s", srcConfig)
	}
	return nil
}
