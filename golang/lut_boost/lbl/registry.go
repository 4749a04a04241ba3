package lbl

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
)

//Tagger decides the number of model outputs from the parameters.
type Tagger interface {
	Name() string
	NOutputs() int
	OutputName(o int) string
}

type (
	LossFactory      func(param Param) Loss
	TaggerFactory    func(param Param) Tagger
	QuantizerFactory func(param Param) (Quantizer, error)
)

//Registry maps the names stored in a Param to loss, tagger and model quantizer constructors.
//A process builds one registry at start up and hands it to the model and trainer entry points.
type Registry struct {
	losses     map[string]LossFactory
	taggers    map[string]TaggerFactory
	quantizers map[string]QuantizerFactory
}

//NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		losses:     make(map[string]LossFactory),
		taggers:    make(map[string]TaggerFactory),
		quantizers: make(map[string]QuantizerFactory),
	}
}

//DefaultRegistry creates a registry with the built-in losses, taggers and models.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	mustRegister(reg.RegisterLoss("diag_exp", func(Param) Loss { return DiagExpLoss{} }))
	mustRegister(reg.RegisterLoss("diag_log", func(Param) Loss { return DiagLogLoss{} }))
	mustRegister(reg.RegisterLoss("diag_sq", func(Param) Loss { return DiagSquaredLoss{} }))

	mustRegister(reg.RegisterTagger("object_detect", func(Param) Tagger {
		return countTagger{name: "object_detect", outputs: 1, labels: []string{"object"}, suffixes: []string{""}}
	}))
	mustRegister(reg.RegisterTagger("object_type", func(p Param) Tagger {
		return countTagger{name: "object_type", outputs: len(p.Labels), labels: p.Labels, suffixes: []string{""}}
	}))
	mustRegister(reg.RegisterTagger("keypoint", func(p Param) Tagger {
		return countTagger{name: "keypoint", outputs: 2 * len(p.Labels), labels: p.Labels, suffixes: []string{"_x", "_y"}}
	}))

	mustRegister(reg.RegisterQuantizer("pixel", newPixelQuantizer))
	mustRegister(reg.RegisterQuantizer("lbp", newLBPQuantizer))
	return reg
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

func (reg *Registry) RegisterLoss(name string, factory LossFactory) error {
	if _, ok := reg.losses[name]; ok {
		return errors.Newf("loss %q already registered", name)
	}
	reg.losses[name] = factory
	return nil
}

func (reg *Registry) RegisterTagger(name string, factory TaggerFactory) error {
	if _, ok := reg.taggers[name]; ok {
		return errors.Newf("tagger %q already registered", name)
	}
	reg.taggers[name] = factory
	return nil
}

func (reg *Registry) RegisterQuantizer(name string, factory QuantizerFactory) error {
	if _, ok := reg.quantizers[name]; ok {
		return errors.Newf("model %q already registered", name)
	}
	reg.quantizers[name] = factory
	return nil
}

func (reg *Registry) MakeLoss(param Param) (Loss, error) {
	factory, ok := reg.losses[param.Loss]
	if !ok {
		return nil, unknownKind("loss", param.Loss)
	}
	return factory(param), nil
}

func (reg *Registry) MakeTagger(param Param) (Tagger, error) {
	factory, ok := reg.taggers[param.Tagger]
	if !ok {
		return nil, unknownKind("tagger", param.Tagger)
	}
	tagger := factory(param)
	if tagger.NOutputs() < 1 {
		return nil, dimensionError("tagger %q has no outputs", param.Tagger)
	}
	return tagger, nil
}

func (reg *Registry) MakeQuantizer(param Param) (Quantizer, error) {
	factory, ok := reg.quantizers[param.Model]
	if !ok {
		return nil, unknownKind("model", param.Model)
	}
	return factory(param)
}

//Losses lists the registered loss names in ascending order.
func (reg *Registry) Losses() []string {
	names := make([]string, 0, len(reg.losses))
	for name := range reg.losses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//countTagger gives every label len(suffixes) consecutive outputs.
type countTagger struct {
	name     string
	outputs  int
	labels   []string
	suffixes []string
}

func (t countTagger) Name() string  { return t.name }
func (t countTagger) NOutputs() int { return t.outputs }

func (t countTagger) OutputName(o int) string {
	per := len(t.suffixes)
	if o < 0 || o >= t.outputs || per == 0 || o/per >= len(t.labels) {
		return fmt.Sprintf("output_%d", o)
	}
	return t.labels[o/per] + t.suffixes[o%per]
}
