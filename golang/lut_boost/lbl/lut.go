package lbl

//LUT is a weak learner: a table of outputs indexed by the quantized value of one feature.
//A LUT without entries is unset and contributes nothing.
type LUT struct {
	Feature int
	Entries []float64
}

//NewLUT creates a zero LUT over the buckets of a feature.
func NewLUT(feature, buckets int) LUT {
	return LUT{Feature: feature, Entries: make([]float64, buckets)}
}

//Empty checks whether the LUT is unset.
func (lut LUT) Empty() bool {
	return len(lut.Entries) == 0
}

//At returns the entry for a quantized feature value.
func (lut LUT) At(bucket uint16) float64 {
	return lut.Entries[bucket]
}

//Scaled returns a copy of the LUT with every entry multiplied by scale.
func (lut LUT) Scaled(scale float64) LUT {
	result := LUT{Feature: lut.Feature, Entries: make([]float64, len(lut.Entries))}
	for ind, val := range lut.Entries {
		result.Entries[ind] = val * scale
	}
	return result
}

//Clone returns a deep copy of the LUT.
func (lut LUT) Clone() LUT {
	if lut.Entries == nil {
		return LUT{Feature: lut.Feature}
	}
	return LUT{Feature: lut.Feature, Entries: append([]float64(nil), lut.Entries...)}
}

func cloneLUTs(luts []LUT) []LUT {
	result := make([]LUT, len(luts))
	for ind, lut := range luts {
		result[ind] = lut.Clone()
	}
	return result
}

func cloneMLUTs(mluts [][]LUT) [][]LUT {
	result := make([][]LUT, len(mluts))
	for o, luts := range mluts {
		result[o] = cloneLUTs(luts)
	}
	return result
}
